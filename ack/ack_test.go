package ack

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type mockDeleter struct {
	mu      sync.Mutex
	deleted []string
}

func (m *mockDeleter) Delete(ctx context.Context, receiptHandle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, receiptHandle)
	return nil
}

func TestAcksOnlyAfterAllRecordsTerminal(t *testing.T) {
	d := &mockDeleter{}
	c := New(d, zerolog.Nop())

	c.Register(context.Background(), "msg-1", "rh-1", 3)
	if len(d.deleted) != 0 {
		t.Fatalf("expected no delete yet, got %v", d.deleted)
	}

	c.Complete(context.Background(), "msg-1", false)
	c.Complete(context.Background(), "msg-1", true)
	if len(d.deleted) != 0 {
		t.Fatalf("expected no delete yet, got %v", d.deleted)
	}

	c.Complete(context.Background(), "msg-1", false)
	if len(d.deleted) != 1 || d.deleted[0] != "rh-1" {
		t.Fatalf("expected rh-1 deleted, got %v", d.deleted)
	}
}

func TestRegisterWithZeroRecordsAcksImmediately(t *testing.T) {
	d := &mockDeleter{}
	c := New(d, zerolog.Nop())

	c.Register(context.Background(), "msg-2", "rh-2", 0)
	if len(d.deleted) != 1 || d.deleted[0] != "rh-2" {
		t.Fatalf("expected immediate ack, got %v", d.deleted)
	}
}

func TestPendingCount(t *testing.T) {
	d := &mockDeleter{}
	c := New(d, zerolog.Nop())
	c.Register(context.Background(), "msg-3", "rh-3", 1)
	if got := c.Pending(); got != 1 {
		t.Fatalf("expected 1 pending, got %d", got)
	}
	c.Complete(context.Background(), "msg-3", false)
	if got := c.Pending(); got != 0 {
		t.Fatalf("expected 0 pending, got %d", got)
	}
}
