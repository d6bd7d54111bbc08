package queue

import (
	"context"
	"testing"
	"time"

	sqssvc "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type mockSQSClient struct {
	messages []types.Message
	deleted  []string
}

func (m *mockSQSClient) ReceiveMessage(ctx context.Context, params *sqssvc.ReceiveMessageInput, optFns ...func(*sqssvc.Options)) (*sqssvc.ReceiveMessageOutput, error) {
	msgs := m.messages
	m.messages = nil
	return &sqssvc.ReceiveMessageOutput{Messages: msgs}, nil
}

func (m *mockSQSClient) DeleteMessage(ctx context.Context, params *sqssvc.DeleteMessageInput, optFns ...func(*sqssvc.Options)) (*sqssvc.DeleteMessageOutput, error) {
	m.deleted = append(m.deleted, *params.ReceiptHandle)
	return &sqssvc.DeleteMessageOutput{}, nil
}

func (m *mockSQSClient) ChangeMessageVisibility(ctx context.Context, params *sqssvc.ChangeMessageVisibilityInput, optFns ...func(*sqssvc.Options)) (*sqssvc.ChangeMessageVisibilityOutput, error) {
	return &sqssvc.ChangeMessageVisibilityOutput{}, nil
}

func strptr(s string) *string { return &s }

func TestConsumerEmitsMessages(t *testing.T) {
	client := &mockSQSClient{
		messages: []types.Message{
			{MessageId: strptr("m1"), ReceiptHandle: strptr("r1"), Body: strptr(`{"a":1}`)},
		},
	}
	c := New(client, "https://queue.example/q", 10, 60, 0, rate.NewLimiter(rate.Inf, 1), zerolog.Nop())

	out := make(chan Message, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, out) }()

	select {
	case msg := <-out:
		if msg.ID != "m1" || string(msg.Body) != `{"a":1}` {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}

	cancel()
	<-done
}

func TestConsumerDelete(t *testing.T) {
	client := &mockSQSClient{}
	c := New(client, "https://queue.example/q", 10, 60, 0, rate.NewLimiter(rate.Inf, 1), zerolog.Nop())

	if err := c.Delete(context.Background(), "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.deleted) != 1 || client.deleted[0] != "r1" {
		t.Fatalf("expected r1 deleted, got %+v", client.deleted)
	}
}
