// Package ack implements AckCoordinator: it tracks, per queue message, the
// set of derived records still in flight and deletes the queue message only
// once every derived record has reached a terminal state, matching the
// at-least-once message lifecycle spec.md §4.9/§4.14 describes.
package ack

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Deleter deletes a message from the queue once it has been fully acked.
type Deleter interface {
	Delete(ctx context.Context, receiptHandle string) error
}

type inFlight struct {
	receiptHandle string
	pending       int
	lost          int
}

// Coordinator tracks in-flight derived records per message id.
type Coordinator struct {
	mu      sync.Mutex
	entries map[string]*inFlight
	deleter Deleter
	logger  zerolog.Logger
}

// New constructs a Coordinator.
func New(deleter Deleter, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		entries: make(map[string]*inFlight),
		deleter: deleter,
		logger:  logger,
	}
}

// Register declares that a message has produced n derived records that must
// each reach a terminal state before the message can be acked. Registering
// a message with n == 0 (no records survived transformation) acks it
// immediately.
func (c *Coordinator) Register(ctx context.Context, messageID, receiptHandle string, n int) {
	c.mu.Lock()
	c.entries[messageID] = &inFlight{receiptHandle: receiptHandle, pending: n}
	empty := n == 0
	c.mu.Unlock()

	if empty {
		c.ackAndDelete(ctx, messageID)
	}
}

// Complete marks one derived record as reaching a terminal state
// (delivered, permanently discarded, or lost after exhausting retries).
// Once every record for a message has completed, the message is deleted
// from the queue.
func (c *Coordinator) Complete(ctx context.Context, messageID string, lost bool) {
	c.mu.Lock()
	e, ok := c.entries[messageID]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.pending--
	if lost {
		e.lost++
	}
	done := e.pending <= 0
	c.mu.Unlock()

	if done {
		c.ackAndDelete(ctx, messageID)
	}
}

func (c *Coordinator) ackAndDelete(ctx context.Context, messageID string) {
	c.mu.Lock()
	e, ok := c.entries[messageID]
	if ok {
		delete(c.entries, messageID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if err := c.deleter.Delete(ctx, e.receiptHandle); err != nil {
		c.logger.Error().Err(err).Str("message_id", messageID).Msg("failed to delete acked message")
		return
	}
	if e.lost > 0 {
		c.logger.Warn().Str("message_id", messageID).Int("lost_records", e.lost).Msg("message acked with partial record loss")
	}
}

// Pending reports how many messages currently have derived records in
// flight, for use in shutdown draining and activity snapshots.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
