// Package queue implements QueueConsumer: a long-polling reader over the
// work queue that emits raw messages onto a bounded in-process channel.
// While that channel is full the send blocks, which pauses polling until
// the channel drains or the context is cancelled.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sqssvc "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	awsport "github.com/wifiloc/pipeline/aws"
)

// ErrQueueUnavailable marks a retriable failure contacting the queue.
var ErrQueueUnavailable = errors.New("queue unavailable")

// ErrPermissionDenied marks a fatal, non-retriable authorization failure.
// The poll loop logs it and continues polling rather than exiting — a
// single message's failure is never fatal to the process.
var ErrPermissionDenied = errors.New("queue permission denied")

// Message is a single raw message received from the queue, carrying enough
// to delete or extend visibility later.
type Message struct {
	ID            string
	ReceiptHandle string
	Body          []byte
}

// Consumer long-polls the queue and emits messages to the channel passed
// to Run.
type Consumer struct {
	client               awsport.SQSClient
	queueURL             string
	maxMessagesPerPoll   int32
	visibilityTimeoutSec int32
	pollWaitTimeSec      int32
	limiter              *rate.Limiter
	logger               zerolog.Logger
}

// New constructs a Consumer. limiter caps the poll loop at its configured
// rate; the cap does not change with how full the downstream channel is.
// Pass rate.NewLimiter(rate.Inf, 1) for no cap.
func New(client awsport.SQSClient, queueURL string, maxMessagesPerPoll, visibilityTimeoutSec, pollWaitTimeSec int32, limiter *rate.Limiter, logger zerolog.Logger) *Consumer {
	return &Consumer{
		client:               client,
		queueURL:             queueURL,
		maxMessagesPerPoll:   maxMessagesPerPoll,
		visibilityTimeoutSec: visibilityTimeoutSec,
		pollWaitTimeSec:      pollWaitTimeSec,
		limiter:              limiter,
		logger:               logger,
	}
}

// Run polls until ctx is cancelled, emitting messages onto out. Each poll
// waits on the rate limiter and the receive call; each send onto out blocks
// while out is full, with no time bound other than ctx cancellation, so a
// full channel stalls polling, possibly past the visibility timeout.
func (c *Consumer) Run(ctx context.Context, out chan<- Message) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		out2, err := c.client.ReceiveMessage(ctx, &sqssvc.ReceiveMessageInput{
			QueueUrl:            &c.queueURL,
			MaxNumberOfMessages: c.maxMessagesPerPoll,
			VisibilityTimeout:   c.visibilityTimeoutSec,
			WaitTimeSeconds:     c.pollWaitTimeSec,
		})
		if err != nil {
			kind := classify(err)
			switch {
			case errors.Is(kind, ErrPermissionDenied):
				c.logger.Error().Err(err).Msg("queue permission denied, continuing poll loop")
				continue
			case errors.Is(kind, ErrQueueUnavailable):
				c.logger.Warn().Err(err).Msg("queue unavailable, retrying poll")
				continue
			default:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error().Err(err).Msg("unexpected queue error, retrying poll")
				continue
			}
		}

		for _, m := range out2.Messages {
			msg := Message{
				ID:            derefStr(m.MessageId),
				ReceiptHandle: derefStr(m.ReceiptHandle),
				Body:          []byte(derefStr(m.Body)),
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Delete removes a message from the queue once its derived records have
// all reached a terminal state.
func (c *Consumer) Delete(ctx context.Context, receiptHandle string) error {
	_, err := c.client.DeleteMessage(ctx, &sqssvc.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: &receiptHandle,
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// ExtendVisibility pushes out a message's visibility timeout while it is
// still being processed.
func (c *Consumer) ExtendVisibility(ctx context.Context, receiptHandle string, seconds int32) error {
	_, err := c.client.ChangeMessageVisibility(ctx, &sqssvc.ChangeMessageVisibilityInput{
		QueueUrl:          &c.queueURL,
		ReceiptHandle:     &receiptHandle,
		VisibilityTimeout: seconds,
	})
	if err != nil {
		return fmt.Errorf("extend visibility: %w", err)
	}
	return nil
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// classify maps an SDK error to ErrQueueUnavailable or ErrPermissionDenied.
func classify(err error) error {
	var accessDenied *types.RequestThrottledException
	if errors.As(err, &accessDenied) {
		return ErrQueueUnavailable
	}
	// AWS SDK permission errors surface as generic smithy errors with
	// "AccessDenied" in the message; the SQS SDK does not expose a typed
	// variant for it the way it does for throttling, so string matching on
	// the error text is the pragmatic classifier here.
	if isAccessDenied(err) {
		return ErrPermissionDenied
	}
	return ErrQueueUnavailable
}

func isAccessDenied(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "AccessDenied") || strings.Contains(msg, "not authorized")
}
