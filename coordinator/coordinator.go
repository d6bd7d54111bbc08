// Package coordinator implements the worker pool pattern that wires
// QueueConsumer, UploadEvent parsing, StreamRouter, ObjectReader,
// RecordTransformer, BatchPublisher, DeliverySink and AckCoordinator into
// the end-to-end ingestion pipeline. It follows the teacher's worker-pool
// shape: a pool of workers pulling from a task channel, per-worker status
// tracking for monitoring, and a coordinated shutdown that drains
// in-flight work before returning.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wifiloc/pipeline/ack"
	"github.com/wifiloc/pipeline/batch"
	"github.com/wifiloc/pipeline/config"
	"github.com/wifiloc/pipeline/metrics"
	"github.com/wifiloc/pipeline/objectreader"
	"github.com/wifiloc/pipeline/queue"
	"github.com/wifiloc/pipeline/router"
	"github.com/wifiloc/pipeline/transform"
	"github.com/wifiloc/pipeline/uploadevent"
)

// WorkerStatus tracks one ingestion worker's progress and last error for
// monitoring and the activity snapshot.
type WorkerStatus struct {
	LastErrorTime   time.Time
	StartTime       time.Time
	LastActive      time.Time
	LastError       error
	CurrentMessage  string
	RecordsWritten  int64
	MessagesHandled int64
	ID              int
}

// Publisher is the subset of batch.Publisher the coordinator depends on.
type Publisher interface {
	Add(ctx context.Context, record []byte, owner string) error
	FlushIfStale(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ActivitySnapshot is a point-in-time view of the pipeline's health,
// following the design note that health is an observable, not a gate.
type ActivitySnapshot struct {
	metrics.Snapshot
	ActiveWorkers    int `json:"activeWorkers"`
	MessagesInFlight int `json:"messagesInFlight"`
}

// Coordinator runs the ingestion worker pool: each worker polls messages
// from the queue channel, parses the upload event, resolves a feed
// processor, streams and transforms the referenced object, and hands
// surviving records to the batch publisher. The ack coordinator is
// registered with the surviving record count only after the object has
// streamed to completion, so a mid-stream failure leaves the message
// unregistered for redelivery rather than acked against a partial count.
type Coordinator struct {
	cfg          *config.Config
	consumer     *queue.Consumer
	router       *router.Router
	objectReader *objectreader.Reader
	transformer  *transform.Transformer
	publisher    Publisher
	ackCoord     *ack.Coordinator
	metrics      *metrics.Metrics
	logger       zerolog.Logger

	statusMu     sync.RWMutex
	workerStatus map[int]*WorkerStatus
}

// New constructs a Coordinator from its fully wired dependencies.
func New(
	cfg *config.Config,
	consumer *queue.Consumer,
	rt *router.Router,
	objectReader *objectreader.Reader,
	transformer *transform.Transformer,
	publisher Publisher,
	ackCoord *ack.Coordinator,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:          cfg,
		consumer:     consumer,
		router:       rt,
		objectReader: objectReader,
		transformer:  transformer,
		publisher:    publisher,
		ackCoord:     ackCoord,
		metrics:      m,
		logger:       logger,
		workerStatus: make(map[int]*WorkerStatus),
	}
}

// Run starts the queue poller and the worker pool, and blocks until ctx is
// cancelled, at which point it drains outstanding work within
// cfg.ShutdownGrace before returning.
func (c *Coordinator) Run(ctx context.Context) error {
	messages := make(chan queue.Message, c.cfg.RecordChannelCapacity)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.consumer.Run(ctx, messages); err != nil && ctx.Err() == nil {
			c.logger.Error().Err(err).Msg("queue consumer exited unexpectedly")
		}
	}()

	staleCheckInterval := c.cfg.Delivery.MaxBatchAgeMs / 4
	if staleCheckInterval < 100*time.Millisecond {
		staleCheckInterval = 100 * time.Millisecond
	}
	staleTicker := time.NewTicker(staleCheckInterval)
	defer staleTicker.Stop()
	go func() {
		for {
			select {
			case <-staleTicker.C:
				if err := c.publisher.FlushIfStale(ctx); err != nil {
					c.logger.Warn().Err(err).Msg("periodic stale-batch flush failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < c.cfg.MaxWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.initWorker(workerID)
			c.runWorker(ctx, workerID, messages)
		}(i)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownGrace)
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		c.logger.Warn().Msg("shutdown grace period elapsed before all workers drained")
	}

	if err := c.publisher.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("final batch flush: %w", err)
	}
	return nil
}

// runWorker pulls messages from in, processes each to completion, and
// returns once in is closed or ctx is cancelled.
func (c *Coordinator) runWorker(ctx context.Context, id int, in <-chan queue.Message) {
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return
			}
			c.updateWorkerStatus(id, func(s *WorkerStatus) {
				s.CurrentMessage = msg.ID
			})
			if err := c.handleMessage(ctx, id, msg); err != nil {
				c.recordError(id, err)
				c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to process message")
			}
			c.updateWorkerStatus(id, func(s *WorkerStatus) {
				s.MessagesHandled++
			})
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage parses the upload event, resolves the owning feed
// processor, streams and transforms the referenced object, and publishes
// surviving records. The ack coordinator is only registered once the
// object has been streamed to completion: a mid-stream transport failure
// leaves the message unregistered so it redelivers in full after its
// visibility timeout, rather than being acked for a partial count.
func (c *Coordinator) handleMessage(ctx context.Context, workerID int, msg queue.Message) error {
	ev, err := uploadevent.Parse(msg.Body)
	if err != nil {
		c.metrics.IncParseFailures()
		// A malformed notification can never succeed on retry; ack it so it
		// does not poison the queue forever.
		c.ackCoord.Register(ctx, msg.ID, msg.ReceiptHandle, 0)
		return fmt.Errorf("parse upload event: %w", err)
	}

	processor := c.router.ProcessorFor(ev.StreamName)

	var published int
	streamErr := c.objectReader.Open(ctx, ev.Bucket, ev.Key, func(line []byte) error {
		records, err := c.transformer.Transform(line, processor.RequireObservations())
		if err != nil {
			return nil // corrupt line: counted, not fatal to the object.
		}
		for _, rec := range records {
			body, err := rec.MarshalJSON()
			if err != nil {
				continue
			}
			if err := c.publisher.Add(ctx, body, msg.ID); err != nil {
				return fmt.Errorf("publish record: %w", err)
			}
			published++
		}
		return nil
	})

	if streamErr != nil {
		return fmt.Errorf("stream object %s/%s: %w", ev.Bucket, ev.Key, streamErr)
	}

	c.ackCoord.Register(ctx, msg.ID, msg.ReceiptHandle, published)

	c.updateWorkerStatus(workerID, func(s *WorkerStatus) {
		s.RecordsWritten += int64(published)
	})
	return nil
}

// Snapshot returns a point-in-time activity view combining the metrics
// snapshot with worker-pool and ack-coordinator state.
func (c *Coordinator) Snapshot() ActivitySnapshot {
	c.statusMu.RLock()
	active := 0
	for _, s := range c.workerStatus {
		if time.Since(s.LastActive) < 10*time.Second {
			active++
		}
	}
	c.statusMu.RUnlock()

	return ActivitySnapshot{
		Snapshot:         c.metrics.Snapshot(),
		ActiveWorkers:    active,
		MessagesInFlight: c.ackCoord.Pending(),
	}
}

func (c *Coordinator) initWorker(id int) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.workerStatus[id] = &WorkerStatus{ID: id, StartTime: time.Now()}
}

func (c *Coordinator) updateWorkerStatus(id int, fn func(*WorkerStatus)) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if s, ok := c.workerStatus[id]; ok {
		fn(s)
		s.LastActive = time.Now()
	}
}

func (c *Coordinator) recordError(id int, err error) {
	c.updateWorkerStatus(id, func(s *WorkerStatus) {
		s.LastError = err
		s.LastErrorTime = time.Now()
	})
}
