// Package batch implements BatchPublisher: accumulates serialized records
// into size- and time-bounded batches and hands them to a DeliverySink,
// applying memory-pressure throttling to the effective batch size. The
// single-writer, lock-on-flush discipline follows the teacher's worker
// pattern of keeping I/O outside any held lock.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/wifiloc/pipeline/metrics"
)

// Batch is an ordered sequence of serialized records owned exclusively by
// one BatchPublisher until handed to a Sink; ownership transfers, never
// shared.
type Batch struct {
	Records       [][]byte
	Owners        []string // Owners[i] is the originating message id for Records[i]
	ApproxBytes   int64
	CreatedAt     time.Time
	CorrelationID string
}

// Sink delivers a completed batch downstream. DeliverySink satisfies this.
type Sink interface {
	WriteBatch(ctx context.Context, b Batch) error
}

// PressureSource reports the current memory-pressure-adjusted batch size,
// implemented by memorygovernor.Governor.
type PressureSource interface {
	OptimalBatchSize(defaultSize int) int
}

// Publisher assembles records into batches bounded by record count, byte
// size and age.
type Publisher struct {
	mu       sync.Mutex
	current  Batch
	sink     Sink
	pressure PressureSource
	metrics  *metrics.Metrics
	clock    clockwork.Clock

	maxBatchRecords int
	maxBatchBytes   int64
	maxBatchAge     time.Duration
}

// New constructs a Publisher.
func New(sink Sink, pressure PressureSource, m *metrics.Metrics, clock clockwork.Clock, maxBatchRecords int, maxBatchBytes int64, maxBatchAge time.Duration) *Publisher {
	p := &Publisher{
		sink:            sink,
		pressure:        pressure,
		metrics:         m,
		clock:           clock,
		maxBatchRecords: maxBatchRecords,
		maxBatchBytes:   maxBatchBytes,
		maxBatchAge:     maxBatchAge,
	}
	p.resetLocked()
	return p
}

func (p *Publisher) resetLocked() {
	p.current = Batch{
		Records:       make([][]byte, 0, p.maxBatchRecords),
		Owners:        make([]string, 0, p.maxBatchRecords),
		CreatedAt:     p.clock.Now(),
		CorrelationID: uuid.NewString(),
	}
}

// Add appends one serialized record owned by the given message id,
// flushing the current batch first if adding it would exceed a bound, and
// flushing the record alone if it alone exceeds maxBatchBytes. owner
// propagates to the DeliverySink so record-level terminal outcomes can be
// reported back to the correct originating message.
func (p *Publisher) Add(ctx context.Context, record []byte, owner string) error {
	p.mu.Lock()

	if int64(len(record)) > p.maxBatchBytes {
		solo := Batch{
			Records: [][]byte{record}, Owners: []string{owner},
			ApproxBytes: int64(len(record)), CreatedAt: p.clock.Now(), CorrelationID: uuid.NewString(),
		}
		p.mu.Unlock()
		return p.flush(ctx, solo)
	}

	effectiveMax := p.effectiveMaxRecordsLocked()
	wouldOverflowRecords := len(p.current.Records)+1 > effectiveMax
	wouldOverflowBytes := p.current.ApproxBytes+int64(len(record)) > p.maxBatchBytes

	if wouldOverflowRecords || wouldOverflowBytes {
		toFlush := p.current
		p.resetLocked()
		p.mu.Unlock()
		if err := p.flush(ctx, toFlush); err != nil {
			return err
		}
		p.mu.Lock()
	}

	p.current.Records = append(p.current.Records, record)
	p.current.Owners = append(p.current.Owners, owner)
	p.current.ApproxBytes += int64(len(record))
	full := len(p.current.Records) >= p.effectiveMaxRecordsLocked()
	var toFlush Batch
	if full {
		toFlush = p.current
		p.resetLocked()
	}
	p.mu.Unlock()

	if full {
		return p.flush(ctx, toFlush)
	}
	return nil
}

// FlushIfStale flushes the current batch if its age has reached the
// configured maxBatchAge; callers invoke this from a ticker.
func (p *Publisher) FlushIfStale(ctx context.Context) error {
	p.mu.Lock()
	if len(p.current.Records) == 0 || p.clock.Now().Sub(p.current.CreatedAt) < p.maxBatchAge {
		p.mu.Unlock()
		return nil
	}
	toFlush := p.current
	p.resetLocked()
	p.mu.Unlock()
	return p.flush(ctx, toFlush)
}

// Shutdown force-flushes any remaining records, regardless of age or size.
func (p *Publisher) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if len(p.current.Records) == 0 {
		p.mu.Unlock()
		return nil
	}
	toFlush := p.current
	p.resetLocked()
	p.mu.Unlock()
	return p.flush(ctx, toFlush)
}

func (p *Publisher) flush(ctx context.Context, b Batch) error {
	p.metrics.ObserveBatch(len(b.Records))
	return p.sink.WriteBatch(ctx, b)
}

// effectiveMaxRecordsLocked applies memory-pressure throttling to the
// configured maxBatchRecords. Must be called with p.mu held.
func (p *Publisher) effectiveMaxRecordsLocked() int {
	if p.pressure == nil {
		return p.maxBatchRecords
	}
	return p.pressure.OptimalBatchSize(p.maxBatchRecords)
}
