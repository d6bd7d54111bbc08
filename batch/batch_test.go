package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wifiloc/pipeline/metrics"
)

type mockSink struct {
	mu      sync.Mutex
	batches []Batch
}

func (m *mockSink) WriteBatch(ctx context.Context, b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, b)
	return nil
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func TestFlushesOnRecordCount(t *testing.T) {
	sink := &mockSink{}
	clock := clockwork.NewFakeClock()
	p := New(sink, nil, newTestMetrics(), clock, 2, 1<<20, time.Minute)

	ctx := context.Background()
	if err := p.Add(ctx, []byte("a"), "owner-1"); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 0 {
		t.Fatalf("expected no flush yet, got %d", sink.count())
	}
	if err := p.Add(ctx, []byte("b"), "owner-1"); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected 1 flush at record bound, got %d", sink.count())
	}
	if len(sink.batches[0].Records) != 2 {
		t.Fatalf("expected 2 records in batch, got %d", len(sink.batches[0].Records))
	}
}

func TestNoBatchExceedsRecordOrByteBound(t *testing.T) {
	sink := &mockSink{}
	clock := clockwork.NewFakeClock()
	p := New(sink, nil, newTestMetrics(), clock, 100, 10, time.Minute)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := p.Add(ctx, []byte("abcd"), "owner-1"); err != nil {
			t.Fatal(err)
		}
	}
	p.Shutdown(ctx)

	for _, b := range sink.batches {
		if len(b.Records) > 100 {
			t.Fatalf("batch exceeded record bound: %d", len(b.Records))
		}
		if b.ApproxBytes > 10 {
			t.Fatalf("batch exceeded byte bound: %d", b.ApproxBytes)
		}
	}
}

func TestSingleOversizedRecordFlushesAlone(t *testing.T) {
	sink := &mockSink{}
	clock := clockwork.NewFakeClock()
	p := New(sink, nil, newTestMetrics(), clock, 100, 4, time.Minute)

	if err := p.Add(context.Background(), []byte("this-is-too-big"), "owner-1"); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 1 || len(sink.batches[0].Records) != 1 {
		t.Fatalf("expected a solo flush, got %+v", sink.batches)
	}
}

func TestShutdownForceFlushesRemainder(t *testing.T) {
	sink := &mockSink{}
	clock := clockwork.NewFakeClock()
	p := New(sink, nil, newTestMetrics(), clock, 100, 1<<20, time.Hour)

	p.Add(context.Background(), []byte("a"), "owner-1")
	if sink.count() != 0 {
		t.Fatalf("expected no flush before shutdown, got %d", sink.count())
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected shutdown to flush remaining batch, got %d", sink.count())
	}
}

type fakePressure struct{ size int }

func (f fakePressure) OptimalBatchSize(int) int { return f.size }

func TestMemoryPressureThrottlesEffectiveBatchSize(t *testing.T) {
	sink := &mockSink{}
	clock := clockwork.NewFakeClock()
	p := New(sink, fakePressure{size: 1}, newTestMetrics(), clock, 100, 1<<20, time.Minute)

	ctx := context.Background()
	p.Add(ctx, []byte("a"), "owner-1")
	if sink.count() != 1 {
		t.Fatalf("expected throttled batch size of 1 to flush immediately, got %d", sink.count())
	}
}
