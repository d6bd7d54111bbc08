package memorygovernor

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wifiloc/pipeline/config"
)

type fakeSampler struct{ usage float64 }

func (f *fakeSampler) Sample() (float64, error) { return f.usage, nil }

func baseConfig() config.MemoryManagement {
	return config.MemoryManagement{
		Enabled:                 true,
		MemoryPressureThreshold: 0.85,
		MemoryCheckIntervalMs:   time.Second,
		EnableBatchThrottling:   true,
		MinThrottledBatchSize:   10,
	}
}

func TestPressureFlagSetsAboveThreshold(t *testing.T) {
	sampler := &fakeSampler{usage: 0.9}
	clock := clockwork.NewFakeClock()
	g := New(baseConfig(), sampler, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	waitForCondition(t, func() bool { return g.Pressured() })
}

func TestPressureFlagClearsWithHysteresis(t *testing.T) {
	sampler := &fakeSampler{usage: 0.9}
	clock := clockwork.NewFakeClock()
	g := New(baseConfig(), sampler, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	waitForCondition(t, func() bool { return g.Pressured() })

	// A dip that stays within the hysteresis margin must not clear the flag.
	sampler.usage = 0.82
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)
	if !g.Pressured() {
		t.Fatal("expected pressure flag to remain set within hysteresis band")
	}

	sampler.usage = 0.5
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	waitForCondition(t, func() bool { return !g.Pressured() })
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestOptimalBatchSizeUnthrottledWhenNotPressured(t *testing.T) {
	g := New(baseConfig(), &fakeSampler{usage: 0.1}, clockwork.NewFakeClock())
	if got := g.OptimalBatchSize(500); got != 500 {
		t.Fatalf("expected unthrottled size 500, got %d", got)
	}
}

func TestOptimalBatchSizeThrottlesUnderPressure(t *testing.T) {
	cfg := baseConfig()
	g := New(cfg, &fakeSampler{usage: 0.95}, clockwork.NewFakeClock())
	g.sampleOnce()

	got := g.OptimalBatchSize(500)
	if got >= 500 {
		t.Fatalf("expected throttled size below default, got %d", got)
	}
	if got < cfg.MinThrottledBatchSize {
		t.Fatalf("expected size floored at %d, got %d", cfg.MinThrottledBatchSize, got)
	}
}

func TestOptimalBatchSizeRespectsMinFloor(t *testing.T) {
	cfg := baseConfig()
	cfg.MinThrottledBatchSize = 50
	g := New(cfg, &fakeSampler{usage: 0.999}, clockwork.NewFakeClock())
	g.sampleOnce()

	if got := g.OptimalBatchSize(60); got < 50 {
		t.Fatalf("expected floor of 50, got %d", got)
	}
}

func TestDisabledGovernorNeverThrottles(t *testing.T) {
	cfg := baseConfig()
	cfg.Enabled = false
	g := New(cfg, &fakeSampler{usage: 0.99}, clockwork.NewFakeClock())
	g.sampleOnce()
	if got := g.OptimalBatchSize(500); got != 500 {
		t.Fatalf("expected disabled governor to never throttle, got %d", got)
	}
}
