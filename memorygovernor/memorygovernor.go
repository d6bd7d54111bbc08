// Package memorygovernor implements MemoryGovernor: periodic memory-pressure
// sampling that flips a hysteresis-guarded pressure flag and suggests a
// throttled batch size to batch.Publisher. Sampling uses gopsutil, following
// the same resource-pressure pattern the sibling examples use it for.
package memorygovernor

import (
	"context"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/wifiloc/pipeline/config"
)

// Sampler reports the current fraction of memory in use, in [0, 1].
// The default implementation reads system virtual memory via gopsutil;
// tests inject a deterministic fake.
type Sampler interface {
	Sample() (usedFraction float64, err error)
}

// SystemSampler samples system-wide memory usage via gopsutil/v3/mem.
type SystemSampler struct{}

func (SystemSampler) Sample() (float64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return v.UsedPercent / 100, nil
}

// hysteresisMargin is the gap below memoryPressureThreshold the usage must
// fall to before the pressure flag clears, preventing flapping at the
// threshold boundary.
const hysteresisMargin = 0.05

// Governor periodically samples memory pressure and exposes an
// OptimalBatchSize hint consumed by batch.Publisher.
type Governor struct {
	sampler Sampler
	clock   clockwork.Clock
	cfg     config.MemoryManagement

	pressured atomic.Bool
	lastUsage atomic.Uint64 // usage fraction * 1e9, for monotonic atomic storage
}

// New constructs a Governor. If cfg.Enabled is false, the Governor never
// reports pressure and OptimalBatchSize is always the identity function.
func New(cfg config.MemoryManagement, sampler Sampler, clock clockwork.Clock) *Governor {
	return &Governor{sampler: sampler, clock: clock, cfg: cfg}
}

// Run samples memory usage on cfg.MemoryCheckIntervalMs until ctx is
// cancelled. Intended to run in its own goroutine from the composition root.
func (g *Governor) Run(ctx context.Context) {
	if !g.cfg.Enabled {
		return
	}
	ticker := g.clock.NewTicker(g.cfg.MemoryCheckIntervalMs)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			g.sampleOnce()
		}
	}
}

func (g *Governor) sampleOnce() {
	usage, err := g.sampler.Sample()
	if err != nil {
		return
	}
	g.storeUsage(usage)

	switch {
	case usage > g.cfg.MemoryPressureThreshold:
		g.pressured.Store(true)
	case usage < g.cfg.MemoryPressureThreshold-hysteresisMargin:
		g.pressured.Store(false)
	}
}

func (g *Governor) storeUsage(usage float64) {
	if usage < 0 {
		usage = 0
	}
	g.lastUsage.Store(uint64(usage * 1e9))
}

func (g *Governor) currentUsage() float64 {
	return float64(g.lastUsage.Load()) / 1e9
}

// Pressured reports whether the most recent sample exceeded the configured
// threshold and hasn't yet fallen back below threshold-hysteresisMargin.
func (g *Governor) Pressured() bool {
	return g.pressured.Load()
}

// OptimalBatchSize implements batch.PressureSource. When not under pressure
// or throttling is disabled, it returns defaultSize unchanged. Under
// pressure, it scales defaultSize down by 1/(usage/threshold), floored at
// cfg.MinThrottledBatchSize.
func (g *Governor) OptimalBatchSize(defaultSize int) int {
	if !g.cfg.Enabled || !g.cfg.EnableBatchThrottling || !g.pressured.Load() {
		return defaultSize
	}

	usage := g.currentUsage()
	if usage <= 0 {
		return defaultSize
	}

	factor := g.cfg.MemoryPressureThreshold / usage
	minFactor := float64(g.cfg.MinThrottledBatchSize) / float64(defaultSize)
	if factor > 1 {
		factor = 1
	}
	if factor < minFactor {
		factor = minFactor
	}

	size := int(float64(defaultSize) * factor)
	if size < g.cfg.MinThrottledBatchSize {
		size = g.cfg.MinThrottledBatchSize
	}
	if size > defaultSize {
		size = defaultSize
	}
	return size
}
