// guard.go: per-slot reader counters with RAII release.
//
// The registry is lock-free: a fixed array of atomic counters, one per
// slot, giving readers a zero-lock hot path and giving Rotate a single
// linearisation point to check against.

package storage

import (
	"sync/atomic"

	"github.com/onurtuna/oasisnvr/storagemetrics"
)

// ReadGuardRegistry holds one atomic reader counter per pool slot. It is
// shared by reference between the ChunkPool (which calls HasReaders during
// Rotate) and every reader caller (which calls Acquire before reading a
// slot's bytes).
//
// All operations use sequentially-consistent atomics (Go's default for
// sync/atomic), giving Rotate a single linearisation point against reader
// entry.
type ReadGuardRegistry struct {
	counters []atomic.Int64
	total    atomic.Int64
	metrics  *storagemetrics.Collector
}

// NewReadGuardRegistry creates a registry sized for numSlots pool slots,
// all counters starting at zero.
func NewReadGuardRegistry(numSlots int) *ReadGuardRegistry {
	return &ReadGuardRegistry{counters: make([]atomic.Int64, numSlots)}
}

// SetMetrics attaches a metrics collector; ActiveGuardCount is updated on
// every Acquire/Release once set. Safe to call once before any guards are
// taken.
func (r *ReadGuardRegistry) SetMetrics(m *storagemetrics.Collector) {
	r.metrics = m
}

// Guard is an RAII token returned by Acquire. Release must be called at
// least once, on every exit path — normal completion, error, or
// cancellation — which callers typically ensure with `defer guard.Release()`
// immediately after a successful Acquire.
type Guard struct {
	registry *ReadGuardRegistry
	slot     int
	released atomic.Bool
}

// Acquire atomically increments slot's reader counter and returns a scoped
// token. The caller must hold the returned Guard for the duration of its
// read and then call Release.
func (r *ReadGuardRegistry) Acquire(slot int) *Guard {
	r.counters[slot].Add(1)
	total := r.total.Add(1)
	if r.metrics != nil {
		r.metrics.ActiveGuardCount.Set(float64(total))
	}
	return &Guard{registry: r, slot: slot}
}

// Release decrements the slot's reader counter. Safe to call more than
// once; only the first call has an effect, so a deferred Release paired
// with an explicit early Release is harmless.
func (g *Guard) Release() {
	if g.released.CompareAndSwap(false, true) {
		g.registry.counters[g.slot].Add(-1)
		total := g.registry.total.Add(-1)
		if g.registry.metrics != nil {
			g.registry.metrics.ActiveGuardCount.Set(float64(total))
		}
	}
}

// HasReaders reports whether slot currently has any outstanding guards.
func (r *ReadGuardRegistry) HasReaders(slot int) bool {
	return r.counters[slot].Load() > 0
}

// ReaderCount returns the current number of outstanding guards on slot,
// mainly for metrics and tests.
func (r *ReadGuardRegistry) ReaderCount(slot int) int64 {
	return r.counters[slot].Load()
}
