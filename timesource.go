package fairsched

import "sync/atomic"

// TimeSource is the monotonic tick counter consumed by preempt for slice
// accounting (spec §6). No wall-clock relationship is assumed; ticks are
// whatever unit the caller's tunables are expressed in.
type TimeSource interface {
	NowTicks() uint64
}

// MonotonicTickSource derives ticks from the Go runtime's monotonic clock
// (reached the same way the teacher reaches runtime_nanotime), divided by
// a configurable nanoseconds-per-tick period. This stands in for the
// calibrated TSC-ticks-per-millisecond value the original kernel measures
// at boot (out of scope here, §1).
type MonotonicTickSource struct {
	nanosPerTick int64
}

// NewMonotonicTickSource builds a TimeSource where one tick equals
// nanosPerTick nanoseconds of wall time. nanosPerTick must be positive.
func NewMonotonicTickSource(nanosPerTick int64) *MonotonicTickSource {
	if nanosPerTick <= 0 {
		panic("fairsched: nanosPerTick must be positive")
	}
	return &MonotonicTickSource{nanosPerTick: nanosPerTick}
}

// NowTicks returns the current tick count.
func (m *MonotonicTickSource) NowTicks() uint64 {
	return uint64(runtimeNanotime()) / uint64(m.nanosPerTick)
}

// FakeTimeSource is a manually-advanced TimeSource for deterministic tests,
// letting preempt scenarios be driven exactly the way spec.md's scenarios
// specify ("simulate timer tick with delta = 20").
type FakeTimeSource struct {
	ticks uint64
}

// NewFakeTimeSource returns a FakeTimeSource starting at tick 0.
func NewFakeTimeSource() *FakeTimeSource {
	return &FakeTimeSource{}
}

// NowTicks returns the current simulated tick count.
func (f *FakeTimeSource) NowTicks() uint64 {
	return atomic.LoadUint64(&f.ticks)
}

// Advance moves the simulated clock forward by delta ticks and returns the
// new value.
func (f *FakeTimeSource) Advance(delta uint64) uint64 {
	return atomic.AddUint64(&f.ticks, delta)
}
