package fairsched

import (
	"sync/atomic"
	"unsafe"
)

// Priority levels. Zero is the highest priority; idlePriority is the
// distinguished lowest slot reserved for a CPU's idle thread. The original
// scheduler describes itself as "very simple N-class prio scheduling"
// (original_source/runtime/Scheduler.h) rather than a wide priority range,
// and the default tunables (tunables.go) require idlePriority+1 to stay
// well under defaultEpochLengthTicks for oneVirtualTimeUnit to come out
// nonzero in the idle-only and single-worker cases spec.md Scenario 2
// exercises; 8 classes keeps both properties comfortably true.
const (
	maxPriority  = 8
	idlePriority = maxPriority - 1
)

// ThreadState is one of the states a scheduled thread can be in.
type ThreadState int32

const (
	Ready ThreadState = iota
	Running
	Blocked
	Cancelled
	Finishing
)

// Thread is a runnable unit as seen by the scheduler. Its execution is
// backed by a real goroutine parked and readied via the runtime linkage in
// runtime_linkage.go; stackPointer holds that goroutine's opaque *g.
type Thread struct {
	// name is only ever read for trace logging.
	name string

	priority int
	vRuntime uint64

	affinity      *PerCpuScheduler
	nextScheduler *PerCpuScheduler

	// runningOn is the scheduler that most recently dispatched this
	// thread, i.e. the one whose current == t right now. Only the
	// goroutine backing t itself reads this (to find out who to call
	// Terminate on); every other field on Thread may be touched from
	// other goroutines under the owning scheduler's readyLock.
	runningOn *PerCpuScheduler

	state int32 // ThreadState, accessed via State()/setState()

	newThreadCreated bool

	// stackPointer is the parked goroutine backing this thread. Written
	// only by the stack-switch shim (recordSelf, before each parkSelf).
	stackPointer unsafe.Pointer

	// seq is the admission sequence, used purely as the ordered set's
	// tie-break key; no invariant depends on its concrete values.
	seq uint64

	entry func()

	// parked is closed once the backing goroutine has recorded its *g into
	// stackPointer, just before its initial park; from then on the thread
	// is safe to hand to a scheduler's ready set, because readyGoroutine
	// waits for the park to take effect.
	parked chan struct{}

	// intrusive red-black tree linkage, see orderedset.go. Untouched
	// while inTree is false.
	left, right, parent *Thread
	red                  bool
	inTree               bool
}

// State returns the thread's current state.
func (t *Thread) State() ThreadState {
	return ThreadState(atomic.LoadInt32(&t.state))
}

// setState moves t to s. A Cancelled thread only ever moves on to
// Finishing, so the mark survives until switchThread observes it.
func (t *Thread) setState(s ThreadState) {
	for {
		old := atomic.LoadInt32(&t.state)
		if ThreadState(old) == Cancelled && s != Finishing {
			return
		}
		if atomic.CompareAndSwapInt32(&t.state, old, int32(s)) {
			return
		}
	}
}

// Cancel marks t for cancellation. The thread observes this the next time
// it returns from a switch (see switchThread) and self-terminates; there
// is no asynchronous preemption of a running thread's cancellation.
func (t *Thread) Cancel() {
	t.setState(Cancelled)
}

// Priority returns the thread's scheduling priority.
func (t *Thread) Priority() int { return t.priority }

// VRuntime returns the thread's accumulated virtual runtime.
func (t *Thread) VRuntime() uint64 { return t.vRuntime }

var globalSeq uint64

func nextSeq() uint64 {
	return atomic.AddUint64(&globalSeq, 1)
}

// less implements the ready set's ordering key: vRuntime ascending, ties
// broken by admission sequence. No scheduling decision depends on this
// tiebreak beyond relative vRuntime ordering; only the ordered-set and
// Thread.less unit tests pin it.
func (t *Thread) less(other *Thread) bool {
	if t.vRuntime != other.vRuntime {
		return t.vRuntime < other.vRuntime
	}
	return t.seq < other.seq
}

// NewThread creates a thread affined to s running entry. The backing
// goroutine parks itself immediately and does not run entry until the
// scheduler first dispatches it -- NewThread blocks until the goroutine
// has recorded its *g and is about to park, so the returned Thread is
// always safe to admit with PerCpuScheduler.Enqueue (readyGoroutine waits
// for the park itself to take effect).
func NewThread(affinity *PerCpuScheduler, priority int, name string, entry func()) *Thread {
	if priority < 0 || priority >= maxPriority {
		panic("fairsched: priority out of range")
	}
	t := &Thread{
		name:     name,
		priority: priority,
		affinity: affinity,
		entry:    entry,
		seq:      nextSeq(),
		parked:   make(chan struct{}),
	}

	go func() {
		recordSelf(&t.stackPointer)
		close(t.parked)
		parkSelf()

		// Resumed for the first time: this goroutine is now the
		// scheduler's current thread on whatever CPU dispatched it.
		t.entry()
		t.runningOn.Terminate()
	}()

	<-t.parked
	return t
}
