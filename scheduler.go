package fairsched

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// MemoryContext is an opaque placeholder for the address space a thread
// runs in. Address-space setup and switching is explicitly out of scope
// (spec.md §1); this type exists only so PerCpuScheduler's control flow
// can carry a memory context through switchThread/postResume the way
// spec.md §6 describes, without this package pretending to implement
// paging.
type MemoryContext struct{}

// DefaultMemoryContext is the zero-value memory context used when the
// caller does not supply one.
var DefaultMemoryContext = MemoryContext{}

// PerCpuScheduler owns one CPU's ready set and dispatch policy. Exactly
// one goroutine -- whichever scheduled thread is "current" -- ever drives
// a given PerCpuScheduler's suspend/preempt/switchThread calls at a time;
// enqueue/resume may be called concurrently from any other CPU's thread.
type PerCpuScheduler struct {
	id  int
	log zerolog.Logger

	readyLock sync.Mutex
	readySet  OrderedSet
	readyCount uint64

	minvRuntime                 uint64
	epochLengthTicks            uint64
	oneVirtualTimeUnit          uint64
	previousTimerInterruptTicks uint64
	totalPriorityOfTasks        uint64

	preemption uint64
	resumption uint64

	idleThread *Thread
	partner    *PerCpuScheduler

	current *Thread

	// wakeUp is invoked (spec.md §4.2 step 5) when enqueue admits a
	// thread onto a CPU whose ready set had gone empty. Defaults to a
	// no-op; set it to integrate with whatever external idle-poke
	// mechanism a host application uses.
	wakeUp func(*PerCpuScheduler)

	timeSource TimeSource
}

// New constructs a per-CPU scheduler with its idle thread admitted to the
// ready set (spec.md §4.2 Construction). readyCount is 1 and the idle
// thread is the ready set's sole (and therefore minimum) member; no
// thread is current yet until Start is called, matching Scenario 1.
func New(id int, timeSource TimeSource, log zerolog.Logger) *PerCpuScheduler {
	s := &PerCpuScheduler{
		id:         id,
		log:        log.With().Int("cpu", id).Logger(),
		wakeUp:     func(*PerCpuScheduler) {},
		timeSource: timeSource,
	}
	s.partner = s

	idle := NewThread(s, idlePriority, fmt.Sprintf("cpu%d-idle", id), s.idleLoop)
	idle.newThreadCreated = true
	idle.vRuntime = 0
	s.totalPriorityOfTasks = uint64(idlePriority)

	s.idleThread = idle
	s.readySet.Insert(idle)
	s.readyCount = 1

	return s
}

// Start performs this CPU's first dispatch, handing the "current" role to
// its idle thread. Analogous to the boot stack's initial handoff in the
// original kernel: whatever goroutine calls Start stands in for that boot
// context and never runs scheduler code again afterwards. Must be called
// exactly once, before Enqueue/Preempt/Suspend/Terminate are used.
func (s *PerCpuScheduler) Start() {
	s.readyLock.Lock()
	next := s.readySet.PopMin()
	s.readyCount--
	s.readyLock.Unlock()

	s.current = next
	next.runningOn = s
	next.setState(Running)
	readyGoroutine(next.stackPointer)
}

// SetPartner records a sibling scheduler reference for future migration
// hooks (spec.md §3); the base scheduler never consults it itself.
func (s *PerCpuScheduler) SetPartner(other *PerCpuScheduler) {
	s.partner = other
}

// SetWakeUp installs the hook invoked when this CPU transitions from an
// empty ready set to having work (spec.md §4.2 step 5).
func (s *PerCpuScheduler) SetWakeUp(fn func(*PerCpuScheduler)) {
	s.wakeUp = fn
}

// ReadyCount returns the current cardinality of the ready set (P1).
func (s *PerCpuScheduler) ReadyCount() uint64 {
	s.readyLock.Lock()
	defer s.readyLock.Unlock()
	return s.readyCount
}

// EpochLengthTicks returns the current epoch length (P2).
func (s *PerCpuScheduler) EpochLengthTicks() uint64 {
	return atomic.LoadUint64(&s.epochLengthTicks)
}

// TotalPriorityOfTasks returns totalPriorityOfTasks (P3).
func (s *PerCpuScheduler) TotalPriorityOfTasks() uint64 {
	return atomic.LoadUint64(&s.totalPriorityOfTasks)
}

// MinVRuntime returns the scheduler's current renormalization baseline.
func (s *PerCpuScheduler) MinVRuntime() uint64 {
	return atomic.LoadUint64(&s.minvRuntime)
}

// Current returns the thread currently running on this CPU (P4: it is
// never a member of the ready set).
func (s *PerCpuScheduler) Current() *Thread {
	return s.current
}

// Enqueue admits t to this scheduler's ready set (spec.md §4.2 enqueue).
func (s *PerCpuScheduler) Enqueue(t *Thread) {
	if t.priority < 0 || t.priority >= maxPriority {
		panic("fairsched: enqueue with priority out of range")
	}

	s.readyLock.Lock()
	if !t.newThreadCreated {
		atomic.AddUint64(&s.totalPriorityOfTasks, uint64(t.priority))
		t.vRuntime = atomic.LoadUint64(&s.minvRuntime)
		t.newThreadCreated = true
	}
	wake := s.readyCount == 0
	s.readySet.Insert(t)
	s.readyCount++
	s.readyLock.Unlock()

	s.log.Debug().Str("thread", t.name).Uint64("vruntime", t.vRuntime).Msg("enqueue")

	s.updateEpochLength()
	if wake {
		s.wakeUp(s)
	}
}

// updateEpochLength recalculates epochLengthTicks from the current ready
// count (spec.md §4.2 updateEpochLength, invariant I7). Deliberately
// unlocked: spec.md documents the resulting race against concurrent
// enqueue/suspend as benign since only preempt (on this CPU's own current
// thread) consumes the value. Atomics keep that benign race well-defined
// under Go's memory model instead of merely assumed-safe as on the
// original's single interrupt-disabled core.
func (s *PerCpuScheduler) updateEpochLength() {
	rc := s.ReadyCount()
	epoch := defaultEpochLengthTicks()
	if g := rc * schedMinGranularityTicks(); g > epoch {
		epoch = g
	}
	atomic.StoreUint64(&s.epochLengthTicks, epoch)
}

// Preempt is the timer-ISR entry point (spec.md §4.2 preempt). It must be
// called only by the goroutine currently backing this CPU's running
// thread -- i.e. cooperatively, at a safe point -- since Go offers no
// asynchronous cross-goroutine preemption hook of its own.
func (s *PerCpuScheduler) Preempt() {
	curr := s.current
	if atomic.LoadUint64(&s.epochLengthTicks) == 0 {
		s.updateEpochLength()
	}

	total := atomic.LoadUint64(&s.totalPriorityOfTasks)
	epoch := atomic.LoadUint64(&s.epochLengthTicks)
	var oneUnit uint64
	if total > 0 {
		oneUnit = epoch / total
	} else {
		oneUnit = epoch
	}
	atomic.StoreUint64(&s.oneVirtualTimeUnit, oneUnit)

	now := s.timeSource.NowTicks()
	prev := atomic.SwapUint64(&s.previousTimerInterruptTicks, now)
	delta := now - prev

	if oneUnit > 0 {
		curr.vRuntime += (delta / oneUnit) * uint64(curr.priority)
	}

	s.readyLock.Lock()
	empty := s.readySet.Empty()
	var leftmost *Thread
	if !empty {
		leftmost = s.readySet.ReadMin()
	}
	s.readyLock.Unlock()

	if empty {
		return
	}

	if curr.vRuntime > schedMinGranularityTicks() && leftmost.vRuntime < curr.vRuntime {
		atomic.StoreUint64(&s.minvRuntime, leftmost.vRuntime)
		s.switchThread(s)
	}
}

// locker is the minimal interface switchThread/suspend need from a
// pass-through lock: release after committing to the switch, before the
// actual goroutine park/ready exchange (spec.md §5).
type locker interface {
	Unlock()
}

// switchThread is the core dispatch primitive (spec.md §4.2 switchThread).
func (s *PerCpuScheduler) switchThread(target *PerCpuScheduler, locks ...locker) {
	atomic.AddUint64(&s.preemption, 1)

	s.readyLock.Lock()
	next := s.readySet.PopMin()
	if next != nil {
		s.readyCount--
	}
	s.readyLock.Unlock()

	if next == nil {
		if target == nil && len(locks) == 0 {
			return
		}
		panic("fairsched: switchThread has no ready candidate but was asked to switch while holding pass-through locks")
	}
	atomic.AddUint64(&s.resumption, 1)

	curr := s.current
	if curr == nil || curr == next {
		panic("fairsched: switchThread invariant violated: current thread missing or equal to next thread")
	}

	if target != nil {
		curr.nextScheduler = target
	} else {
		curr.nextScheduler = s
	}

	for _, lk := range locks {
		lk.Unlock()
	}

	s.log.Debug().Str("from", curr.name).Str("to", next.name).Bool("yield", target != nil).Msg("switch thread")

	ctx := DefaultMemoryContext
	s.current = next
	next.runningOn = s
	next.setState(Running)
	readyGoroutine(next.stackPointer)

	recordSelf(&curr.stackPointer)
	if target != nil {
		// This is a yield/preempt, not a suspend or terminate: curr is
		// merely off-CPU, not Blocked or Finishing. postSwitch hook:
		// re-enqueue it onto target.
		curr.setState(Ready)
		resume(curr)
	}
	parkSelf()

	// Resumed: curr is executing again, possibly much later and possibly
	// having been re-admitted onto a different scheduler in the interim.
	// A preempted curr gets here once dispatched again, and so does a
	// suspended one after Resume re-admits it and some switchThread
	// dispatches it. A terminating curr never reaches this point --
	// nothing calls readyGoroutine on a Finishing thread's stackPointer
	// again.
	curr.setState(Running)
	s.postResume(false, curr, ctx)
	if curr.State() == Cancelled {
		curr.setState(Finishing)
		curr.runningOn.switchThread(nil)
	}
}

// postResume performs the runtime-side bookkeeping after every switch
// (spec.md §6 postResume). Address-space restoration is out of scope;
// this only traces.
func (s *PerCpuScheduler) postResume(firstEntry bool, prev *Thread, ctx MemoryContext) {
	s.log.Debug().Str("thread", prev.name).Bool("first_entry", firstEntry).Msg("post resume")
}

// Suspend removes the current thread from the ready set (if present) and
// switches away, releasing lk after committing to the switch but before
// the goroutine park/ready exchange (spec.md §4.2 suspend).
func (s *PerCpuScheduler) Suspend(lk locker) {
	s.suspend(lk)
}

// SuspendTwo is the two-lock overload of Suspend (spec.md §6
// `suspend(lock1, lock2)`).
func (s *PerCpuScheduler) SuspendTwo(lk1, lk2 locker) {
	s.suspend(lk1, lk2)
}

func (s *PerCpuScheduler) suspend(locks ...locker) {
	curr := s.current
	curr.setState(Blocked)

	s.readyLock.Lock()
	s.readySet.Remove(curr)
	s.readyLock.Unlock()

	curr.vRuntime -= atomic.LoadUint64(&s.minvRuntime)

	s.updateEpochLength()
	s.switchThread(nil, locks...)
}

// resume re-admits t onto t.nextScheduler, or its original affinity if it
// has never run before (spec.md §6 static resume; see DESIGN.md for why
// this package resolves "the current CPU" fallback as t.affinity rather
// than a goroutine-local current-CPU lookup Go has no equivalent of).
func resume(t *Thread) {
	target := t.nextScheduler
	if target == nil {
		target = t.affinity
	}
	t.vRuntime += atomic.LoadUint64(&target.minvRuntime)
	target.Enqueue(t)
}

// Resume is the public entry point for re-admitting a previously
// suspended thread (spec.md §6 `static resume(thread)`).
func Resume(t *Thread) {
	resume(t)
}

// Terminate transitions the current thread to Finishing and switches away
// permanently; it never returns (spec.md §4.2 terminate).
func (s *PerCpuScheduler) Terminate() {
	curr := s.current
	if curr.State() == Blocked {
		panic("fairsched: terminate called while thread is Blocked")
	}
	curr.setState(Finishing)
	s.switchThread(nil)
	panic("fairsched: terminate returned, unreachable")
}
