package fairsched

import "runtime"

// idleLoop is the entry body of every CPU's idle thread (spec.md §4.4).
// It never returns: a CPU's idle thread exists for the lifetime of its
// scheduler, soaking up cycles whenever the ready set has nothing better
// queued and yielding back as soon as preempt or a wakeUp hook finds real
// work.
func (s *PerCpuScheduler) idleLoop() {
	for {
		s.Preempt()
		runtime.Gosched()
	}
}
