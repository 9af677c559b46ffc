package fairsched

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireClosed(t *testing.T, ch <-chan struct{}, d time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(d):
		t.Fatalf("timed out waiting for %s", msg)
	}
}

func TestFreshSchedulerIdleOnly(t *testing.T) {
	s := New(0, NewFakeTimeSource(), NopLogger())

	assert.Equal(t, uint64(1), s.ReadyCount())
	assert.Same(t, s.idleThread, s.readySet.ReadMin())
	assert.Equal(t, uint64(idlePriority), s.TotalPriorityOfTasks())
	assert.Nil(t, s.Current())
}

func TestEnqueuePreemptDispatchesReadyThread(t *testing.T) {
	ts := NewFakeTimeSource()
	s := New(0, ts, NopLogger())
	s.Start()

	started := make(chan struct{})
	done := make(chan struct{})
	worker := NewThread(s, 0, "worker", func() {
		close(started)
		<-done
	})

	s.Enqueue(worker)
	ts.Advance(10_000)

	requireClosed(t, started, 2*time.Second, "worker to start running")
	close(done)
}

func TestSuspendRemovesFromReadySetThenResumeReadmits(t *testing.T) {
	ts := NewFakeTimeSource()
	s := New(0, ts, NopLogger())
	s.Start()

	var mu sync.Mutex
	started := make(chan struct{})
	resumed := make(chan struct{})

	var worker *Thread
	worker = NewThread(s, 0, "worker", func() {
		mu.Lock()
		close(started)
		s.Suspend(&mu)
		close(resumed)
	})

	s.Enqueue(worker)
	ts.Advance(10_000)
	requireClosed(t, started, 2*time.Second, "worker to start and suspend")

	// Give the suspend call a moment to actually remove worker from the
	// ready set before asserting on it.
	time.Sleep(10 * time.Millisecond)
	require.False(t, worker.inTree)

	Resume(worker)
	ts.Advance(10_000)
	requireClosed(t, resumed, 2*time.Second, "worker to be resumed")
}

// TestSuspendResumeRenormalizesAcrossSchedulers drives spec.md Scenario 4's
// exact numbers: a thread suspended at vRuntime=100 on a CPU whose
// minvRuntime=80 is renormalized to 20, then resumed onto a *different*
// CPU whose minvRuntime=200 and renormalized to 220 -- its relative
// position (vRuntime - minvRuntime) is preserved across the migration.
func TestSuspendResumeRenormalizesAcrossSchedulers(t *testing.T) {
	ts1 := NewFakeTimeSource()
	s1 := New(0, ts1, NopLogger())
	s1.Start()

	ts2 := NewFakeTimeSource()
	s2 := New(1, ts2, NopLogger())
	s2.Start()
	atomic.StoreUint64(&s2.minvRuntime, 200)

	var mu sync.Mutex
	started := make(chan struct{})
	proceed := make(chan struct{})
	resumed := make(chan struct{})

	var worker *Thread
	worker = NewThread(s1, 0, "worker", func() {
		mu.Lock()
		close(started)
		<-proceed
		s1.Suspend(&mu)
		close(resumed)
	})

	s1.Enqueue(worker)
	ts1.Advance(10_000)
	requireClosed(t, started, 2*time.Second, "worker to start and lock mu")

	// Set up the exact pre-suspend state from Scenario 4 before letting
	// the worker actually call Suspend.
	worker.vRuntime = 100
	atomic.StoreUint64(&s1.minvRuntime, 80)
	close(proceed)

	time.Sleep(10 * time.Millisecond)
	require.False(t, worker.inTree)
	assert.Equal(t, uint64(20), worker.VRuntime())

	// Resume onto s2, a different scheduler than the one worker suspended
	// on, exercising the cross-CPU case I6/P5 exist for.
	worker.nextScheduler = s2
	Resume(worker)
	ts2.Advance(10_000)
	requireClosed(t, resumed, 2*time.Second, "worker to be resumed on the other scheduler")

	assert.Equal(t, uint64(220), worker.VRuntime())
}

func TestTerminatingThreadReturnsControlToIdle(t *testing.T) {
	ts := NewFakeTimeSource()
	s := New(0, ts, NopLogger())
	s.Start()

	ran := make(chan struct{})
	worker := NewThread(s, 0, "worker", func() {
		close(ran)
	})
	s.Enqueue(worker)
	ts.Advance(10_000)
	requireClosed(t, ran, 2*time.Second, "worker to run and terminate")

	// The scheduler must still be usable afterwards: a second thread can
	// be enqueued and dispatched normally.
	ran2 := make(chan struct{})
	worker2 := NewThread(s, 0, "worker2", func() {
		close(ran2)
	})
	s.Enqueue(worker2)
	ts.Advance(10_000)
	requireClosed(t, ran2, 2*time.Second, "second worker to run after the first terminated")
}
