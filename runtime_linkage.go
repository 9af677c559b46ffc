package fairsched

import (
	"unsafe"
	_ "unsafe"
)

// This file links against unexported Go runtime scheduler internals so
// that the stack-switch shim (switchThread in scheduler.go, NewThread in
// thread.go) can park and ready the real goroutines backing scheduled threads with minimal overhead, instead of funnelling
// every suspend/resume through a channel or a runtime.Gosched() spin loop.
// The technique and most of the symbol set are taken directly from the
// teacher repository's lib_runtime_linkage.go.

// g status values, mirrors runtime's _Grunning/_Gwaiting.
const (
	gRunning = 2
	gWaiting = 4
)

//go:linkname getg runtime.getg
func getg() unsafe.Pointer

// GetG returns the calling goroutine's runtime *g as an opaque pointer.
func GetG() unsafe.Pointer { return getg() }

//go:linkname goReady runtime.goready
func goReady(gp unsafe.Pointer, traceskip int)

//go:linkname mcall runtime.mcall
func mcall(fn func(unsafe.Pointer))

//go:linkname readgstatus runtime.readgstatus
func readgstatus(gp unsafe.Pointer) uint32

//go:linkname casgstatus runtime.casgstatus
func casgstatus(gp unsafe.Pointer, oldval, newval uint32)

//go:linkname dropg runtime.dropg
func dropg()

//go:linkname schedule runtime.schedule
func schedule()

//go:linkname runtimeCanSpin sync.runtime_canSpin
func runtimeCanSpin(i int) bool

//go:linkname runtimeDoSpin sync.runtime_doSpin
func runtimeDoSpin()

//go:linkname runtimeNanotime sync.runtime_nanotime
func runtimeNanotime() int64

// fastPark transitions the calling goroutine (gp, obtained via mcall) from
// running to waiting and hands control back to the Go scheduler. It never
// returns to its caller directly; execution resumes at the parkSelf call
// site once another goroutine calls readyGoroutine on gp.
func fastPark(gp unsafe.Pointer) {
	dropg()
	casgstatus(gp, gRunning, gWaiting)
	schedule()
}

// recordSelf stashes the calling goroutine's *g into *stackPointer. Callers
// must record before parking -- the same enqueue-then-park order the
// teacher's ThreadParker.Park uses -- so that a concurrent readyGoroutine
// spin-wait has something to find once the park actually takes effect.
func recordSelf(stackPointer *unsafe.Pointer) {
	*stackPointer = GetG()
}

// parkSelf parks the calling goroutine. It never returns to its caller
// directly; execution resumes at the parkSelf call site once some future
// readyGoroutine call on this goroutine's recorded *g wakes it back up.
func parkSelf() {
	mcall(fastPark)
}

// readyGoroutine resumes a goroutine previously suspended with parkSelf.
// It spin-waits until the runtime has finished transitioning gp to
// _Gwaiting before calling goready, to close the race window between
// recording *g and the park actually taking effect -- the same race the
// teacher's ThreadParker.Ready closes against ThreadParker.Park.
func readyGoroutine(gp unsafe.Pointer) {
	iter := 0
	for readgstatus(gp) != gWaiting {
		if runtimeCanSpin(iter) {
			iter++
			runtimeDoSpin()
		} else {
			goyield()
		}
	}
	goReady(gp, 1)
}

//go:linkname goyield runtime.goyield
func goyield()
