// Package fairsched implements a per-CPU fair-share thread scheduler: an
// intrusive vRuntime-ordered ready set, epoch/granularity preemption, and
// suspend/resume built on real goroutines parked and readied through the
// Go runtime's own scheduler internals.
package fairsched
