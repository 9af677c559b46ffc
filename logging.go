package fairsched

import (
	"io"

	"github.com/rs/zerolog"
)

// NopLogger returns a logger that discards every record, for passing to
// New when the caller doesn't care about scheduler trace output.
func NopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// NewLogger builds a debug-level zerolog.Logger writing to w, console-
// formatted, for local development use against a running scheduler.
// Enqueue, switchThread and postResume each emit one debug record through
// whichever logger a PerCpuScheduler was constructed with; Suspend, Resume,
// Preempt and Terminate are traced through the records of those calls.
func NewLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).
		Level(zerolog.DebugLevel).
		With().
		Timestamp().
		Logger()
}
