package fairsched

import (
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
)

// Tunables holds the two knobs spec.md §6 describes as GlobalTunables:
// preempt switches away only once the current thread's vRuntime exceeds
// schedMinGranularityTicks, and defaultEpochLengthTicks is the epoch used
// while readyCount*schedMinGranularityTicks does not exceed it.
type Tunables struct {
	SchedMinGranularityTicks uint64
	DefaultEpochLengthTicks  uint64
}

const (
	builtinSchedMinGranularityTicks = 4
	builtinDefaultEpochLengthTicks  = 20
)

var (
	globalTunables = Tunables{
		SchedMinGranularityTicks: builtinSchedMinGranularityTicks,
		DefaultEpochLengthTicks:  builtinDefaultEpochLengthTicks,
	}
	tunablesPublished uint32
	tunablesMu        sync.Mutex
)

// SetSchedParameters publishes the scheduling tunables once, at boot. Every
// PerCpuScheduler reads these through schedMinGranularityTicks and
// defaultEpochLengthTicks (spec.md §6 invariant: published once, read many
// times). Calling it a second time panics rather than silently
// re-tuning a live set of schedulers out from under them.
func SetSchedParameters(minGranularityTicks, epochLengthTicks uint64) {
	tunablesMu.Lock()
	defer tunablesMu.Unlock()
	if !atomic.CompareAndSwapUint32(&tunablesPublished, 0, 1) {
		panic("fairsched: SetSchedParameters called more than once")
	}
	globalTunables.SchedMinGranularityTicks = minGranularityTicks
	globalTunables.DefaultEpochLengthTicks = epochLengthTicks
}

func schedMinGranularityTicks() uint64 {
	return atomic.LoadUint64(&globalTunables.SchedMinGranularityTicks)
}

func defaultEpochLengthTicks() uint64 {
	return atomic.LoadUint64(&globalTunables.DefaultEpochLengthTicks)
}

var tunablesBlobPattern = regexp.MustCompile(`\d+`)

// LoadTunables parses a config blob of the form the original kernel's boot
// command line carries: two decimal integers, in
// (minGranularity, epochLength) order, separated by any run of
// non-digit characters (whitespace, commas, an "=" sign, anything). Values
// are given in milliseconds and converted to ticks via ticksPerMillisecond.
// A blob with fewer than two integers is a normal error, not a panic --
// unlike the scheduler's own invariant violations, a malformed boot
// parameter is an expected, recoverable failure mode.
func LoadTunables(blob []byte, ticksPerMillisecond uint64) (Tunables, error) {
	matches := tunablesBlobPattern.FindAll(blob, -1)
	if len(matches) < 2 {
		return Tunables{}, fmt.Errorf("fairsched: config blob has %d integers, need at least 2", len(matches))
	}

	var vals [2]uint64
	for i := 0; i < 2; i++ {
		var v uint64
		for _, c := range matches[i] {
			v = v*10 + uint64(c-'0')
		}
		vals[i] = v
	}

	return Tunables{
		SchedMinGranularityTicks: vals[0] * ticksPerMillisecond,
		DefaultEpochLengthTicks:  vals[1] * ticksPerMillisecond,
	}, nil
}
