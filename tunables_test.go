package fairsched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTunablesParsesFirstTwoIntegers(t *testing.T) {
	got, err := LoadTunables([]byte("min_granularity=3, epoch=15ms"), 1)
	require.NoError(t, err)
	assert.Equal(t, Tunables{SchedMinGranularityTicks: 3, DefaultEpochLengthTicks: 15}, got)
}

func TestLoadTunablesScalesByTicksPerMillisecond(t *testing.T) {
	got, err := LoadTunables([]byte("3 15"), 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(3000), got.SchedMinGranularityTicks)
	assert.Equal(t, uint64(15000), got.DefaultEpochLengthTicks)
}

func TestLoadTunablesIgnoresExtraTrailingNumbers(t *testing.T) {
	got, err := LoadTunables([]byte("4;20;999;999"), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), got.SchedMinGranularityTicks)
	assert.Equal(t, uint64(20), got.DefaultEpochLengthTicks)
}

func TestLoadTunablesErrorsOnTooFewIntegers(t *testing.T) {
	_, err := LoadTunables([]byte("only-one=7"), 1)
	require.Error(t, err)
}

func TestLoadTunablesErrorsOnNoIntegers(t *testing.T) {
	_, err := LoadTunables([]byte("garbage, no numbers here"), 1)
	require.Error(t, err)
}

func TestSetSchedParametersPublishesOnceThenPanics(t *testing.T) {
	beforeMin := schedMinGranularityTicks()
	beforeEpoch := defaultEpochLengthTicks()
	defer func() {
		globalTunables.SchedMinGranularityTicks = beforeMin
		globalTunables.DefaultEpochLengthTicks = beforeEpoch
	}()

	assert.Panics(t, func() {
		SetSchedParameters(7, 50)
		SetSchedParameters(8, 60)
	})
	assert.Equal(t, uint64(7), schedMinGranularityTicks())
	assert.Equal(t, uint64(50), defaultEpochLengthTicks())
}
