package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawFor returns the raw reading that converts to pct with the default calibration.
func rawFor(pct float64) int {
	return DefaultCalibDry - int(pct*float64(DefaultCalibDry-DefaultCalibWet)/100)
}

func TestAdcToPctBounds(t *testing.T) {
	pct, err := AdcToPct(3000, 3000, 1200)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pct)

	pct, err = AdcToPct(1200, 3000, 1200)
	require.NoError(t, err)
	assert.Equal(t, 100.0, pct)

	pct, err = AdcToPct(2100, 3000, 1200)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, pct, 1e-9)
}

func TestAdcToPctClampsOutOfRange(t *testing.T) {
	pct, err := AdcToPct(3000+500, 3000, 1200)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pct, "drier than dry bound")

	pct, err = AdcToPct(1200-500, 3000, 1200)
	require.NoError(t, err)
	assert.Equal(t, 100.0, pct, "wetter than wet bound")
}

func TestAdcToPctMonotonic(t *testing.T) {
	prev := 101.0
	for raw := 0; raw <= 4095; raw += 5 {
		pct, err := AdcToPct(raw, 3000, 1200)
		require.NoError(t, err)
		assert.LessOrEqual(t, pct, prev, "raw=%d", raw)
		assert.GreaterOrEqual(t, pct, 0.0)
		assert.LessOrEqual(t, pct, 100.0)
		prev = pct
	}
}

func TestAdcToPctInvertedSensor(t *testing.T) {
	// Sensors whose reading rises with moisture have dry < wet.
	pct, err := AdcToPct(900, 400, 1400)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, pct, 1e-9)
}

func TestAdcToPctDegenerate(t *testing.T) {
	_, err := AdcToPct(2000, 1500, 1500)
	assert.ErrorIs(t, err, ErrDegenerateCalibration)
}

func TestFilterAveragesSamplesSoFar(t *testing.T) {
	f := NewFilter(DefaultFilterSize, NewSettings())
	pcts := []float64{10, 20, 30, 40, 50, 60, 70, 80}

	var sum float64
	for i, p := range pcts {
		got, err := f.Sample(rawFor(p))
		require.NoError(t, err)
		sum += p
		assert.InDelta(t, sum/float64(i+1), got, 0.1, "after %d samples", i+1)
		assert.Equal(t, i+1, f.Len())
	}
}

func TestFilterWindowKeepsMostRecent(t *testing.T) {
	f := NewFilter(DefaultFilterSize, NewSettings())
	pcts := []float64{0, 0, 0, 0, 0, 0, 0, 0, 80, 80, 80}

	var got float64
	for _, p := range pcts {
		var err error
		got, err = f.Sample(rawFor(p))
		require.NoError(t, err)
	}
	// last 8 = five zeros + three 80s
	assert.InDelta(t, 3*80.0/8, got, 0.1)
	assert.Equal(t, DefaultFilterSize, f.Len())
	assert.Equal(t, got, f.Average())
}

func TestFilterSingleSample(t *testing.T) {
	f := NewFilter(DefaultFilterSize, NewSettings())
	got, err := f.Sample(rawFor(40))
	require.NoError(t, err)
	assert.InDelta(t, 40.0, got, 0.1)
}

func TestFilterDegenerateKeepsPreviousValue(t *testing.T) {
	s := NewSettings()
	f := NewFilter(DefaultFilterSize, s)

	before, err := f.Sample(rawFor(30))
	require.NoError(t, err)

	s.SetCalibWet(DefaultCalibDry)
	got, err := f.Sample(1000)
	assert.ErrorIs(t, err, ErrDegenerateCalibration)
	assert.Equal(t, before, got)
	assert.Equal(t, 1, f.Len(), "history untouched")
}

func TestFilterDegenerateBeforeAnySample(t *testing.T) {
	s := NewSettings()
	s.SetCalibDry(2000)
	s.SetCalibWet(2000)
	f := NewFilter(0, s)

	got, err := f.Sample(1500)
	assert.ErrorIs(t, err, ErrDegenerateCalibration)
	assert.Equal(t, 0.0, got)
	assert.Equal(t, DefaultFilterSize, f.Cap())
}

func TestFilterUsesLiveCalibration(t *testing.T) {
	s := NewSettings()
	f := NewFilter(1, s)

	got, err := f.Sample(2000)
	require.NoError(t, err)
	assert.InDelta(t, 100*1000.0/1800, got, 1e-9)

	s.SetCalibDry(2000)
	got, err = f.Sample(2000)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}
