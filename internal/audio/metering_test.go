package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// sineWindow returns a full-scale sine of the given peak amplitude.
func sineWindow(n int, amplitude float64) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(amplitude * math.Sin(2*math.Pi*8*float64(i)/float64(n)))
	}
	return samples
}

func TestEstimateSilence(t *testing.T) {
	sample := Estimate(make([]float32, 2048))

	assert.Equal(t, 0.0, sample.Level)
	assert.Equal(t, SilenceFloorDB, sample.DB)
}

func TestEstimateEmptyWindow(t *testing.T) {
	sample := Estimate(nil)

	assert.Equal(t, 0.0, sample.Level)
	assert.Equal(t, SilenceFloorDB, sample.DB)
}

func TestEstimateFullScale(t *testing.T) {
	// A window pinned at +/-1 has RMS 1.0, i.e. exactly 0 dB.
	samples := make([]float32, 2048)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 1
		} else {
			samples[i] = -1
		}
	}

	sample := Estimate(samples)

	assert.InDelta(t, 0.0, sample.DB, 1e-9)
	assert.InDelta(t, 100.0, sample.Level, 1e-6)
}

func TestEstimateClampsAboveWindow(t *testing.T) {
	// RMS above 0 dB (out-of-range input) still reads exactly 100.
	samples := make([]float32, 1024)
	for i := range samples {
		samples[i] = 2.0
	}

	sample := Estimate(samples)

	assert.Greater(t, sample.DB, 0.0)
	assert.Equal(t, 100.0, sample.Level)
}

func TestEstimateClampsBelowWindow(t *testing.T) {
	// A -80 dB noise floor still reads exactly 0.
	samples := make([]float32, 1024)
	for i := range samples {
		samples[i] = 1e-4
	}

	sample := Estimate(samples)

	assert.Less(t, sample.DB, MinDB)
	assert.Equal(t, 0.0, sample.Level)
}

func TestEstimateMidWindow(t *testing.T) {
	// RMS of 10^(-30/20) sits at -30 dB, the middle of the meter window.
	amp := math.Pow(10, -30.0/20)
	samples := make([]float32, 4096)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = float32(amp)
		} else {
			samples[i] = float32(-amp)
		}
	}

	sample := Estimate(samples)

	assert.InDelta(t, -30.0, sample.DB, 0.01)
	assert.InDelta(t, 50.0, sample.Level, 0.1)
}

func TestBoostedDisplayLevel(t *testing.T) {
	// 6 dB roughly doubles the displayed level.
	assert.InDelta(t, 39.9, BoostedDisplayLevel(20, 6), 0.1)

	// Capped at 100 regardless of boost.
	assert.Equal(t, 100.0, BoostedDisplayLevel(80, 40))
	assert.Equal(t, 100.0, BoostedDisplayLevel(1, 600))

	// Zero boost leaves the level unchanged.
	assert.Equal(t, 42.0, BoostedDisplayLevel(42, 0))
}

func TestEstimateDeterministic(t *testing.T) {
	samples := sineWindow(2048, 0.5)

	first := Estimate(samples)
	second := Estimate(samples)

	assert.Equal(t, first, second)
}
