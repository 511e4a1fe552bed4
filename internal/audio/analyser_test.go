package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWaveformChronologicalOrder(t *testing.T) {
	a := NewAnalyser()

	// Push more than one full window so the ring wraps.
	first := make([]float32, TapSize)
	for i := range first {
		first[i] = 0.1
	}
	a.Push(first)

	tail := make([]float32, 100)
	for i := range tail {
		tail[i] = 0.9
	}
	a.Push(tail)

	wave := a.Waveform(nil)
	assert.Len(t, wave, TapSize)

	// Oldest samples first, the new tail at the end.
	assert.InDelta(t, 0.1, float64(wave[0]), 1e-6)
	for i := TapSize - 100; i < TapSize; i++ {
		assert.InDelta(t, 0.9, float64(wave[i]), 1e-6)
	}
}

func TestWaveformReusesDst(t *testing.T) {
	a := NewAnalyser()
	dst := make([]float32, TapSize)

	out := a.Waveform(dst)
	assert.Equal(t, &dst[0], &out[0])
}

func TestPushDoesNotAlterSamples(t *testing.T) {
	a := NewAnalyser()
	samples := []float32{0.3, -0.3, 0.6}

	a.Push(samples)

	assert.Equal(t, []float32{0.3, -0.3, 0.6}, samples)
}

func TestSpectrumPeaksAtSineFrequency(t *testing.T) {
	a := NewAnalyser()

	// A sine at exactly bin 64 of the window.
	samples := make([]float32, TapSize)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 64 * float64(i) / TapSize))
	}
	a.Push(samples)

	// Run several frames so smoothing settles.
	var spec []float64
	for i := 0; i < 40; i++ {
		spec = a.Spectrum(spec)
	}
	assert.Len(t, spec, SpectrumBins)

	peak := 0
	for i, v := range spec {
		if v > spec[peak] {
			peak = i
		}
		assert.LessOrEqual(t, v, 1.0)
		assert.GreaterOrEqual(t, v, 0.0)
	}
	assert.Equal(t, 64, peak)
}

func TestSpectrumSilence(t *testing.T) {
	a := NewAnalyser()

	spec := a.Spectrum(nil)
	for _, v := range spec {
		assert.Equal(t, 0.0, v)
	}
}

func TestAnalyserReset(t *testing.T) {
	a := NewAnalyser()

	samples := make([]float32, TapSize)
	for i := range samples {
		samples[i] = 1
	}
	a.Push(samples)
	a.Spectrum(nil)

	a.Reset()

	wave := a.Waveform(nil)
	for _, s := range wave {
		assert.Equal(t, float32(0), s)
	}
	spec := a.Spectrum(nil)
	for _, v := range spec {
		assert.Equal(t, 0.0, v)
	}
}
