package audio

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// TapSize is the analysis window length in samples.
	TapSize = 2048
	// SpectrumBins is the number of frequency-bin magnitudes exposed.
	SpectrumBins = TapSize / 2
	// spectrumSmoothing blends each new spectrum frame with the previous
	// one to keep the visualization from flickering.
	spectrumSmoothing = 0.8
)

// Analyser is a non-destructive read point in the audio graph. The capture
// callback pushes post-gain samples into a ring buffer; meter and
// visualization consumers pull a waveform window or frequency-bin
// magnitudes from it. It is safe for concurrent use.
type Analyser struct {
	mu  sync.Mutex
	buf []float32
	pos int

	fft      *fourier.FFT
	window   []float64    // Hann window applied before the transform
	seq      []float64    // windowed sample scratch
	coeffs   []complex128 // FFT output scratch
	smoothed []float64    // exponentially smoothed magnitudes
}

// NewAnalyser returns an Analyser with a TapSize sample window.
func NewAnalyser() *Analyser {
	window := make([]float64, TapSize)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(TapSize-1)))
	}

	return &Analyser{
		buf:      make([]float32, TapSize),
		fft:      fourier.NewFFT(TapSize),
		window:   window,
		seq:      make([]float64, TapSize),
		coeffs:   make([]complex128, TapSize/2+1),
		smoothed: make([]float64, SpectrumBins),
	}
}

// Push appends samples to the ring buffer. Called from the audio callback;
// it must not block or allocate.
func (a *Analyser) Push(samples []float32) {
	a.mu.Lock()
	for _, s := range samples {
		a.buf[a.pos] = s
		a.pos = (a.pos + 1) % TapSize
	}
	a.mu.Unlock()
}

// Waveform copies the most recent TapSize samples in chronological order
// into dst, reusing it when it has sufficient capacity. The returned slice
// is always TapSize long.
func (a *Analyser) Waveform(dst []float32) []float32 {
	if cap(dst) < TapSize {
		dst = make([]float32, TapSize)
	}
	dst = dst[:TapSize]

	a.mu.Lock()
	for i := 0; i < TapSize; i++ {
		dst[i] = a.buf[(a.pos+i)%TapSize]
	}
	a.mu.Unlock()
	return dst
}

// Spectrum computes smoothed frequency-bin magnitudes in [0,1] over the
// current window, reusing dst when it has sufficient capacity. The returned
// slice is always SpectrumBins long.
func (a *Analyser) Spectrum(dst []float64) []float64 {
	if cap(dst) < SpectrumBins {
		dst = make([]float64, SpectrumBins)
	}
	dst = dst[:SpectrumBins]

	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; i < TapSize; i++ {
		a.seq[i] = float64(a.buf[(a.pos+i)%TapSize]) * a.window[i]
	}
	a.fft.Coefficients(a.coeffs, a.seq)

	scale := 2.0 / float64(TapSize)
	for i := 0; i < SpectrumBins; i++ {
		re := real(a.coeffs[i])
		im := imag(a.coeffs[i])
		mag := math.Sqrt(re*re+im*im) * scale
		if mag > 1 {
			mag = 1
		}
		a.smoothed[i] = spectrumSmoothing*a.smoothed[i] + (1-spectrumSmoothing)*mag
		dst[i] = a.smoothed[i]
	}
	return dst
}

// Reset zeroes the ring buffer and smoothed spectrum.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.buf)
	clear(a.smoothed)
	a.pos = 0
}
