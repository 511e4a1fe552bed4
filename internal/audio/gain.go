package audio

import (
	"math"
	"sync"

	"github.com/hertzlab/micboost/internal/types"
)

// DefaultRampSeconds is the gain smoothing time constant. 15 ms is short
// enough to feel immediate but long enough to suppress audible clicks.
const DefaultRampSeconds = 0.015

// ComputeGain converts a boost setting in dB into a linear gain multiplier.
// Disabled boost or a boost of ~0 dB yields unity gain. Non-finite input
// collapses to 1.0 so a pathological value can neither silence nor explode
// the signal; finite results are clamped to [0, MaxLinearGain].
func ComputeGain(boostDB float64, enabled bool) float64 {
	if math.IsNaN(boostDB) || math.IsInf(boostDB, 0) {
		return 1.0
	}
	if !enabled || math.Abs(boostDB) < 1e-9 {
		return 1.0
	}

	return math.Min(types.MaxLinearGain, math.Max(0, math.Pow(10, boostDB/20)))
}

// Ramp smooths gain transitions with a one-pole filter so retargeting never
// produces an instantaneous jump. It is safe for concurrent use: the audio
// callback advances it while control handlers retarget it.
type Ramp struct {
	mu      sync.Mutex
	current float64
	target  float64
	tau     float64 // seconds
}

// NewRamp returns a Ramp at unity gain with the default time constant.
func NewRamp() *Ramp {
	return &Ramp{current: 1.0, target: 1.0, tau: DefaultRampSeconds}
}

// SetTarget schedules a smoothed transition to the given linear gain.
func (r *Ramp) SetTarget(gain float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.target = gain
}

// Target returns the gain the ramp is approaching.
func (r *Ramp) Target() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

// Current returns the instantaneous ramped gain.
func (r *Ramp) Current() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Snap jumps the ramp to the given gain without smoothing. Used when a
// fresh graph is built and there is no signal to click.
func (r *Ramp) Snap(gain float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = gain
	r.target = gain
}

// Apply multiplies samples in place by the ramped gain, advancing the ramp
// per sample at the given rate. Called from the capture callback.
func (r *Ramp) Apply(samples []float32, sampleRate int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == r.target {
		if r.current == 1.0 {
			return
		}
		g := float32(r.current)
		for i := range samples {
			samples[i] *= g
		}
		return
	}

	alpha := 1 - math.Exp(-1/(r.tau*float64(sampleRate)))
	for i := range samples {
		r.current += (r.target - r.current) * alpha
		samples[i] = float32(float64(samples[i]) * r.current)
	}
}
