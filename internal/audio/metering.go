// Package audio provides the signal-path primitives of the booster:
// level estimation, gain computation and smoothing, the analysis tap,
// and meter helpers.
package audio

import (
	"math"

	"github.com/hertzlab/micboost/internal/types"
)

const (
	// MinDB is the bottom of the meter window; levels at or below read 0.
	MinDB = -60.0
	// SilenceFloorDB is reported for an all-zero window instead of -Inf.
	SilenceFloorDB = -100.0
)

// Estimate converts a window of raw samples in [-1,1] into a normalized
// 0-100 loudness reading and an instantaneous dB value. Pure and stateless;
// callers recompute it every meter tick.
func Estimate(samples []float32) types.LevelSample {
	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}

	rms := 0.0
	if len(samples) > 0 {
		rms = math.Sqrt(sumSquares / float64(len(samples)))
	}

	db := SilenceFloorDB
	if rms > 0 {
		db = 20 * math.Log10(rms)
	}

	// Map -60..0 dB onto 0..100; everything outside clamps to the extremes.
	level := ((db - MinDB) / -MinDB) * 100
	level = math.Min(100, math.Max(0, level))

	return types.LevelSample{Level: level, DB: db}
}

// BoostedDisplayLevel returns the cosmetic meter value that includes the
// boost factor, capped at 100. Informational only: the real gain comes from
// ComputeGain, never from this value.
func BoostedDisplayLevel(level, boostDB float64) float64 {
	boosted := level * math.Pow(10, boostDB/20)
	if math.IsNaN(boosted) {
		return level
	}
	return math.Min(100, boosted)
}
