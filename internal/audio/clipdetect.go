package audio

import (
	"sync"
	"time"
)

// ClipThreshold is the absolute post-gain sample value treated as a clip,
// slightly below full scale to catch near-clips.
const ClipThreshold = 0.999

// ClipConfig holds the configurable thresholds for clip detection.
type ClipConfig struct {
	DurationMs int64 // milliseconds of sustained clipping before triggering
	RecoveryMs int64 // milliseconds of clean signal before considering recovered
}

// ClipEvent represents the result of a clip detection update.
type ClipEvent struct {
	Clipping      bool  // currently in confirmed clipping state
	DurationMs    int64 // current clipping duration in ms (0 if clean)
	JustEntered   bool  // true on the frame when clipping is first confirmed
	JustRecovered bool  // true on the frame when recovery completes
}

// ClipDetector tracks sustained post-gain clipping and generates detection
// events for alerting. It is safe for concurrent use.
type ClipDetector struct {
	mu            sync.Mutex
	clipStart     time.Time
	recoveryStart time.Time
	clipping      bool
}

// NewClipDetector creates a new clip detector.
func NewClipDetector() *ClipDetector {
	return &ClipDetector{}
}

// CountClips returns how many samples in the window exceed ClipThreshold.
func CountClips(samples []float32) int {
	count := 0
	for _, s := range samples {
		if s >= ClipThreshold || s <= -ClipThreshold {
			count++
		}
	}
	return count
}

// Update feeds the clip count of a window and returns the current state.
func (d *ClipDetector) Update(clipCount int, cfg ClipConfig, now time.Time) ClipEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	var event ClipEvent

	if clipCount > 0 {
		d.recoveryStart = time.Time{}

		if d.clipStart.IsZero() {
			d.clipStart = now
		}

		durationMs := now.Sub(d.clipStart).Milliseconds()

		if d.clipping {
			event.Clipping = true
			event.DurationMs = durationMs
		} else if durationMs >= cfg.DurationMs {
			d.clipping = true
			event.Clipping = true
			event.DurationMs = durationMs
			event.JustEntered = true
		}
	} else {
		if !d.clipping {
			d.clipStart = time.Time{}
		}

		if d.clipping {
			if d.recoveryStart.IsZero() {
				d.recoveryStart = now
			}

			if now.Sub(d.recoveryStart).Milliseconds() >= cfg.RecoveryMs {
				event.JustRecovered = true
				d.clipping = false
				d.clipStart = time.Time{}
				d.recoveryStart = time.Time{}
			} else {
				// Still in recovery period - remain in clipping state.
				event.Clipping = true
			}
		}
	}

	return event
}

// Reset clears the clip detection state.
func (d *ClipDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clipStart = time.Time{}
	d.recoveryStart = time.Time{}
	d.clipping = false
}
