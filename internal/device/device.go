// Package device abstracts audio hardware access: enumeration of capture
// and playback endpoints and the streams that move samples through them.
package device

import (
	"github.com/hertzlab/micboost/internal/types"
)

// StreamConfig describes the sample format of a capture or playback stream.
// The booster runs everything as mono float32.
type StreamConfig struct {
	SampleRate int
	Channels   int

	// OnStop, when set, is invoked once if the platform halts the stream
	// on its own, typically because the device was unplugged. It is not
	// invoked for Stop or Close. Called from a backend thread; must not
	// block.
	OnStop func()
}

// DefaultStreamConfig is the format used throughout the signal path.
var DefaultStreamConfig = StreamConfig{SampleRate: 48000, Channels: 1}

// CaptureCallback receives a window of captured samples in [-1,1]. It runs
// on the backend's audio thread and must not block.
type CaptureCallback func(samples []float32)

// PlaybackCallback fills out with samples for the output device. It runs on
// the backend's audio thread and must not block.
type PlaybackCallback func(out []float32)

// Stream is a running capture or playback device.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Backend provides hardware enumeration and stream construction. The real
// implementation wraps miniaudio; tests substitute a fake.
type Backend interface {
	// Enumerate lists the endpoints of the given kind currently known to
	// the platform.
	Enumerate(kind types.DeviceKind) ([]types.AudioDevice, error)

	// OpenCapture opens the input endpoint with the given ID, or the
	// platform default when id is empty. The stream is created stopped.
	OpenCapture(id string, cfg StreamConfig, cb CaptureCallback) (Stream, error)

	// OpenPlayback opens the output endpoint with the given ID, or the
	// platform default when id is empty. The stream is created stopped.
	OpenPlayback(id string, cfg StreamConfig, cb PlaybackCallback) (Stream, error)

	// Close releases the backend. All streams must be closed first.
	Close() error
}
