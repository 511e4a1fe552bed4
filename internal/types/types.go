// Package types provides shared type definitions used across the booster.
package types

import (
	"time"
)

// SessionState represents the lifecycle state of the audio session.
type SessionState string

const (
	// StateIdle indicates no live audio graph exists.
	StateIdle SessionState = "idle"
	// StateConnecting indicates stream acquisition is in flight.
	StateConnecting SessionState = "connecting"
	// StateRunning indicates the graph is wired and audio is flowing.
	StateRunning SessionState = "running"
	// StateDisconnecting indicates teardown is in progress.
	StateDisconnecting SessionState = "disconnecting"
	// StateError indicates a capture failure ended the session.
	StateError SessionState = "error"
)

// DeviceKind distinguishes capture from playback endpoints.
type DeviceKind string

const (
	// DeviceKindInput is a capture endpoint (microphone).
	DeviceKindInput DeviceKind = "input"
	// DeviceKindOutput is a playback endpoint (speaker).
	DeviceKindOutput DeviceKind = "output"
)

// AudioDevice is an immutable snapshot of a hardware endpoint. The device
// set is replaced wholesale on each enumeration; identity is ID within a kind.
type AudioDevice struct {
	ID        string     `json:"deviceId"`  // Opaque platform device identifier
	Label     string     `json:"label"`     // Human-readable name, synthesized when withheld
	Kind      DeviceKind `json:"kind"`      // Endpoint direction
	IsDefault bool       `json:"isDefault"` // Platform default endpoint for its kind
}

// AudioSettings is the booster configuration: the live per-session instance
// plus optionally persisted named records. Device ID fields may be empty
// only before the first device enumeration.
type AudioSettings struct {
	ID             string  `json:"id,omitempty"`                          // Set on persisted records only
	InputDeviceID  string  `json:"inputDeviceId"`                         // Selected capture endpoint
	OutputDeviceID string  `json:"outputDeviceId"`                        // Selected playback endpoint
	BoostLevel     float64 `json:"boostLevel" validate:"gte=0,lte=1000"`  // Amplification in dB
	IsBoostEnabled bool    `json:"isBoostEnabled"`                        // Boost applied to the signal
	IsMuted        bool    `json:"isMuted"`                               // Playback output muted
}

// AudioSettingsPatch is a partial update for a persisted settings record.
// Nil fields are left unchanged.
type AudioSettingsPatch struct {
	InputDeviceID  *string  `json:"inputDeviceId"`
	OutputDeviceID *string  `json:"outputDeviceId"`
	BoostLevel     *float64 `json:"boostLevel" validate:"omitempty,gte=0,lte=1000"`
	IsBoostEnabled *bool    `json:"isBoostEnabled"`
	IsMuted        *bool    `json:"isMuted"`
}

// LevelSample is a normalized loudness reading derived from a window of raw
// samples. It is recomputed every meter tick and never stored.
type LevelSample struct {
	Level float64 `json:"level"` // Normalized loudness in [0,100], mapping -60..0 dB
	DB    float64 `json:"db"`    // Instantaneous RMS level in dB (floor -100)
}

// MeterFrame is the per-tick meter payload for presentation clients.
type MeterFrame struct {
	// Level is the normalized post-gain loudness in [0,100].
	Level float64 `json:"level"`
	// DB is the instantaneous RMS level in dB.
	DB float64 `json:"db"`
	// BoostedLevel is the cosmetic display level including the boost factor.
	// Informational only; it never feeds back into the gain stage.
	BoostedLevel float64 `json:"boosted_level"`
	// HeldPeak is the peak-hold value in [0,100] for VU rendering.
	HeldPeak float64 `json:"held_peak"`
	// Clipping reports whether post-gain samples clipped in the last window.
	Clipping bool `json:"clipping,omitzero"`
}

// SessionStatus is the session state summary for presentation reads.
type SessionStatus struct {
	State     SessionState `json:"state"`                // Current lifecycle state
	Connected bool         `json:"connected"`            // A live graph is open
	Uptime    string       `json:"uptime,omitempty"`     // Time since the graph opened
	LastError string       `json:"last_error,omitempty"` // Most recent user-facing error
	Warning   string       `json:"warning,omitempty"`    // Non-fatal advisory (output routing etc.)
	Recording bool         `json:"recording,omitzero"`   // Post-gain stream is being recorded
}

// Boost limits. The boost level is expressed in dB; the resulting linear
// gain is capped at MaxLinearGain before it reaches the gain stage.
const (
	MinBoostDB    = 0.0
	MaxBoostDB    = 1000.0
	MaxLinearGain = 1000.0
)

const (
	// MeterInterval is how often the monitor loop samples the analysis tap.
	MeterInterval = 16 * time.Millisecond
	// LevelPushInterval is how often level frames are pushed to WebSocket clients.
	LevelPushInterval = 100 * time.Millisecond
	// StatusPushInterval is how often full status frames are pushed to WebSocket clients.
	StatusPushInterval = 3000 * time.Millisecond
	// DeviceWatchInterval is how often the device directory re-enumerates
	// endpoints to pick up hot-plug changes.
	DeviceWatchInterval = 5 * time.Second
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 5 * time.Second
)
