package types

// WSLevelsResponse carries a meter frame to WebSocket clients.
type WSLevelsResponse struct {
	Type   string     `json:"type"` // "levels"
	Levels MeterFrame `json:"levels"`
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}

// WSStatusResponse carries the full status frame to WebSocket clients.
// Pushed on connect, after every command, and on a slow periodic tick.
type WSStatusResponse struct {
	Type            string        `json:"type"` // "status"
	Session         SessionStatus `json:"session"`
	Settings        AudioSettings `json:"settings"`
	Devices         []AudioDevice `json:"devices"`
	Platform        string        `json:"platform"`
	SampleRate      int           `json:"sampleRate"`
	WebhookURL      string        `json:"webhookUrl"`
	RecordingPath   string        `json:"recordingPath"`
	RecordingAPIKey string        `json:"recordingApiKey"`
	Version         VersionInfo   `json:"version"`
}

// WSCommandResult is the standard response for command execution.
// Used by slash-style commands (session/connect, settings/save, etc.)
type WSCommandResult struct {
	Type    string           `json:"type"`            // "<command>_result"
	Success bool             `json:"success"`         // true if command succeeded
	Error   *ValidationError `json:"error,omitempty"` // Validation errors if failed
	Data    interface{}      `json:"data,omitempty"`  // Optional response data
}
