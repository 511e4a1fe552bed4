package server

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.

// --- Session control ---

// ConnectRequest is the request body for session/connect. An empty device
// ID selects the stored preference or the platform default.
type ConnectRequest struct {
	DeviceID string `json:"deviceId" validate:"omitempty,max=256"`
}

// BoostRequest is the request body for session/boost.
type BoostRequest struct {
	Level float64 `json:"level" validate:"gte=0,lte=1000"`
}

// BoostEnableRequest is the request body for session/boost-enable.
type BoostEnableRequest struct {
	Enabled bool `json:"enabled"`
}

// MuteRequest is the request body for session/mute.
type MuteRequest struct {
	Muted bool `json:"muted"`
}

// DeviceRequest is the request body for session/input and session/output.
type DeviceRequest struct {
	DeviceID string `json:"deviceId" validate:"required,max=256"`
}

// --- Stored settings ---

// SettingsIDRequest is the request body for settings/load and settings/delete.
type SettingsIDRequest struct {
	ID string `json:"id" validate:"required,max=64"`
}

// --- Notification settings ---

// WebhookUpdateRequest is the request body for notifications/webhook/update.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,max=2048"`
}

// --- Recording ---

// RecordingUpdateRequest is the request body for recorder/update.
type RecordingUpdateRequest struct {
	Path string `json:"path" validate:"omitempty,max=4096"`
}

// S3TestRequest is the request body for recorder/test-s3.
type S3TestRequest struct {
	Endpoint  string `json:"s3_endpoint" validate:"omitempty,max=2048"`
	Bucket    string `json:"s3_bucket" validate:"required,max=63"`
	AccessKey string `json:"s3_access_key_id" validate:"required,max=128"`
	SecretKey string `json:"s3_secret_access_key" validate:"required,max=256"`
}
