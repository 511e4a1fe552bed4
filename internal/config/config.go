// Package config provides application configuration management.
package config

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/hertzlab/micboost/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort                     = 8080
	DefaultWebUsername                 = "admin"
	DefaultWebPassword                 = "booster"
	DefaultSampleRate                  = 48000
	DefaultClipDurationMs              = 500  // sustained clipping before an alert
	DefaultClipRecoveryMs              = 2000 // clean signal before recovery
	DefaultRecordingMaxDurationMinutes = 240  // 4 hours per take
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	Port     int    `json:"port"`     // HTTP server port
	Username string `json:"username"` // Login username
	Password string `json:"password"` // Login password (empty disables auth)
}

// AudioConfig holds audio device and format settings.
type AudioConfig struct {
	InputDevice  string `json:"input_device"`  // Preferred capture device ID (empty = platform default)
	OutputDevice string `json:"output_device"` // Preferred playback device ID (empty = platform default)
	SampleRate   int    `json:"sample_rate"`   // Graph sample rate in Hz
}

// ClipDetectionConfig holds clip alert thresholds and timing parameters.
type ClipDetectionConfig struct {
	DurationMs int64 `json:"duration_ms"` // Duration of clipping before an alert
	RecoveryMs int64 `json:"recovery_ms"` // Duration of clean signal before recovery
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url"` // Webhook URL for clip alerts
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"` // Webhook settings
}

// RecordingConfig holds recording and upload settings.
type RecordingConfig struct {
	APIKey            string `json:"api_key"`              // API key for recording control
	Path              string `json:"path"`                 // Local directory for finished takes
	MaxDurationMin    int    `json:"max_duration_minutes"` // Max duration per take
	S3Endpoint        string `json:"s3_endpoint"`          // S3-compatible endpoint URL
	S3Bucket          string `json:"s3_bucket"`            // S3 bucket name
	S3AccessKeyID     string `json:"s3_access_key_id"`     // S3 access key ID
	S3SecretAccessKey string `json:"s3_secret_access_key"` // S3 secret access key
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Audio         AudioConfig         `json:"audio"`
	ClipDetection ClipDetectionConfig `json:"clip_detection"`
	Notifications NotificationsConfig `json:"notifications"`
	Recording     RecordingConfig     `json:"recording"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port:     DefaultWebPort,
			Username: DefaultWebUsername,
			Password: DefaultWebPassword,
		},
		Audio:    AudioConfig{SampleRate: DefaultSampleRate},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return util.WrapError("read config", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validate()
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	if c.System.Port < 1 || c.System.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 1-65535", c.System.Port)
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("invalid sample_rate %d: must be 8000-192000", c.Audio.SampleRate)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.System.Username == "" {
		c.System.Username = DefaultWebUsername
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = DefaultSampleRate
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Getters for individual settings ---

// AudioInput returns the configured capture device ID.
func (c *Config) AudioInput() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio.InputDevice
}

// AudioOutput returns the configured playback device ID.
func (c *Config) AudioOutput() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio.OutputDevice
}

// SampleRate returns the configured graph sample rate.
func (c *Config) SampleRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio.SampleRate
}

// GetRecordingAPIKey returns the API key for recording REST endpoints.
func (c *Config) GetRecordingAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Recording.APIKey
}

// --- Setters for individual settings ---

// SetAudioInput updates the capture device and saves the configuration.
func (c *Config) SetAudioInput(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.InputDevice = id
	return c.saveLocked()
}

// SetAudioOutput updates the playback device and saves the configuration.
func (c *Config) SetAudioOutput(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.OutputDevice = id
	return c.saveLocked()
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// SetClipDurationMs updates the clip alert duration and saves the configuration.
func (c *Config) SetClipDurationMs(ms int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ClipDetection.DurationMs = ms
	return c.saveLocked()
}

// SetClipRecoveryMs updates the clip recovery time and saves the configuration.
func (c *Config) SetClipRecoveryMs(ms int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ClipDetection.RecoveryMs = ms
	return c.saveLocked()
}

// SetRecordingPath updates the recording directory and saves the configuration.
// A non-empty path must be traversal-free and writable.
func (c *Config) SetRecordingPath(path string) error {
	if path != "" {
		if err := util.ValidatePath("recording path", path); err != nil {
			return err
		}
		if err := util.CheckPathWritable(path); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Recording.Path = path
	return c.saveLocked()
}

// SetRecordingAPIKey updates the API key and saves the configuration.
func (c *Config) SetRecordingAPIKey(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Recording.APIKey = key
	return c.saveLocked()
}

// SetRecordingS3 updates all S3 upload fields and saves the configuration.
func (c *Config) SetRecordingS3(endpoint, bucket, accessKeyID, secretAccessKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Recording.S3Endpoint = endpoint
	c.Recording.S3Bucket = bucket
	c.Recording.S3AccessKeyID = accessKeyID
	c.Recording.S3SecretAccessKey = secretAccessKey
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort     int
	WebUser     string
	WebPassword string

	// Audio
	AudioInput  string
	AudioOutput string
	SampleRate  int

	// Clip detection
	ClipDurationMs int64
	ClipRecoveryMs int64

	// Notifications
	WebhookURL string

	// Recording
	RecordingAPIKey             string
	RecordingPath               string
	RecordingMaxDurationMinutes int
	S3Endpoint                  string
	S3Bucket                    string
	S3AccessKeyID               string
	S3SecretAccessKey           string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// System
		WebPort:     c.System.Port,
		WebUser:     c.System.Username,
		WebPassword: c.System.Password,

		// Audio
		AudioInput:  c.Audio.InputDevice,
		AudioOutput: c.Audio.OutputDevice,
		SampleRate:  cmpOr(c.Audio.SampleRate, DefaultSampleRate),

		// Clip detection (with defaults)
		ClipDurationMs: cmpOr(c.ClipDetection.DurationMs, DefaultClipDurationMs),
		ClipRecoveryMs: cmpOr(c.ClipDetection.RecoveryMs, DefaultClipRecoveryMs),

		// Notifications
		WebhookURL: c.Notifications.Webhook.URL,

		// Recording
		RecordingAPIKey:             c.Recording.APIKey,
		RecordingPath:               c.Recording.Path,
		RecordingMaxDurationMinutes: cmpOr(c.Recording.MaxDurationMin, DefaultRecordingMaxDurationMinutes),
		S3Endpoint:                  c.Recording.S3Endpoint,
		S3Bucket:                    c.Recording.S3Bucket,
		S3AccessKeyID:               c.Recording.S3AccessKeyID,
		S3SecretAccessKey:           c.Recording.S3SecretAccessKey,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasS3 reports whether S3 upload is fully configured.
func (s *Snapshot) HasS3() bool {
	return s.S3Endpoint != "" && s.S3Bucket != "" &&
		s.S3AccessKeyID != "" && s.S3SecretAccessKey != ""
}

// HasAuth reports whether password authentication is enabled.
func (s *Snapshot) HasAuth() bool {
	return s.WebPassword != ""
}

// --- Utility functions ---

// GenerateAPIKey generates a new random 32-character alphanumeric API key.
func GenerateAPIKey() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 32
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		result[i] = chars[n.Int64()]
	}
	return string(result), nil
}

// cmpOr returns the first of its arguments that is not equal to the zero
// value; it matches the behavior of cmp.Or, which needs Go 1.22.
func cmpOr[T comparable](vals ...T) T {
	var zero T
	for _, val := range vals {
		if val != zero {
			return val
		}
	}
	return zero
}
