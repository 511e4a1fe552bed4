// Package notify delivers clip alert notifications to external endpoints.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hertzlab/micboost/internal/util"
)

// timestampUTC returns the current UTC time in RFC3339 format.
func timestampUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event          string  `json:"event"`
	ClipDurationMs int64   `json:"clip_duration_ms,omitempty"`
	LevelDB        float64 `json:"level_db,omitempty"`
	BoostLevel     float64 `json:"boost_level,omitempty"`
	Message        string  `json:"message,omitempty"`
	Timestamp      string  `json:"timestamp"`
}

// SendClipWebhook notifies the configured webhook of sustained clipping.
func SendClipWebhook(webhookURL string, durationMs int64, levelDB, boostLevel float64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:          "clipping_detected",
		ClipDurationMs: durationMs,
		LevelDB:        levelDB,
		BoostLevel:     boostLevel,
		Timestamp:      timestampUTC(),
	})
}

// SendRecoveryWebhook notifies the configured webhook that clipping ended.
func SendRecoveryWebhook(webhookURL string, levelDB, boostLevel float64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:      "clipping_recovered",
		LevelDB:    levelDB,
		BoostLevel: boostLevel,
		Timestamp:  timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "test",
		Message:   "This is a test notification from the microphone booster",
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
