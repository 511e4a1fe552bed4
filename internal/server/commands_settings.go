package server

import (
	"log/slog"
	"runtime"

	"github.com/hertzlab/micboost/internal/config"
	"github.com/hertzlab/micboost/internal/notify"
	"github.com/hertzlab/micboost/internal/recording"
)

// handleSettings routes settings/* commands over the stored settings records.
func (h *CommandHandler) handleSettings(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "save":
		h.handleSettingsSave(cmd, send)
	case "load":
		h.handleSettingsLoad(cmd, send)
	case "list":
		SendSuccess(send, cmd.Type, map[string]any{"settings": h.store.List()})
	case "delete":
		HandleCommand(h, cmd, send, func(req *SettingsIDRequest) error {
			return h.store.Delete(req.ID)
		})
	default:
		slog.Warn("unknown settings action", "action", action)
	}
}

// handleSettingsSave persists the live session settings as a named record.
func (h *CommandHandler) handleSettingsSave(cmd WSCommand, send chan<- any) {
	record, err := h.store.Create(h.session.Settings())
	if err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, record)
}

// handleSettingsLoad applies a stored record to the live session. Device
// changes may rebuild the graph, so it runs asynchronously.
func (h *CommandHandler) handleSettingsLoad(cmd WSCommand, send chan<- any) {
	var req SettingsIDRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		record, err := h.store.Get(req.ID)
		if err != nil {
			return nil, err
		}
		if err := h.session.ApplySettings(record); err != nil {
			return nil, err
		}
		return h.session.Settings(), nil
	})
}

// handleRecorder routes recorder/* commands.
func (h *CommandHandler) handleRecorder(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "start":
		h.handleRecorderStart(cmd, send)
	case "stop":
		h.handleRecorderStop(cmd, send)
	case "update":
		HandleCommand(h, cmd, send, func(req *RecordingUpdateRequest) error {
			return h.cfg.SetRecordingPath(req.Path)
		})
	case "regenerate-key":
		h.handleRegenerateAPIKey(cmd, send)
	case "test-s3":
		h.handleTestS3(cmd, send)
	default:
		slog.Warn("unknown recorder action", "action", action)
	}
}

// handleRecorderStart begins a FLAC take of the post-gain stream and
// installs the recorder on the capture path.
func (h *CommandHandler) handleRecorderStart(cmd WSCommand, send chan<- any) {
	path, err := h.recorder.Start()
	if err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	h.session.SetSink(h.recorder)
	SendSuccess(send, cmd.Type, map[string]string{"path": path})
}

func (h *CommandHandler) handleRecorderStop(cmd WSCommand, send chan<- any) {
	h.session.SetSink(nil)
	if err := h.recorder.Stop(); err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, nil)
}

// handleRegenerateAPIKey generates a new recording API key.
func (h *CommandHandler) handleRegenerateAPIKey(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		key, err := config.GenerateAPIKey()
		if err != nil {
			return nil, err
		}
		if err := h.cfg.SetRecordingAPIKey(key); err != nil {
			return nil, err
		}
		return map[string]string{"api_key": key}, nil
	})
}

// handleTestS3 verifies S3 credentials by writing and deleting a test object.
func (h *CommandHandler) handleTestS3(cmd WSCommand, send chan<- any) {
	var req S3TestRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		s3cfg := recording.S3Config{
			Endpoint:        req.Endpoint,
			Bucket:          req.Bucket,
			AccessKeyID:     req.AccessKey,
			SecretAccessKey: req.SecretKey,
		}
		if err := recording.TestS3Connection(&s3cfg); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// handleNotifications routes notifications/*/* commands.
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "webhook":
		switch subaction {
		case "update":
			HandleCommand(h, cmd, send, func(req *WebhookUpdateRequest) error {
				return h.cfg.SetWebhookURL(req.URL)
			})
		case "test":
			HandleActionAsync(cmd, send, func() (any, error) {
				cfg := h.cfg.Snapshot()
				return nil, notify.SendTestWebhook(cfg.WebhookURL)
			})
		default:
			slog.Warn("unknown webhook action", "subaction", subaction)
		}
	default:
		slog.Warn("unknown notifications action", "action", action)
	}
}

// handleConfigGet returns the configuration view for the frontend.
func (h *CommandHandler) handleConfigGet(send chan<- any) {
	cfg := h.cfg.Snapshot()

	SendData(send, map[string]any{
		"type":            "config",
		"settings":        h.session.Settings(),
		"devices":         h.dir.All(),
		"platform":        runtime.GOOS,
		"sampleRate":      cfg.SampleRate,
		"webhookUrl":      cfg.WebhookURL,
		"recordingPath":   cfg.RecordingPath,
		"recordingApiKey": cfg.RecordingAPIKey,
	})
}
