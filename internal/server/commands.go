package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/hertzlab/micboost/internal/config"
	"github.com/hertzlab/micboost/internal/device"
	"github.com/hertzlab/micboost/internal/recording"
	"github.com/hertzlab/micboost/internal/session"
	"github.com/hertzlab/micboost/internal/store"
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg      *config.Config
	session  *session.Session
	store    *store.Store
	recorder *recording.Recorder
	dir      *device.Directory
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, sess *session.Session, st *store.Store, rec *recording.Recorder, dir *device.Directory) *CommandHandler {
	return &CommandHandler{
		cfg:      cfg,
		session:  sess,
		store:    st,
		recorder: rec,
		dir:      dir,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "session/boost",
// "devices/refresh").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "session":
		h.handleSession(action, cmd, send)
	case "devices":
		h.handleDevices(action, cmd, send)
	case "settings":
		h.handleSettings(action, cmd, send)
	case "recorder":
		h.handleRecorder(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "config":
		h.handleConfig(action, send)
	case "status":
		h.handleStatus(action, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleSession routes session/* commands.
func (h *CommandHandler) handleSession(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "connect":
		h.handleConnect(cmd, send)
	case "disconnect":
		h.handleDisconnect(cmd, send)
	case "boost":
		HandleCommand(h, cmd, send, func(req *BoostRequest) error {
			return h.session.UpdateBoost(req.Level)
		})
	case "boost-enable":
		HandleCommand(h, cmd, send, func(req *BoostEnableRequest) error {
			h.session.SetBoostEnabled(req.Enabled)
			return nil
		})
	case "mute":
		HandleCommand(h, cmd, send, func(req *MuteRequest) error {
			h.session.SetMuted(req.Muted)
			return nil
		})
	case "input":
		h.handleInputChange(cmd, send)
	case "output":
		h.handleOutputChange(cmd, send)
	case "reset":
		h.session.Reset()
		SendSuccess(send, cmd.Type, nil)
	default:
		slog.Warn("unknown session action", "action", action)
	}
}

// handleConnect acquires the capture device asynchronously so a slow
// hardware open never blocks the command loop.
func (h *CommandHandler) handleConnect(cmd WSCommand, send chan<- any) {
	var req ConnectRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		if err := h.session.Connect(context.Background(), req.DeviceID); err != nil {
			return nil, err
		}
		return h.session.Settings(), nil
	})
}

func (h *CommandHandler) handleDisconnect(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		h.session.Disconnect()
		return nil, nil
	})
}

// handleInputChange selects a new capture device. A running session is
// rebuilt, which blocks, so it runs asynchronously.
func (h *CommandHandler) handleInputChange(cmd WSCommand, send chan<- any) {
	var req DeviceRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		if err := h.session.ChangeInputDevice(context.Background(), req.DeviceID); err != nil {
			return nil, err
		}
		if err := h.cfg.SetAudioInput(req.DeviceID); err != nil {
			slog.Warn("failed to persist input device", "error", err)
		}
		return nil, nil
	})
}

// handleOutputChange retargets the playback endpoint without touching the
// capture side.
func (h *CommandHandler) handleOutputChange(cmd WSCommand, send chan<- any) {
	var req DeviceRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		if err := h.session.ChangeOutputDevice(req.DeviceID); err != nil {
			return nil, err
		}
		if err := h.cfg.SetAudioOutput(req.DeviceID); err != nil {
			slog.Warn("failed to persist output device", "error", err)
		}
		return nil, nil
	})
}

// handleDevices routes devices/* commands.
func (h *CommandHandler) handleDevices(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "refresh":
		HandleActionAsync(cmd, send, func() (any, error) {
			if err := h.session.RefreshDevices(); err != nil {
				return nil, err
			}
			return map[string]any{"devices": h.dir.All()}, nil
		})
	default:
		slog.Warn("unknown devices action", "action", action)
	}
}

// handleConfig routes config/* commands.
func (h *CommandHandler) handleConfig(action string, send chan<- any) {
	switch action {
	case "get":
		h.handleConfigGet(send)
	default:
		slog.Warn("unknown config action", "action", action)
	}
}

// handleStatus routes status/* commands.
func (h *CommandHandler) handleStatus(action string, send chan<- any) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers immediate update
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}
