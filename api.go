package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hertzlab/micboost/internal/audio"
	"github.com/hertzlab/micboost/internal/session"
	"github.com/hertzlab/micboost/internal/types"
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps persistence errors to HTTP statuses: lookup misses
// become 404, validation failures 400 with field details.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, types.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr})
		return
	}
	s.writeError(w, http.StatusBadRequest, err.Error())
}

// parseJSON reads and parses JSON from request body.
// Returns parsed value and true on success, zero value and false on failure.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	return v, true
}

// handleAPIHealth reports service liveness.
// GET /api/health
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

// handleAPIAudioSettings handles the settings collection.
// GET /api/audio-settings lists stored records; POST creates one.
func (s *Server) handleAPIAudioSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, map[string]any{"settings": s.store.List()})
	case http.MethodPost:
		settings, ok := parseJSON[types.AudioSettings](s, w, r)
		if !ok {
			return
		}
		record, err := s.store.Create(settings)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, record)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleAPIAudioSettingsByID handles a single settings record.
// GET returns it, PATCH merges a partial update, DELETE removes it.
func (s *Server) handleAPIAudioSettingsByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/audio-settings/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, err := s.store.Get(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, record)
	case http.MethodPatch:
		patch, ok := parseJSON[types.AudioSettingsPatch](s, w, r)
		if !ok {
			return
		}
		record, err := s.store.Update(id, patch)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, record)
	case http.MethodDelete:
		if err := s.store.Delete(id); err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleAPIDevices returns the current device snapshot.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": s.dir.All(),
	})
}

// handleAPIDevicesRefresh re-enumerates hardware and returns the new snapshot.
// POST /api/devices/refresh
func (s *Server) handleAPIDevicesRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.session.RefreshDevices(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": s.dir.All(),
	})
}

// handleAPISessionStatus returns the session state summary and live settings.
// GET /api/session/status
func (s *Server) handleAPISessionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"session":  s.session.Status(),
		"settings": s.session.Settings(),
		"meter":    s.session.MeterFrame(),
	})
}

// handleAPISessionScope returns the current waveform window and spectrum
// bins for visualization clients that poll instead of using the WebSocket.
// GET /api/session/scope
func (s *Server) handleAPISessionScope(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	waveform := s.session.Waveform(make([]float32, audio.TapSize))
	spectrum := s.session.Spectrum(make([]float64, audio.SpectrumBins))

	s.writeJSON(w, http.StatusOK, map[string]any{
		"waveform": waveform,
		"spectrum": spectrum,
		"meter":    s.session.MeterFrame(),
	})
}

// ConnectBody is the optional request body for POST /api/session/connect.
type ConnectBody struct {
	DeviceID string `json:"deviceId"`
}

// handleAPISessionConnect acquires the input device and starts the graph.
// POST /api/session/connect
func (s *Server) handleAPISessionConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var body ConnectBody
	if r.ContentLength > 0 {
		var ok bool
		if body, ok = parseJSON[ConnectBody](s, w, r); !ok {
			return
		}
	}

	if err := s.session.Connect(r.Context(), body.DeviceID); err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, types.ErrDeviceUnavailable):
			status = http.StatusNotFound
		case errors.Is(err, types.ErrPermissionDenied):
			status = http.StatusForbidden
		case errors.Is(err, session.ErrAlreadyConnected), errors.Is(err, context.Canceled):
			status = http.StatusConflict
		}
		s.writeError(w, status, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"session":  s.session.Status(),
		"settings": s.session.Settings(),
	})
}

// handleAPISessionDisconnect tears the graph down.
// POST /api/session/disconnect
func (s *Server) handleAPISessionDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.session.Disconnect()
	s.writeJSON(w, http.StatusOK, map[string]any{"session": s.session.Status()})
}

// handleAPISessionReset returns boost controls to their defaults.
// POST /api/session/reset
func (s *Server) handleAPISessionReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.session.Reset()
	s.writeJSON(w, http.StatusOK, map[string]any{"settings": s.session.Settings()})
}
