package main

import (
	"crypto/subtle"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/hertzlab/micboost/internal/config"
	"github.com/hertzlab/micboost/internal/device"
	"github.com/hertzlab/micboost/internal/recording"
	"github.com/hertzlab/micboost/internal/server"
	"github.com/hertzlab/micboost/internal/session"
	"github.com/hertzlab/micboost/internal/store"
	"github.com/hertzlab/micboost/internal/types"
)

// loginHTML is the minimal login form. The control surface itself is an
// API client; only authentication needs a server-rendered page.
const loginHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>micboost login</title></head>
<body>
<h1>micboost</h1>
{{if .Error}}<p>Invalid username or password.</p>{{end}}
<form method="post" action="/login">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<label>Username <input name="username" autocomplete="username"></label>
<label>Password <input type="password" name="password" autocomplete="current-password"></label>
<button type="submit">Sign in</button>
</form>
<p>{{.Version}} &middot; {{.Year}}</p>
</body>
</html>`

var loginTmpl = template.Must(template.New("login").Parse(loginHTML))

type loginData struct {
	Error     bool
	CSRFToken string
	Version   string
	Year      int
}

// Server is the HTTP server that provides the web control surface for the
// booster.
type Server struct {
	config   *config.Config
	session  *session.Session
	store    *store.Store
	recorder *recording.Recorder
	dir      *device.Directory
	sessions *server.SessionManager
	commands *server.CommandHandler
	version  *VersionChecker
}

// NewServer returns a new Server wired to the given session and stores.
func NewServer(cfg *config.Config, sess *session.Session, st *store.Store, rec *recording.Recorder, dir *device.Directory) *Server {
	return &Server{
		config:   cfg,
		session:  sess,
		store:    st,
		recorder: rec,
		dir:      dir,
		sessions: server.NewSessionManager(),
		commands: server.NewCommandHandler(cfg, sess, st, rec, dir),
		version:  NewVersionChecker(),
	}
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Create buffered send channel for thread-safe writes.
	// Only the writer goroutine writes to the connection, preventing race conditions.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	// Writer goroutine - sole writer to the connection
	go s.runWebSocketWriter(conn, send)

	// Reader goroutine - handles incoming commands
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop handles periodic status and level updates.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	levelsTicker := time.NewTicker(types.LevelPushInterval)
	statusTicker := time.NewTicker(types.StatusPushInterval)
	defer levelsTicker.Stop()
	defer statusTicker.Stop()

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial status
	if !trySend(s.buildWSStatus()) {
		close(send)
		return
	}

	for {
		select {
		case <-done:
			close(send)
			return
		case <-statusUpdate:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		case <-levelsTicker.C:
			if !trySend(types.WSLevelsResponse{Type: "levels", Levels: s.session.MeterFrame()}) {
				close(send)
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		}
	}
}

// buildWSStatus returns the current WebSocket status response.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	cfg := s.config.Snapshot()

	return types.WSStatusResponse{
		Type:            "status",
		Session:         s.session.Status(),
		Settings:        s.session.Settings(),
		Devices:         s.dir.All(),
		Platform:        runtime.GOOS,
		SampleRate:      cfg.SampleRate,
		WebhookURL:      cfg.WebhookURL,
		RecordingPath:   cfg.RecordingPath,
		RecordingAPIKey: cfg.RecordingAPIKey,
		Version:         s.version.Info(),
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := s.sessions.AuthMiddleware(func() bool {
		snap := s.config.Snapshot()
		return snap.HasAuth()
	})

	// Public routes (no auth required)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/api/health", s.handleAPIHealth)

	// Recording API routes (API key auth)
	mux.HandleFunc("/api/recordings/start", s.apiKeyAuth(s.handleStartRecording))
	mux.HandleFunc("/api/recordings/stop", s.apiKeyAuth(s.handleStopRecording))

	// Protected routes
	mux.HandleFunc("/ws", auth(s.handleWebSocket))
	mux.HandleFunc("/api/audio-settings", auth(s.handleAPIAudioSettings))
	mux.HandleFunc("/api/audio-settings/", auth(s.handleAPIAudioSettingsByID))
	mux.HandleFunc("/api/devices", auth(s.handleAPIDevices))
	mux.HandleFunc("/api/devices/refresh", auth(s.handleAPIDevicesRefresh))
	mux.HandleFunc("/api/session/status", auth(s.handleAPISessionStatus))
	mux.HandleFunc("/api/session/scope", auth(s.handleAPISessionScope))
	mux.HandleFunc("/api/session/connect", auth(s.handleAPISessionConnect))
	mux.HandleFunc("/api/session/disconnect", auth(s.handleAPISessionDisconnect))
	mux.HandleFunc("/api/session/reset", auth(s.handleAPISessionReset))

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// handleLogin handles login page display and form submission.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("micboost_session"); err == nil {
		if s.sessions.Validate(cookie.Value) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
	}

	cfg := s.config.Snapshot()
	data := loginData{
		Version:   Version,
		Year:      time.Now().Year(),
		CSRFToken: s.sessions.CreateCSRFToken(),
	}

	if r.Method == http.MethodPost {
		csrfToken := r.FormValue("csrf_token")
		if !s.sessions.ValidateCSRFToken(csrfToken) {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		username := r.FormValue("username")
		password := r.FormValue("password")

		if s.sessions.Login(w, r, username, password, cfg.WebUser, cfg.WebPassword) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}

		data.Error = true
		data.CSRFToken = s.sessions.CreateCSRFToken() // New token for retry
	}

	w.Header().Set("Content-Type", "text/html")
	if err := loginTmpl.Execute(w, data); err != nil {
		slog.Error("failed to render login page", "error", err)
	}
}

// handleLogout handles user logout requests.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, r)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// apiKeyAuth returns middleware for API key authentication.
func (s *Server) apiKeyAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := s.config.GetRecordingAPIKey()
		if apiKey == "" {
			http.Error(w, "API key not configured", http.StatusServiceUnavailable)
			return
		}

		providedKey := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// handleStartRecording handles POST /api/recordings/start.
func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path, err := s.recorder.Start()
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.session.SetSink(s.recorder)

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recording_started", "path": path})
}

// handleStopRecording handles POST /api/recordings/stop.
func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.session.SetSink(nil)
	if err := s.recorder.Stop(); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recording_stopped"})
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
