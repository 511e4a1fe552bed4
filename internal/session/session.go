// Package session manages the microphone monitoring session: the lifecycle
// state machine, the live audio graph, boost and mute control, and the
// meter state pushed to clients.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hertzlab/micboost/internal/audio"
	"github.com/hertzlab/micboost/internal/config"
	"github.com/hertzlab/micboost/internal/device"
	"github.com/hertzlab/micboost/internal/types"
)

// ErrAlreadyConnected is returned when a connect attempt is already in
// flight; a running graph is rebuilt instead.
var ErrAlreadyConnected = errors.New("session connect already in progress")

// SampleSink consumes post-gain sample windows, e.g. a recorder. Write is
// called from the audio thread and must not block.
type SampleSink interface {
	Write(samples []float32)
}

type sinkBox struct {
	sink SampleSink
}

// ClipNotifier is invoked when sustained clipping is confirmed or recovers.
type ClipNotifier func(event audio.ClipEvent)

// Session owns the audio graph and its lifecycle. All methods are safe for
// concurrent use; the capture callback never takes the session mutex.
type Session struct {
	backend    device.Backend
	dir        *device.Directory
	config     *config.Config
	sampleRate int

	// Processing nodes. These survive graph rebuilds so settings, meter
	// smoothing and peak holds persist across device changes.
	ramp       *audio.Ramp
	analyser   *audio.Analyser
	peakHolder *audio.PeakHolder
	clipDetect *audio.ClipDetector

	sink      atomic.Pointer[sinkBox]
	recording atomic.Bool

	notifier ClipNotifier

	mu             sync.RWMutex
	state          types.SessionState
	settings       types.AudioSettings
	graph          *graph
	startTime      time.Time
	lastError      string
	warning        string
	connectCancel  context.CancelFunc
	monitor        *monitor
	latestFrame    types.MeterFrame
	lastKnownFrame types.MeterFrame // Cache for TryRLock fallback
}

// New creates an idle session. Initial device preferences and boost state
// come from the configuration.
func New(backend device.Backend, dir *device.Directory, cfg *config.Config) *Session {
	snap := cfg.Snapshot()
	return &Session{
		backend:    backend,
		dir:        dir,
		config:     cfg,
		sampleRate: snap.SampleRate,
		ramp:       audio.NewRamp(),
		analyser:   audio.NewAnalyser(),
		peakHolder: audio.NewPeakHolder(),
		clipDetect: audio.NewClipDetector(),
		state:      types.StateIdle,
		settings: types.AudioSettings{
			InputDeviceID:  snap.AudioInput,
			OutputDeviceID: snap.AudioOutput,
		},
	}
}

// SetClipNotifier registers the clip alert callback. Must be called before
// the first Connect.
func (s *Session) SetClipNotifier(fn ClipNotifier) {
	s.notifier = fn
}

// State returns the current lifecycle state.
func (s *Session) State() types.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connect acquires the input device and wires the audio graph. When inputID
// is empty the session's current preference, or the platform default, is
// used. An already-running graph is torn down fully before the new one is
// built; only a connect attempt still in flight is rejected. Blocks until
// the graph is running; a concurrent Disconnect or a canceled context
// abandons the attempt and returns to idle.
func (s *Session) Connect(ctx context.Context, inputID string) error {
	s.mu.Lock()
	if s.state == types.StateConnecting {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	running := s.state == types.StateRunning
	s.mu.Unlock()

	if running {
		s.Disconnect()
	}

	s.mu.Lock()
	if s.state != types.StateIdle && s.state != types.StateError {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}

	s.state = types.StateConnecting
	s.lastError = ""
	s.warning = ""

	input, output := s.resolveDevicesLocked(inputID)
	s.settings.InputDeviceID = input
	s.settings.OutputDeviceID = output

	ctx, cancel := context.WithCancel(ctx)
	s.connectCancel = cancel
	s.mu.Unlock()
	defer cancel()

	// Node state is fresh for every connect.
	s.analyser.Reset()
	s.peakHolder.Reset()
	s.clipDetect.Reset()
	s.ramp.Snap(s.currentGain())

	g, err := s.buildGraph(ctx, input, output)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectCancel = nil

	if err == nil && ctx.Err() != nil {
		// A disconnect can land after buildGraph's last cancellation
		// check; the graph is fully built by then, so honor the request
		// by tearing it down instead of publishing it.
		g.close()
		err = ctx.Err()
	}

	if err != nil {
		// A failed connect never leaves a half-open graph: buildGraph has
		// released anything partially acquired, so the session returns to
		// idle, with the error recorded for the status surface.
		s.state = types.StateIdle
		if !errors.Is(err, context.Canceled) {
			s.lastError = err.Error()
		}
		return err
	}

	s.graph = g
	s.state = types.StateRunning
	s.startTime = time.Now()
	s.monitor = newMonitor(s)
	s.monitor.start()
	return nil
}

// resolveDevicesLocked picks the effective input and output device IDs:
// explicit request first, then the stored preference, then the platform
// default. Caller must hold s.mu.
func (s *Session) resolveDevicesLocked(inputID string) (input, output string) {
	input = inputID
	if input == "" {
		input = s.settings.InputDeviceID
	}
	if _, ok := s.dir.Lookup(types.DeviceKindInput, input); !ok {
		if def, ok := s.dir.DefaultFor(types.DeviceKindInput); ok {
			input = def.ID
		}
	}

	output = s.settings.OutputDeviceID
	if _, ok := s.dir.Lookup(types.DeviceKindOutput, output); !ok {
		if def, ok := s.dir.DefaultFor(types.DeviceKindOutput); ok {
			output = def.ID
		}
	}
	return input, output
}

// Disconnect tears the graph down and returns to idle. Safe to call in any
// state; during a connect attempt it cancels the acquisition instead.
func (s *Session) Disconnect() {
	s.mu.Lock()

	if s.state == types.StateConnecting {
		if s.connectCancel != nil {
			s.connectCancel()
		}
		s.mu.Unlock()
		return
	}

	if s.state != types.StateRunning {
		// Error state clears back to idle without resources to release.
		if s.state == types.StateError {
			s.state = types.StateIdle
		}
		s.mu.Unlock()
		return
	}

	s.state = types.StateDisconnecting
	mon := s.monitor
	g := s.graph
	s.monitor = nil
	s.graph = nil
	s.mu.Unlock()

	// Teardown order: monitor loop first so nothing reads the nodes, then
	// the graph (capture before playback).
	if mon != nil {
		mon.stop()
	}
	if g != nil {
		g.close()
	}

	s.mu.Lock()
	s.state = types.StateIdle
	s.latestFrame = types.MeterFrame{}
	s.lastKnownFrame = types.MeterFrame{}
	s.mu.Unlock()
}

// handleCaptureFailure moves a running session into the error state after
// the platform halted the capture stream, typically because the input
// device was unplugged. The remaining resources are released so a later
// Connect starts clean. Stale notifications from an already replaced graph
// are ignored.
func (s *Session) handleCaptureFailure(g *graph) {
	s.mu.Lock()
	if s.state != types.StateRunning || s.graph != g {
		s.mu.Unlock()
		return
	}
	s.state = types.StateError
	s.lastError = "capture stream stopped unexpectedly"
	mon := s.monitor
	s.monitor = nil
	s.graph = nil
	s.mu.Unlock()

	slog.Warn("capture stream stopped unexpectedly", "device", g.inputID)
	if mon != nil {
		mon.stop()
	}
	g.close()
}

// UpdateBoost sets the boost level in dB. The running gain ramps to the new
// target; out-of-range values are rejected without side effects.
func (s *Session) UpdateBoost(boostDB float64) error {
	if boostDB < types.MinBoostDB || boostDB > types.MaxBoostDB {
		verr := types.NewValidationError()
		verr.Add("boostLevel", fmt.Sprintf("must be between %v and %v", types.MinBoostDB, types.MaxBoostDB), boostDB)
		return verr
	}

	s.mu.Lock()
	s.settings.BoostLevel = boostDB
	enabled := s.settings.IsBoostEnabled
	s.mu.Unlock()

	s.ramp.SetTarget(audio.ComputeGain(boostDB, enabled))
	return nil
}

// SetBoostEnabled toggles whether the boost is applied to the signal.
func (s *Session) SetBoostEnabled(enabled bool) {
	s.mu.Lock()
	s.settings.IsBoostEnabled = enabled
	boostDB := s.settings.BoostLevel
	s.mu.Unlock()

	s.ramp.SetTarget(audio.ComputeGain(boostDB, enabled))
}

// SetMuted mutes or unmutes the playback output. Metering continues while
// muted; only the monitor output goes silent.
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	s.settings.IsMuted = muted
	g := s.graph
	s.mu.Unlock()

	if g != nil {
		g.muted.Store(muted)
	}
}

// ChangeInputDevice selects a new capture device. A running session is
// rebuilt around the new device; an idle one just updates the preference.
func (s *Session) ChangeInputDevice(ctx context.Context, id string) error {
	if _, ok := s.dir.Lookup(types.DeviceKindInput, id); !ok {
		return fmt.Errorf("%w: input device %q", types.ErrDeviceUnavailable, id)
	}

	s.mu.Lock()
	running := s.state == types.StateRunning
	s.settings.InputDeviceID = id
	s.mu.Unlock()

	if !running {
		return nil
	}

	s.Disconnect()
	return s.Connect(ctx, id)
}

// ChangeOutputDevice retargets the playback endpoint without rebuilding the
// capture side. When the platform refuses the swap the session keeps its
// previous output and records a warning instead of failing.
func (s *Session) ChangeOutputDevice(id string) error {
	if _, ok := s.dir.Lookup(types.DeviceKindOutput, id); !ok {
		return fmt.Errorf("%w: output device %q", types.ErrDeviceUnavailable, id)
	}

	s.mu.Lock()
	g := s.graph
	s.settings.OutputDeviceID = id
	s.mu.Unlock()

	if g == nil {
		return nil
	}

	cfg := device.StreamConfig{SampleRate: s.sampleRate, Channels: 1}
	playback, err := s.backend.OpenPlayback(id, cfg, func(out []float32) {
		g.ring.Read(out)
		if g.muted.Load() {
			clear(out)
		}
	})
	if err == nil {
		err = playback.Start()
		if err != nil {
			_ = playback.Close()
		}
	}
	if err != nil {
		s.mu.Lock()
		s.warning = fmt.Sprintf("output routing failed: %v", err)
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", types.ErrOutputRoutingUnsupported, err)
	}

	s.mu.Lock()
	if s.graph != g {
		// The session was torn down while the swap was in flight; the
		// old graph is gone, so the replacement stream goes with it.
		s.mu.Unlock()
		_ = playback.Stop()
		_ = playback.Close()
		return nil
	}
	old := g.playback
	g.playback = playback
	g.outputID = id
	s.warning = ""
	s.mu.Unlock()

	if old != nil {
		_ = old.Stop()
		_ = old.Close()
	}
	return nil
}

// Reset returns the boost controls to their defaults: 0 dB, disabled,
// unmuted. Device selections are untouched.
func (s *Session) Reset() {
	s.mu.Lock()
	s.settings.BoostLevel = 0
	s.settings.IsBoostEnabled = false
	s.settings.IsMuted = false
	g := s.graph
	s.mu.Unlock()

	s.ramp.SetTarget(1.0)
	if g != nil {
		g.muted.Store(false)
	}
	s.peakHolder.Reset()
}

// RefreshDevices re-enumerates the hardware and reconciles the selected
// devices: a selection that disappeared falls back to the platform default.
func (s *Session) RefreshDevices() error {
	if err := s.dir.Refresh(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dir.Lookup(types.DeviceKindInput, s.settings.InputDeviceID); !ok {
		if def, ok := s.dir.DefaultFor(types.DeviceKindInput); ok {
			s.settings.InputDeviceID = def.ID
		} else {
			s.settings.InputDeviceID = ""
		}
	}
	if _, ok := s.dir.Lookup(types.DeviceKindOutput, s.settings.OutputDeviceID); !ok {
		if def, ok := s.dir.DefaultFor(types.DeviceKindOutput); ok {
			s.settings.OutputDeviceID = def.ID
		} else {
			s.settings.OutputDeviceID = ""
		}
	}
	return nil
}

// ApplySettings loads a stored settings record into the live session.
func (s *Session) ApplySettings(settings types.AudioSettings) error {
	if err := s.UpdateBoost(settings.BoostLevel); err != nil {
		return err
	}
	s.SetBoostEnabled(settings.IsBoostEnabled)
	s.SetMuted(settings.IsMuted)

	s.mu.Lock()
	input := settings.InputDeviceID
	output := settings.OutputDeviceID
	current := s.settings.InputDeviceID
	running := s.state == types.StateRunning
	s.mu.Unlock()

	if output != "" {
		if err := s.ChangeOutputDevice(output); err != nil && !errors.Is(err, types.ErrOutputRoutingUnsupported) {
			return err
		}
	}
	if input != "" && input != current {
		if running {
			return s.ChangeInputDevice(context.Background(), input)
		}
		s.mu.Lock()
		s.settings.InputDeviceID = input
		s.mu.Unlock()
	}
	return nil
}

// SetSink installs the recorder sink on the capture path. A nil sink
// removes it.
func (s *Session) SetSink(sink SampleSink) {
	if sink == nil {
		s.sink.Store(nil)
		s.recording.Store(false)
		return
	}
	s.sink.Store(&sinkBox{sink: sink})
	s.recording.Store(true)
}

// Settings returns a copy of the live settings.
func (s *Session) Settings() types.AudioSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Status returns the session state summary.
func (s *Session) Status() types.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := ""
	if s.state == types.StateRunning {
		uptime = time.Since(s.startTime).Truncate(time.Second).String()
	}

	return types.SessionStatus{
		State:     s.state,
		Connected: s.state == types.StateRunning,
		Uptime:    uptime,
		LastError: s.lastError,
		Warning:   s.warning,
		Recording: s.recording.Load(),
	}
}

// MeterFrame returns the most recent meter frame. Falls back to the last
// known frame when the session mutex is contended, so the meter path never
// blocks on control operations.
func (s *Session) MeterFrame() types.MeterFrame {
	if !s.mu.TryRLock() {
		return s.lastKnownFrame
	}
	defer s.mu.RUnlock()

	if s.state != types.StateRunning {
		return types.MeterFrame{DB: audio.SilenceFloorDB}
	}
	return s.latestFrame
}

// Waveform copies the most recent analysis window into dst. Empty when the
// session is not running.
func (s *Session) Waveform(dst []float32) []float32 {
	if s.State() != types.StateRunning {
		return dst[:0]
	}
	return s.analyser.Waveform(dst)
}

// Spectrum copies the current frequency-bin magnitudes into dst. Empty when
// the session is not running.
func (s *Session) Spectrum(dst []float64) []float64 {
	if s.State() != types.StateRunning {
		return dst[:0]
	}
	return s.analyser.Spectrum(dst)
}

// currentGain computes the target linear gain from the live settings.
func (s *Session) currentGain() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return audio.ComputeGain(s.settings.BoostLevel, s.settings.IsBoostEnabled)
}

func (s *Session) settingsSnapshot() types.AudioSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Close disconnects and releases the session. The backend itself is owned
// by the caller.
func (s *Session) Close() {
	s.Disconnect()
}
