package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hertzlab/micboost/internal/config"
	"github.com/hertzlab/micboost/internal/device"
	"github.com/hertzlab/micboost/internal/types"
)

func newTestSession(t *testing.T) (*Session, *device.FakeBackend) {
	t.Helper()

	backend := device.NewFakeBackend()
	backend.AddDevice(types.AudioDevice{ID: "mic1", Label: "Built-in Microphone", Kind: types.DeviceKindInput, IsDefault: true})
	backend.AddDevice(types.AudioDevice{ID: "mic2", Label: "USB Microphone", Kind: types.DeviceKindInput})
	backend.AddDevice(types.AudioDevice{ID: "spk1", Label: "Built-in Speakers", Kind: types.DeviceKindOutput, IsDefault: true})
	backend.AddDevice(types.AudioDevice{ID: "spk2", Label: "Headphones", Kind: types.DeviceKindOutput})

	dir := device.NewDirectory(backend)
	require.NoError(t, dir.Refresh())

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	s := New(backend, dir, cfg)
	t.Cleanup(s.Close)
	return s, backend
}

func connect(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Connect(context.Background(), ""))
	require.Equal(t, types.StateRunning, s.State())
}

func TestConnectSelectsDefaultDevices(t *testing.T) {
	s, backend := newTestSession(t)
	connect(t, s)

	settings := s.Settings()
	assert.Equal(t, "mic1", settings.InputDeviceID)
	assert.Equal(t, "spk1", settings.OutputDeviceID)

	require.Len(t, backend.Captures(), 1)
	require.Len(t, backend.Playbacks(), 1)
	assert.True(t, backend.Captures()[0].Started())
	assert.True(t, backend.Playbacks()[0].Started())
}

func TestConnectExplicitDevice(t *testing.T) {
	s, backend := newTestSession(t)
	require.NoError(t, s.Connect(context.Background(), "mic2"))

	assert.Equal(t, "mic2", s.Settings().InputDeviceID)
	assert.Equal(t, "mic2", backend.Captures()[0].Device.ID)
}

func TestConnectWhileRunningRebuilds(t *testing.T) {
	s, backend := newTestSession(t)
	connect(t, s)

	// A second connect tears the first graph down before building anew:
	// exactly one live graph at any time.
	require.NoError(t, s.Connect(context.Background(), "mic2"))
	assert.Equal(t, types.StateRunning, s.State())
	require.Len(t, backend.Captures(), 2)
	assert.True(t, backend.Captures()[0].IsClosed())
	assert.False(t, backend.Captures()[1].IsClosed())
}

func TestConnectFailureReturnsToIdle(t *testing.T) {
	s, backend := newTestSession(t)
	backend.OpenCaptureErr = types.ErrPermissionDenied

	err := s.Connect(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, types.StateIdle, s.State())
	assert.NotEmpty(t, s.Status().LastError)

	// The playback stream acquired before the failure is released.
	require.Len(t, backend.Playbacks(), 1)
	assert.True(t, backend.Playbacks()[0].IsClosed())
}

func TestConnectCanceledReturnsToIdle(t *testing.T) {
	s, _ := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Connect(ctx, "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.StateIdle, s.State())
	assert.Empty(t, s.Status().LastError)
}

func TestDisconnectDuringLateConnectTearsDown(t *testing.T) {
	s, backend := newTestSession(t)

	// Disconnect lands while the capture stream is mid-Start, past the
	// last cancellation check of the build. The finished graph must still
	// be torn down, never published.
	entered := make(chan struct{})
	release := make(chan struct{})
	backend.CaptureStartHook = func() {
		close(entered)
		<-release
	}

	errc := make(chan error, 1)
	go func() { errc <- s.Connect(context.Background(), "") }()

	<-entered
	s.Disconnect()
	close(release)

	require.ErrorIs(t, <-errc, context.Canceled)
	assert.Equal(t, types.StateIdle, s.State())
	assert.Empty(t, s.Status().LastError)
	require.Len(t, backend.Captures(), 1)
	assert.True(t, backend.Captures()[0].IsClosed())
	assert.True(t, backend.Playbacks()[0].IsClosed())
}

func TestDisconnectReleasesStreams(t *testing.T) {
	s, backend := newTestSession(t)
	connect(t, s)

	s.Disconnect()

	assert.Equal(t, types.StateIdle, s.State())
	assert.True(t, backend.Captures()[0].IsClosed())
	assert.True(t, backend.Playbacks()[0].IsClosed())
}

func TestDisconnectIdempotent(t *testing.T) {
	s, _ := newTestSession(t)

	s.Disconnect()
	assert.Equal(t, types.StateIdle, s.State())

	connect(t, s)
	s.Disconnect()
	s.Disconnect()
	assert.Equal(t, types.StateIdle, s.State())
}

func TestFailedConnectKeepsErrorMessage(t *testing.T) {
	s, backend := newTestSession(t)
	backend.OpenCaptureErr = types.ErrPermissionDenied
	require.Error(t, s.Connect(context.Background(), ""))

	// The message survives the return to idle so the status surface can
	// show what went wrong; a later disconnect is still a no-op.
	s.Disconnect()
	assert.Equal(t, types.StateIdle, s.State())
	assert.NotEmpty(t, s.Status().LastError)
}

func TestReconnectAfterError(t *testing.T) {
	s, backend := newTestSession(t)
	backend.OpenCaptureErr = types.ErrDeviceUnavailable
	require.Error(t, s.Connect(context.Background(), ""))

	backend.OpenCaptureErr = nil
	connect(t, s)
	assert.Empty(t, s.Status().LastError)
}

func TestCaptureStopEntersErrorState(t *testing.T) {
	s, backend := newTestSession(t)
	connect(t, s)

	// The platform halting the capture stream, as on device unplug, moves
	// the session to the error state and releases the playback side.
	backend.Captures()[0].SimulateStop()
	require.Eventually(t, func() bool {
		return s.State() == types.StateError && backend.Playbacks()[0].IsClosed()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "capture stream stopped unexpectedly", s.Status().LastError)

	// A fresh connect recovers.
	connect(t, s)
	assert.Empty(t, s.Status().LastError)
}

func TestGainAppliedToMonitorPath(t *testing.T) {
	s, backend := newTestSession(t)

	// 20 dB is a 10x linear gain; set before connect so the ramp snaps.
	require.NoError(t, s.UpdateBoost(20))
	s.SetBoostEnabled(true)
	connect(t, s)

	capture := backend.Captures()[0]
	capture.Feed([]float32{0.01, 0.01, 0.01, 0.01})

	out := backend.Playbacks()[0].Pull(4)
	for _, v := range out {
		assert.InDelta(t, 0.1, float64(v), 1e-4)
	}
}

func TestUnityGainByDefault(t *testing.T) {
	s, backend := newTestSession(t)
	connect(t, s)

	backend.Captures()[0].Feed([]float32{0.25, -0.25})
	out := backend.Playbacks()[0].Pull(2)
	assert.InDelta(t, 0.25, float64(out[0]), 1e-6)
	assert.InDelta(t, -0.25, float64(out[1]), 1e-6)
}

func TestDisabledBoostIsUnity(t *testing.T) {
	s, backend := newTestSession(t)
	require.NoError(t, s.UpdateBoost(40))
	connect(t, s)

	backend.Captures()[0].Feed([]float32{0.1})
	out := backend.Playbacks()[0].Pull(1)
	assert.InDelta(t, 0.1, float64(out[0]), 1e-6)
}

func TestUpdateBoostRejectsOutOfRange(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.UpdateBoost(12))

	var verr *types.ValidationError
	require.ErrorAs(t, s.UpdateBoost(1500), &verr)
	require.ErrorAs(t, s.UpdateBoost(-1), &verr)

	// The previous value survives the rejected update.
	assert.Equal(t, 12.0, s.Settings().BoostLevel)
}

func TestMuteSilencesPlaybackOnly(t *testing.T) {
	s, backend := newTestSession(t)
	connect(t, s)
	s.SetMuted(true)

	backend.Captures()[0].Feed([]float32{0.5, 0.5})
	out := backend.Playbacks()[0].Pull(2)
	assert.Equal(t, []float32{0, 0}, out)

	// The analysis tap still sees the signal.
	wave := s.Waveform(nil)
	var sum float64
	for _, v := range wave {
		sum += float64(v)
	}
	assert.Greater(t, sum, 0.0)

	s.SetMuted(false)
	backend.Captures()[0].Feed([]float32{0.5})
	out = backend.Playbacks()[0].Pull(1)
	assert.InDelta(t, 0.5, float64(out[0]), 1e-6)
}

func TestChangeOutputDeviceSwapsPlaybackOnly(t *testing.T) {
	s, backend := newTestSession(t)
	connect(t, s)

	require.NoError(t, s.ChangeOutputDevice("spk2"))

	// The capture stream is untouched; a second playback stream replaces
	// the first.
	assert.Len(t, backend.Captures(), 1)
	assert.False(t, backend.Captures()[0].IsClosed())
	playbacks := backend.Playbacks()
	require.Len(t, playbacks, 2)
	assert.True(t, playbacks[0].IsClosed())
	assert.True(t, playbacks[1].Started())
	assert.Equal(t, "spk2", s.Settings().OutputDeviceID)

	// Audio keeps flowing through the new output.
	backend.Captures()[0].Feed([]float32{0.3})
	out := playbacks[1].Pull(1)
	assert.InDelta(t, 0.3, float64(out[0]), 1e-6)
}

func TestChangeOutputDeviceFailureKeepsOldOutput(t *testing.T) {
	s, backend := newTestSession(t)
	connect(t, s)

	backend.OpenPlaybackErr = errors.New("exclusive mode")
	err := s.ChangeOutputDevice("spk2")
	require.ErrorIs(t, err, types.ErrOutputRoutingUnsupported)

	// Session keeps running on the previous output and surfaces a warning.
	assert.Equal(t, types.StateRunning, s.State())
	assert.False(t, backend.Playbacks()[0].IsClosed())
	assert.NotEmpty(t, s.Status().Warning)
}

func TestChangeOutputDeviceDuringDisconnect(t *testing.T) {
	s, backend := newTestSession(t)
	connect(t, s)

	// Disconnect completes while the replacement stream is being opened.
	// The new stream must not be attached to the dead graph or left
	// running.
	entered := make(chan struct{})
	release := make(chan struct{})
	backend.PlaybackOpenHook = func() {
		close(entered)
		<-release
	}

	errc := make(chan error, 1)
	go func() { errc <- s.ChangeOutputDevice("spk2") }()

	<-entered
	s.Disconnect()
	close(release)

	require.NoError(t, <-errc)
	assert.Equal(t, types.StateIdle, s.State())
	for _, p := range backend.Playbacks() {
		assert.False(t, p.Started())
		assert.True(t, p.IsClosed())
	}
}

func TestChangeOutputDeviceUnknown(t *testing.T) {
	s, _ := newTestSession(t)
	assert.ErrorIs(t, s.ChangeOutputDevice("ghost"), types.ErrDeviceUnavailable)
}

func TestChangeInputDeviceRebuildsGraph(t *testing.T) {
	s, backend := newTestSession(t)
	connect(t, s)

	require.NoError(t, s.ChangeInputDevice(context.Background(), "mic2"))
	assert.Equal(t, types.StateRunning, s.State())

	captures := backend.Captures()
	require.Len(t, captures, 2)
	assert.True(t, captures[0].IsClosed())
	assert.Equal(t, "mic2", captures[1].Device.ID)
}

func TestChangeInputDeviceWhileIdle(t *testing.T) {
	s, backend := newTestSession(t)

	require.NoError(t, s.ChangeInputDevice(context.Background(), "mic2"))
	assert.Equal(t, types.StateIdle, s.State())
	assert.Empty(t, backend.Captures())
	assert.Equal(t, "mic2", s.Settings().InputDeviceID)
}

func TestResetRestoresDefaultsKeepsDevices(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.UpdateBoost(24))
	s.SetBoostEnabled(true)
	s.SetMuted(true)
	require.NoError(t, s.ChangeInputDevice(context.Background(), "mic2"))

	s.Reset()

	settings := s.Settings()
	assert.Equal(t, 0.0, settings.BoostLevel)
	assert.False(t, settings.IsBoostEnabled)
	assert.False(t, settings.IsMuted)
	assert.Equal(t, "mic2", settings.InputDeviceID)
}

func TestRefreshDevicesReconcilesRemovedDevice(t *testing.T) {
	s, backend := newTestSession(t)
	require.NoError(t, s.ChangeInputDevice(context.Background(), "mic2"))

	backend.SetDevices(types.DeviceKindInput, []types.AudioDevice{
		{ID: "mic1", Label: "Built-in Microphone", Kind: types.DeviceKindInput, IsDefault: true},
	})
	require.NoError(t, s.RefreshDevices())

	assert.Equal(t, "mic1", s.Settings().InputDeviceID)
}

func TestRefreshDevicesNoOutputsLeavesOutputUnselected(t *testing.T) {
	s, backend := newTestSession(t)

	backend.SetDevices(types.DeviceKindInput, []types.AudioDevice{
		{ID: "mic1", Label: "Built-in Microphone", Kind: types.DeviceKindInput, IsDefault: true},
	})
	backend.SetDevices(types.DeviceKindOutput, nil)
	require.NoError(t, s.RefreshDevices())

	assert.Equal(t, "mic1", s.Settings().InputDeviceID)
	assert.Empty(t, s.Settings().OutputDeviceID)
}

func TestApplySettings(t *testing.T) {
	s, _ := newTestSession(t)
	connect(t, s)

	require.NoError(t, s.ApplySettings(types.AudioSettings{
		InputDeviceID:  "mic2",
		OutputDeviceID: "spk2",
		BoostLevel:     18,
		IsBoostEnabled: true,
		IsMuted:        true,
	}))

	settings := s.Settings()
	assert.Equal(t, "mic2", settings.InputDeviceID)
	assert.Equal(t, "spk2", settings.OutputDeviceID)
	assert.Equal(t, 18.0, settings.BoostLevel)
	assert.True(t, settings.IsBoostEnabled)
	assert.True(t, settings.IsMuted)
	assert.Equal(t, types.StateRunning, s.State())
}

func TestMeterFrameWhileIdle(t *testing.T) {
	s, _ := newTestSession(t)

	frame := s.MeterFrame()
	assert.Equal(t, 0.0, frame.Level)
	assert.Equal(t, -100.0, frame.DB)
}

func TestMonitorPublishesFrames(t *testing.T) {
	s, backend := newTestSession(t)
	connect(t, s)

	capture := backend.Captures()[0]
	samples := make([]float32, 2048)
	for i := range samples {
		samples[i] = 0.5
	}

	require.Eventually(t, func() bool {
		capture.Feed(samples)
		return s.MeterFrame().Level > 50
	}, 2*time.Second, 10*time.Millisecond)

	frame := s.MeterFrame()
	assert.Greater(t, frame.HeldPeak, 50.0)
	assert.Greater(t, frame.DB, -10.0)
}

func TestWaveformEmptyWhileIdle(t *testing.T) {
	s, _ := newTestSession(t)
	assert.Empty(t, s.Waveform(nil))
	assert.Empty(t, s.Spectrum(nil))
}

func TestRecorderSinkReceivesPostGainSamples(t *testing.T) {
	s, backend := newTestSession(t)
	require.NoError(t, s.UpdateBoost(20))
	s.SetBoostEnabled(true)
	connect(t, s)

	var got []float32
	s.SetSink(sinkFunc(func(samples []float32) {
		got = append(got, samples...)
	}))
	assert.True(t, s.Status().Recording)

	backend.Captures()[0].Feed([]float32{0.01})
	require.Len(t, got, 1)
	assert.InDelta(t, 0.1, float64(got[0]), 1e-4)

	s.SetSink(nil)
	assert.False(t, s.Status().Recording)
	backend.Captures()[0].Feed([]float32{0.01})
	assert.Len(t, got, 1)
}

type sinkFunc func(samples []float32)

func (f sinkFunc) Write(samples []float32) { f(samples) }
