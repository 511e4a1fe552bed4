package device

import (
	"fmt"
	"sync"

	"github.com/hertzlab/micboost/internal/types"
)

// FakeBackend is an in-memory Backend for tests. Devices are injected,
// capture input is fed manually with Feed, and playback output is pulled
// on demand with Pull.
type FakeBackend struct {
	mu       sync.Mutex
	devices  map[types.DeviceKind][]types.AudioDevice
	captures []*FakeStream
	playback []*FakeStream

	// EnumerateErr, OpenCaptureErr and OpenPlaybackErr are returned by the
	// corresponding calls when non-nil.
	EnumerateErr    error
	OpenCaptureErr  error
	OpenPlaybackErr error

	// CaptureStartHook runs inside Start of every capture stream, before
	// the stream is marked running. PlaybackOpenHook runs at the top of
	// OpenPlayback. Both let tests interleave lifecycle calls at exact
	// points; they may block.
	CaptureStartHook func()
	PlaybackOpenHook func()

	closed bool
}

// NewFakeBackend returns a backend with no devices.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{devices: make(map[types.DeviceKind][]types.AudioDevice)}
}

// AddDevice registers a device for enumeration.
func (b *FakeBackend) AddDevice(dev types.AudioDevice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[dev.Kind] = append(b.devices[dev.Kind], dev)
}

// SetDevices replaces all devices of the given kind.
func (b *FakeBackend) SetDevices(kind types.DeviceKind, devs []types.AudioDevice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[kind] = devs
}

func (b *FakeBackend) Enumerate(kind types.DeviceKind) ([]types.AudioDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.EnumerateErr != nil {
		return nil, b.EnumerateErr
	}
	return append([]types.AudioDevice(nil), b.devices[kind]...), nil
}

func (b *FakeBackend) lookupLocked(kind types.DeviceKind, id string) (types.AudioDevice, error) {
	devs := b.devices[kind]
	if id == "" {
		for _, d := range devs {
			if d.IsDefault {
				return d, nil
			}
		}
		if len(devs) > 0 {
			return devs[0], nil
		}
		return types.AudioDevice{}, fmt.Errorf("%w: no %s devices", types.ErrDeviceUnavailable, kind)
	}
	for _, d := range devs {
		if d.ID == id {
			return d, nil
		}
	}
	return types.AudioDevice{}, fmt.Errorf("%w: %s device %q", types.ErrDeviceUnavailable, kind, id)
}

func (b *FakeBackend) OpenCapture(id string, cfg StreamConfig, cb CaptureCallback) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.OpenCaptureErr != nil {
		return nil, b.OpenCaptureErr
	}
	dev, err := b.lookupLocked(types.DeviceKindInput, id)
	if err != nil {
		return nil, err
	}
	s := &FakeStream{Device: dev, captureCb: cb, onStop: cfg.OnStop, startHook: b.CaptureStartHook}
	b.captures = append(b.captures, s)
	return s, nil
}

func (b *FakeBackend) OpenPlayback(id string, cfg StreamConfig, cb PlaybackCallback) (Stream, error) {
	if b.PlaybackOpenHook != nil {
		b.PlaybackOpenHook()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.OpenPlaybackErr != nil {
		return nil, b.OpenPlaybackErr
	}
	dev, err := b.lookupLocked(types.DeviceKindOutput, id)
	if err != nil {
		return nil, err
	}
	s := &FakeStream{Device: dev, playbackCb: cb, onStop: cfg.OnStop}
	b.playback = append(b.playback, s)
	return s, nil
}

func (b *FakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed reports whether Close was called.
func (b *FakeBackend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Captures returns all capture streams opened so far.
func (b *FakeBackend) Captures() []*FakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*FakeStream(nil), b.captures...)
}

// Playbacks returns all playback streams opened so far.
func (b *FakeBackend) Playbacks() []*FakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*FakeStream(nil), b.playback...)
}

// FakeStream is a Stream driven by the test instead of an audio thread.
type FakeStream struct {
	Device types.AudioDevice

	// StartErr is returned by Start when non-nil.
	StartErr error

	mu         sync.Mutex
	captureCb  CaptureCallback
	playbackCb PlaybackCallback
	onStop     func()
	startHook  func()
	started    bool
	closed     bool
}

// SimulateStop halts the stream as the platform would when its device
// disappears, invoking the OnStop hook. No-op unless the stream is running.
func (s *FakeStream) SimulateStop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	onStop := s.onStop
	s.mu.Unlock()
	if onStop != nil {
		onStop()
	}
}

func (s *FakeStream) Start() error {
	if s.startHook != nil {
		s.startHook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartErr != nil {
		return s.StartErr
	}
	s.started = true
	return nil
}

func (s *FakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *FakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.started = false
	return nil
}

// Started reports whether the stream is running.
func (s *FakeStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// IsClosed reports whether the stream was closed.
func (s *FakeStream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Feed pushes a window of samples through the capture callback, as the
// audio thread would. No-op unless the stream is started.
func (s *FakeStream) Feed(samples []float32) {
	s.mu.Lock()
	cb := s.captureCb
	started := s.started
	s.mu.Unlock()
	if started && cb != nil {
		cb(samples)
	}
}

// Pull asks the playback callback for n samples and returns them.
func (s *FakeStream) Pull(n int) []float32 {
	s.mu.Lock()
	cb := s.playbackCb
	started := s.started
	s.mu.Unlock()
	out := make([]float32, n)
	if started && cb != nil {
		cb(out)
	}
	return out
}
