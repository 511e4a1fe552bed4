package device

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/hertzlab/micboost/internal/types"
	"github.com/hertzlab/micboost/internal/util"
)

// MalgoBackend wraps a miniaudio context. One backend is shared by all
// streams for the lifetime of the process.
type MalgoBackend struct {
	ctx *malgo.AllocatedContext
}

// NewMalgoBackend initializes the platform audio context.
func NewMalgoBackend() (*MalgoBackend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, util.WrapError("initialize audio context", err)
	}
	return &MalgoBackend{ctx: ctx}, nil
}

func malgoDeviceType(kind types.DeviceKind) malgo.DeviceType {
	if kind == types.DeviceKindOutput {
		return malgo.Playback
	}
	return malgo.Capture
}

// Enumerate lists endpoints of the given kind. Endpoints whose full info
// cannot be read are skipped rather than failing the whole listing.
func (b *MalgoBackend) Enumerate(kind types.DeviceKind) ([]types.AudioDevice, error) {
	typ := malgoDeviceType(kind)
	infos, err := b.ctx.Devices(typ)
	if err != nil {
		return nil, util.WrapError("enumerate audio devices", err)
	}

	result := make([]types.AudioDevice, 0, len(infos))
	seen := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		full, err := b.ctx.DeviceInfo(typ, info.ID, malgo.Shared)
		if err != nil {
			slog.Warn("Skipping unreadable audio device", "kind", kind, "error", err)
			continue
		}

		id := hex.EncodeToString(full.ID[:])
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		result = append(result, types.AudioDevice{
			ID:        id,
			Label:     deviceLabel(full.Name(), id, kind),
			Kind:      kind,
			IsDefault: full.IsDefault == 1,
		})
	}
	return result, nil
}

// deviceLabel substitutes a readable placeholder when the platform reports
// an empty name.
func deviceLabel(name, id string, kind types.DeviceKind) string {
	if name != "" {
		return name
	}
	short := id
	if len(short) > 5 {
		short = short[:5]
	}
	if kind == types.DeviceKindOutput {
		return "Speaker " + short
	}
	return "Microphone " + short
}

func decodeDeviceID(id string) (malgo.DeviceID, error) {
	var devID malgo.DeviceID
	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return devID, fmt.Errorf("%w: malformed device id %q", types.ErrDeviceUnavailable, id)
	}
	copy(devID[:], idBytes)
	return devID, nil
}

// OpenCapture opens an input stream delivering mono float32 windows.
func (b *MalgoBackend) OpenCapture(id string, cfg StreamConfig, cb CaptureCallback) (Stream, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if id != "" {
		devID, err := decodeDeviceID(id)
		if err != nil {
			return nil, err
		}
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	stream := &malgoStream{}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			cb(stream.decode(data, frameCount, cfg.Channels))
		},
		Stop: stream.stopCallback(cfg.OnStop),
	}

	dev, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDeviceUnavailable, err)
	}
	stream.device = dev
	return stream, nil
}

// OpenPlayback opens an output stream pulling mono float32 windows.
func (b *MalgoBackend) OpenPlayback(id string, cfg StreamConfig, cb PlaybackCallback) (Stream, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if id != "" {
		devID, err := decodeDeviceID(id)
		if err != nil {
			return nil, err
		}
		deviceConfig.Playback.DeviceID = devID.Pointer()
	}

	stream := &malgoStream{}
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			samples := stream.scratchFor(int(frameCount) * cfg.Channels)
			cb(samples)
			stream.encode(out, samples)
		},
		Stop: stream.stopCallback(cfg.OnStop),
	}

	dev, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDeviceUnavailable, err)
	}
	stream.device = dev
	return stream, nil
}

// Close releases the miniaudio context.
func (b *MalgoBackend) Close() error {
	if err := b.ctx.Uninit(); err != nil {
		return util.WrapError("release audio context", err)
	}
	b.ctx.Free()
	return nil
}

// malgoStream adapts a malgo device to the Stream interface and handles
// the byte-level float32 codec. scratch is reused across callbacks; the
// audio thread is the only writer.
type malgoStream struct {
	device  *malgo.Device
	scratch []float32
	closing atomic.Bool
}

// stopCallback wraps onStop so a deliberate Stop or Close does not get
// reported as a device failure. miniaudio invokes the stop proc for
// every halt; only the spontaneous ones are of interest.
func (s *malgoStream) stopCallback(onStop func()) func() {
	if onStop == nil {
		return nil
	}
	return func() {
		if !s.closing.Load() {
			onStop()
		}
	}
}

func (s *malgoStream) scratchFor(n int) []float32 {
	if cap(s.scratch) < n {
		s.scratch = make([]float32, n)
	}
	return s.scratch[:n]
}

func (s *malgoStream) decode(data []byte, frameCount uint32, channels int) []float32 {
	n := int(frameCount) * channels
	samples := s.scratchFor(n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}

func (s *malgoStream) encode(out []byte, samples []float32) {
	for i, v := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
}

func (s *malgoStream) Start() error {
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrDeviceUnavailable, err)
	}
	return nil
}

func (s *malgoStream) Stop() error {
	s.closing.Store(true)
	return s.device.Stop()
}

func (s *malgoStream) Close() error {
	s.closing.Store(true)
	s.device.Uninit()
	return nil
}
