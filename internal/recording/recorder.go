// Package recording writes the post-gain stream to FLAC files, one file per
// take, with optional upload of finished takes to S3-compatible storage.
package recording

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"github.com/hertzlab/micboost/internal/util"
)

// FLAC output format. Input samples are float32 mono; they are quantized to
// 16-bit before encoding.
const (
	BitsPerSample = 16
	BlockSize     = 4096
)

// sampleQueueDepth bounds how many capture windows can sit between the
// audio thread and the encoder goroutine.
const sampleQueueDepth = 256

// Sentinel errors for recorder operations.
var (
	ErrAlreadyRecording = errors.New("recorder already running")
	ErrNotRecording     = errors.New("recorder not running")
)

// Recorder manages one take at a time. Write is safe to call from the
// audio thread; encoding happens on a separate goroutine.
type Recorder struct {
	dir         string
	sampleRate  int
	maxDuration time.Duration
	uploader    *Uploader

	mu     sync.Mutex
	active *take
}

// NewRecorder creates a recorder writing takes into dir. uploader may be
// nil when S3 upload is not configured.
func NewRecorder(dir string, sampleRate int, maxDuration time.Duration, uploader *Uploader) *Recorder {
	return &Recorder{
		dir:         dir,
		sampleRate:  sampleRate,
		maxDuration: maxDuration,
		uploader:    uploader,
	}
}

// Start begins a new take and returns its file path.
func (r *Recorder) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return "", ErrAlreadyRecording
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", util.WrapError("create recording directory", err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("take-%s.flac", time.Now().Format("20060102-150405")))
	t, err := newTake(path, r.sampleRate, r.maxDuration)
	if err != nil {
		return "", err
	}

	r.active = t
	slog.Info("recording started", "path", path)
	return path, nil
}

// Stop finishes the current take, flushes the encoder and queues the file
// for upload when an uploader is configured.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	t := r.active
	r.active = nil
	r.mu.Unlock()

	if t == nil {
		return ErrNotRecording
	}

	err := t.finish()
	if dropped := t.dropped.Load(); dropped > 0 {
		slog.Warn("recorder dropped sample windows", "path", t.path, "windows", dropped)
	}
	slog.Info("recording stopped", "path", t.path, "samples", t.totalSamples)

	if err == nil && r.uploader != nil {
		r.uploader.Enqueue(t.path)
	}
	return err
}

// Recording reports whether a take is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Write feeds a window of post-gain samples into the current take. Called
// from the audio thread; never blocks. Windows that cannot be queued are
// dropped and counted.
func (r *Recorder) Write(samples []float32) {
	r.mu.Lock()
	t := r.active
	r.mu.Unlock()
	if t == nil {
		return
	}
	t.write(samples)
}

// take is a single FLAC file being written.
type take struct {
	path         string
	enc          *flac.Encoder
	sampleRate   int
	maxSamples   uint64
	totalSamples uint64

	in      chan []float32
	done    chan struct{}
	dropped atomic.Int64
	encErr  error

	// wmu serializes writers against finish so nothing sends on a
	// closed channel.
	wmu    sync.Mutex
	closed bool
}

func newTake(path string, sampleRate int, maxDuration time.Duration) (*take, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, util.WrapError("create recording file", err)
	}

	info := &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     1,
		BitsPerSample: BitsPerSample,
		NSamples:      0,
	}
	enc, err := flac.NewEncoder(file, info)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, util.WrapError("create flac encoder", err)
	}

	t := &take{
		path:       path,
		enc:        enc,
		sampleRate: sampleRate,
		in:         make(chan []float32, sampleQueueDepth),
		done:       make(chan struct{}),
	}
	if maxDuration > 0 {
		t.maxSamples = uint64(maxDuration.Seconds() * float64(sampleRate))
	}

	go t.encodeLoop()
	return t, nil
}

func (t *take) write(samples []float32) {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	if t.closed {
		return
	}

	window := make([]float32, len(samples))
	copy(window, samples)
	select {
	case t.in <- window:
	default:
		t.dropped.Add(1)
	}
}

// encodeLoop accumulates windows into fixed blocks and encodes them.
func (t *take) encodeLoop() {
	defer close(t.done)

	pending := make([]int32, 0, 2*BlockSize)
	for window := range t.in {
		for _, s := range window {
			pending = append(pending, quantize(s))
		}
		for len(pending) >= BlockSize {
			if err := t.encodeBlock(pending[:BlockSize]); err != nil {
				t.encErr = err
				return
			}
			pending = pending[BlockSize:]
			if t.maxSamples > 0 && t.totalSamples >= t.maxSamples {
				slog.Warn("recording reached maximum duration", "path", t.path)
				return
			}
		}
	}

	if len(pending) > 0 && t.encErr == nil {
		t.encErr = t.encodeBlock(pending)
	}
}

func (t *take) encodeBlock(block []int32) error {
	subframe := &frame.Subframe{
		SubHeader: frame.SubHeader{
			Pred: frame.PredVerbatim,
		},
		Samples:  block,
		NSamples: len(block),
	}

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    uint32(t.sampleRate),
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{subframe},
	}

	if err := t.enc.WriteFrame(f); err != nil {
		return util.WrapError("write flac frame", err)
	}
	t.totalSamples += uint64(len(block))
	return nil
}

// finish drains the queue and closes the encoder. The encoder owns the
// file handle and closes it with the stream trailer.
func (t *take) finish() error {
	t.wmu.Lock()
	t.closed = true
	t.wmu.Unlock()

	close(t.in)
	<-t.done

	var errs []error
	if t.encErr != nil {
		errs = append(errs, t.encErr)
	}
	if err := t.enc.Close(); err != nil {
		errs = append(errs, util.WrapError("close flac encoder", err))
	}
	return errors.Join(errs...)
}

// quantize converts a float32 sample in [-1,1] to a 16-bit value.
func quantize(s float32) int32 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int32(s * 32767)
}
