package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/hertzlab/micboost/internal/audio"
	"github.com/hertzlab/micboost/internal/device"
)

// graph bundles the live hardware resources of one connected session: the
// capture stream, the playback stream, and the ring joining them. The
// processing nodes (ramp, analyser, meters) live on the Session and survive
// graph rebuilds.
type graph struct {
	capture  device.Stream
	playback device.Stream
	ring     *audio.Ring

	inputID    string
	outputID   string
	sampleRate int

	muted atomic.Bool
}

// buildGraph opens and starts the playback and capture streams. The context
// is checked between acquisition steps so a disconnect during connect
// abandons the build; partially acquired resources are released on any
// failure path.
func (s *Session) buildGraph(ctx context.Context, inputID, outputID string) (*graph, error) {
	g := &graph{
		ring:       audio.NewRing(audio.DefaultRingCapacity),
		inputID:    inputID,
		outputID:   outputID,
		sampleRate: s.sampleRate,
	}
	g.muted.Store(s.settingsSnapshot().IsMuted)

	cfg := device.StreamConfig{SampleRate: s.sampleRate, Channels: 1}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	playback, err := s.backend.OpenPlayback(outputID, cfg, func(out []float32) {
		g.ring.Read(out)
		if g.muted.Load() {
			clear(out)
		}
	})
	if err != nil {
		return nil, err
	}
	g.playback = playback

	if err := ctx.Err(); err != nil {
		g.closePlayback()
		return nil, err
	}

	captureCfg := cfg
	captureCfg.OnStop = func() {
		// Runs on a backend thread; teardown must not happen inline.
		go s.handleCaptureFailure(g)
	}
	capture, err := s.backend.OpenCapture(inputID, captureCfg, func(samples []float32) {
		s.processCapture(g, samples)
	})
	if err != nil {
		g.closePlayback()
		return nil, err
	}
	g.capture = capture

	if err := ctx.Err(); err != nil {
		g.close()
		return nil, err
	}

	if err := playback.Start(); err != nil {
		g.close()
		return nil, err
	}
	if err := capture.Start(); err != nil {
		g.close()
		return nil, err
	}

	return g, nil
}

// processCapture is the capture callback chain: gain, analysis tap,
// recorder sink, then the monitor ring. Runs on the audio thread.
func (s *Session) processCapture(g *graph, samples []float32) {
	s.ramp.Apply(samples, g.sampleRate)
	s.analyser.Push(samples)

	if box := s.sink.Load(); box != nil {
		box.sink.Write(samples)
	}

	g.ring.Write(samples)
}

// close releases the graph's resources: capture first so no more samples
// arrive, then the ring, then playback. Errors are logged and swallowed;
// teardown always completes.
func (g *graph) close() {
	if g.capture != nil {
		if err := g.capture.Stop(); err != nil {
			slog.Warn("failed to stop capture stream", "error", err)
		}
		if err := g.capture.Close(); err != nil {
			slog.Warn("failed to close capture stream", "error", err)
		}
		g.capture = nil
	}

	g.ring.Reset()
	g.closePlayback()
}

func (g *graph) closePlayback() {
	if g.playback == nil {
		return
	}
	if err := g.playback.Stop(); err != nil {
		slog.Warn("failed to stop playback stream", "error", err)
	}
	if err := g.playback.Close(); err != nil {
		slog.Warn("failed to close playback stream", "error", err)
	}
	g.playback = nil
}
