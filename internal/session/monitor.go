package session

import (
	"time"

	"github.com/hertzlab/micboost/internal/audio"
	"github.com/hertzlab/micboost/internal/types"
)

// monitor is the meter loop of a running session. Every tick it samples the
// analysis tap, recomputes the level estimate, advances the peak hold and
// clip detection, and publishes a fresh meter frame.
type monitor struct {
	session  *Session
	stopChan chan struct{}
	done     chan struct{}
	scratch  []float32
}

func newMonitor(s *Session) *monitor {
	return &monitor{
		session:  s,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		scratch:  make([]float32, audio.TapSize),
	}
}

func (m *monitor) start() {
	go m.run()
}

// stop halts the loop and waits for the final tick to finish.
func (m *monitor) stop() {
	close(m.stopChan)
	<-m.done
}

func (m *monitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(types.MeterInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case now := <-ticker.C:
			m.tick(now)
		}
	}
}

func (m *monitor) tick(now time.Time) {
	s := m.session

	wave := s.analyser.Waveform(m.scratch)
	sample := audio.Estimate(wave)
	heldPeak := s.peakHolder.Update(sample.Level, now)

	snap := s.config.Snapshot()
	clipCfg := audio.ClipConfig{
		DurationMs: snap.ClipDurationMs,
		RecoveryMs: snap.ClipRecoveryMs,
	}
	event := s.clipDetect.Update(audio.CountClips(wave), clipCfg, now)
	if (event.JustEntered || event.JustRecovered) && s.notifier != nil {
		go s.notifier(event)
	}

	settings := s.settingsSnapshot()
	boostDB := 0.0
	if settings.IsBoostEnabled {
		boostDB = settings.BoostLevel
	}

	frame := types.MeterFrame{
		Level:        sample.Level,
		DB:           sample.DB,
		BoostedLevel: audio.BoostedDisplayLevel(sample.Level, boostDB),
		HeldPeak:     heldPeak,
		Clipping:     event.Clipping,
	}

	s.mu.Lock()
	s.latestFrame = frame
	s.lastKnownFrame = frame
	s.mu.Unlock()
}
