package notify

import (
	"sync"

	"github.com/hertzlab/micboost/internal/audio"
	"github.com/hertzlab/micboost/internal/config"
	"github.com/hertzlab/micboost/internal/util"
)

// ClipNotifier sends webhook alerts for clip detection events. Each clipping
// episode produces at most one alert and one recovery notification.
type ClipNotifier struct {
	cfg *config.Config

	mu          sync.Mutex
	webhookSent bool
}

// NewClipNotifier returns a ClipNotifier configured with the given config.
func NewClipNotifier(cfg *config.Config) *ClipNotifier {
	return &ClipNotifier{cfg: cfg}
}

// HandleEvent processes a clip event and triggers notifications. Delivery
// runs on this goroutine; callers dispatch from outside the audio path.
func (n *ClipNotifier) HandleEvent(event audio.ClipEvent, levelDB, boostLevel float64) {
	snap := n.cfg.Snapshot()

	if event.JustEntered {
		n.mu.Lock()
		shouldSend := !n.webhookSent && snap.HasWebhook()
		if shouldSend {
			n.webhookSent = true
		}
		n.mu.Unlock()
		if shouldSend {
			util.LogNotifyResult(func() error {
				return SendClipWebhook(snap.WebhookURL, event.DurationMs, levelDB, boostLevel)
			}, "clip webhook")
		}
	}

	if event.JustRecovered {
		n.mu.Lock()
		shouldSend := n.webhookSent
		n.webhookSent = false
		n.mu.Unlock()
		if shouldSend {
			util.LogNotifyResult(func() error {
				return SendRecoveryWebhook(snap.WebhookURL, levelDB, boostLevel)
			}, "recovery webhook")
		}
	}
}

// Reset clears the per-episode notification state.
func (n *ClipNotifier) Reset() {
	n.mu.Lock()
	n.webhookSent = false
	n.mu.Unlock()
}

