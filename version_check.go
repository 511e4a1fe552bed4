package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	"github.com/hertzlab/micboost/internal/types"
	"github.com/hertzlab/micboost/internal/util"
)

const (
	releaseRepo         = "hertzlab/micboost"
	releaseInterval     = 24 * time.Hour
	releaseInitialDelay = 30 * time.Second
	releaseHTTPTimeout  = 30 * time.Second
	releaseRetries      = 3
)

// errTransient marks failures worth retrying within the same poll cycle.
var errTransient = errors.New("transient release check failure")

// VersionChecker polls GitHub for the newest published release and surfaces
// update availability on the status feed. It is safe for concurrent use.
type VersionChecker struct {
	client  *http.Client
	baseURL string

	mu     sync.RWMutex
	latest string
	etag   string

	stop chan struct{}
	done chan struct{}
}

// NewVersionChecker starts the background release poll.
func NewVersionChecker() *VersionChecker {
	return newVersionChecker("https://api.github.com", &http.Client{Timeout: releaseHTTPTimeout})
}

func newVersionChecker(baseURL string, client *http.Client) *VersionChecker {
	vc := &VersionChecker{
		client:  client,
		baseURL: baseURL,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go vc.run()
	return vc
}

// Stop halts the poll loop and waits for it to exit. Call once.
func (vc *VersionChecker) Stop() {
	close(vc.stop)
	<-vc.done
}

// run waits out the startup delay, then polls once per interval.
func (vc *VersionChecker) run() {
	defer close(vc.done)

	timer := time.NewTimer(releaseInitialDelay)
	defer timer.Stop()
	for {
		select {
		case <-vc.stop:
			return
		case <-timer.C:
		}
		vc.poll()
		timer.Reset(releaseInterval)
	}
}

// poll retries transient failures with exponential backoff before giving up
// until the next cycle.
func (vc *VersionChecker) poll() {
	backoff := util.NewBackoff(time.Minute, 4*time.Minute)
	for attempt := 0; attempt < releaseRetries; attempt++ {
		err := vc.fetchLatest()
		if err == nil {
			return
		}
		if !errors.Is(err, errTransient) || attempt == releaseRetries-1 {
			slog.Warn("release check failed", "error", err)
			return
		}
		select {
		case <-time.After(backoff.Next()):
		case <-vc.stop:
			return
		}
	}
}

type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// fetchLatest retrieves the newest release, using the saved ETag so an
// unchanged release costs a 304 instead of a body.
func (vc *VersionChecker) fetchLatest() error {
	req, err := http.NewRequest(http.MethodGet, vc.baseURL+"/repos/"+releaseRepo+"/releases/latest", http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "micboost/"+Version)

	vc.mu.RLock()
	if vc.etag != "" {
		req.Header.Set("If-None-Match", vc.etag)
	}
	vc.mu.RUnlock()

	resp, err := vc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errTransient, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		// No releases published yet.
		return nil
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: rate limited (%d)", errTransient, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", errTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return fmt.Errorf("%w: decode release: %v", errTransient, err)
	}
	if release.Draft || release.Prerelease || release.TagName == "" {
		return nil
	}

	latest := trimVersion(release.TagName)

	vc.mu.Lock()
	changed := latest != vc.latest
	vc.latest = latest
	if etag := resp.Header.Get("ETag"); etag != "" {
		vc.etag = etag
	}
	vc.mu.Unlock()

	if changed && updateAvailable(latest) {
		slog.Info("newer release available", "current", Version, "latest", latest)
	}
	return nil
}

// Info returns version details for the status surface.
func (vc *VersionChecker) Info() types.VersionInfo {
	vc.mu.RLock()
	latest := vc.latest
	vc.mu.RUnlock()

	return types.VersionInfo{
		Current:     trimVersion(Version),
		Latest:      latest,
		UpdateAvail: updateAvailable(latest),
		Commit:      Commit,
		BuildTime:   util.FormatHumanTime(BuildTime),
	}
}

func trimVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// updateAvailable reports whether latest is ahead of the running build.
// Dev builds never report an update.
func updateAvailable(latest string) bool {
	current := trimVersion(Version)
	if latest == "" || current == "dev" || current == "unknown" {
		return false
	}
	return semver.Compare("v"+latest, "v"+current) > 0
}
