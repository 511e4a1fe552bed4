package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCheckerFetchesLatestRelease(t *testing.T) {
	requests := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/repos/hertzlab/micboost/releases/latest", r.URL.Path)
		if requests > 1 {
			// The saved ETag rides on every later request.
			assert.Equal(t, `"tag-1"`, r.Header.Get("If-None-Match"))
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"tag-1"`)
		_ = json.NewEncoder(w).Encode(map[string]any{"tag_name": "v1.2.3"})
	}))
	defer ts.Close()

	vc := newVersionChecker(ts.URL, ts.Client())
	defer vc.Stop()

	require.NoError(t, vc.fetchLatest())
	assert.Equal(t, "1.2.3", vc.Info().Latest)

	require.NoError(t, vc.fetchLatest())
	assert.Equal(t, "1.2.3", vc.Info().Latest)
	assert.Equal(t, 2, requests)
}

func TestVersionCheckerIgnoresPrereleases(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"tag_name": "v9.0.0", "prerelease": true})
	}))
	defer ts.Close()

	vc := newVersionChecker(ts.URL, ts.Client())
	defer vc.Stop()

	require.NoError(t, vc.fetchLatest())
	assert.Empty(t, vc.Info().Latest)
}

func TestVersionCheckerRateLimitIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	vc := newVersionChecker(ts.URL, ts.Client())
	defer vc.Stop()

	assert.ErrorIs(t, vc.fetchLatest(), errTransient)
}

func TestUpdateAvailable(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	Version = "1.0.0"
	assert.True(t, updateAvailable("1.2.3"))
	assert.False(t, updateAvailable("1.0.0"))
	assert.False(t, updateAvailable("0.9.9"))
	assert.False(t, updateAvailable(""))

	// Dev builds never report an update.
	Version = "dev"
	assert.False(t, updateAvailable("1.2.3"))
}
