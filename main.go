// Package main provides a microphone booster service: it captures audio from
// a selected input device, applies an adjustable gain boost, and routes the
// amplified signal to a monitor output, with a web control surface for
// levels, device selection, and recording.
//
// Usage:
//
//	micboost [-config path/to/config.json]
//
// If -config is not specified, the booster looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/hertzlab/micboost/internal/audio"
	"github.com/hertzlab/micboost/internal/config"
	"github.com/hertzlab/micboost/internal/device"
	"github.com/hertzlab/micboost/internal/notify"
	"github.com/hertzlab/micboost/internal/recording"
	"github.com/hertzlab/micboost/internal/session"
	"github.com/hertzlab/micboost/internal/store"
	"github.com/hertzlab/micboost/internal/types"
	"github.com/hertzlab/micboost/internal/util"
)

// Build metadata, injected via -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	backend, err := device.NewMalgoBackend()
	if err != nil {
		slog.Error("failed to initialize audio backend", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			slog.Warn("error releasing audio backend", "error", err)
		}
	}()

	dir := device.NewDirectory(backend)
	dir.OnChange(func() {
		slog.Info("audio device topology changed", "devices", len(dir.All()))
	})
	if err := dir.Refresh(); err != nil {
		slog.Warn("initial device enumeration failed", "error", err)
	}
	stopWatch := dir.Watch(types.DeviceWatchInterval)
	defer stopWatch()

	sess := session.New(backend, dir, cfg)
	defer sess.Close()

	snap := cfg.Snapshot()

	// S3 uploads are optional; the recorder writes local takes regardless.
	var uploader *recording.Uploader
	if snap.HasS3() {
		uploader = recording.NewUploader(recording.S3Config{
			Endpoint:        snap.S3Endpoint,
			Bucket:          snap.S3Bucket,
			AccessKeyID:     snap.S3AccessKeyID,
			SecretAccessKey: snap.S3SecretAccessKey,
		})
		uploader.Start()
		defer uploader.Stop()
	}

	recDir := snap.RecordingPath
	if recDir == "" {
		recDir = filepath.Join(filepath.Dir(*configPath), "recordings")
	}
	maxDuration := time.Duration(snap.RecordingMaxDurationMinutes) * time.Minute
	recorder := recording.NewRecorder(recDir, snap.SampleRate, maxDuration, uploader)

	// Clip notifications read the meter frame at event time so the webhook
	// carries the level that tripped the detector.
	clipNotifier := notify.NewClipNotifier(cfg)
	sess.SetClipNotifier(func(event audio.ClipEvent) {
		frame := sess.MeterFrame()
		settings := sess.Settings()
		clipNotifier.HandleEvent(event, frame.DB, settings.BoostLevel)
	})

	srv := NewServer(cfg, sess, store.New(), recorder, dir)
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	srv.version.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), types.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Stop any in-flight take before the session tears the graph down.
	if recorder.Recording() {
		sess.SetSink(nil)
		if err := recorder.Stop(); err != nil {
			slog.Error("error stopping recorder", "error", err)
		}
	}

	sess.Disconnect()

	slog.Info("shutdown complete")
}
