package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"rtsp-timelapse/pkg/cachedstats"
	"rtsp-timelapse/pkg/config"
	"rtsp-timelapse/pkg/framestore"
	"rtsp-timelapse/pkg/handlers"
	"rtsp-timelapse/pkg/logging"
	"rtsp-timelapse/pkg/models"
	"rtsp-timelapse/pkg/notify"
	"rtsp-timelapse/pkg/scheduler"
	"rtsp-timelapse/pkg/server"
	"rtsp-timelapse/pkg/services/snapshot"
	"rtsp-timelapse/pkg/services/video"
	"rtsp-timelapse/pkg/stats"
	"rtsp-timelapse/pkg/util"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel)

	// Ensure data directories exist
	if err := util.EnsureDirs(cfg.DataDir, cfg.FramesDir, cfg.TimelapsesDir); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := framestore.New(cfg.FramesDir)
	status := &models.RunStatus{}

	capturer := snapshot.NewService(cfg, &snapshot.FFmpegGrabber{FFmpegPath: cfg.FFmpegPath}, store, logger)
	encoder := video.NewFFmpegEncoder(cfg, logger)
	generator := video.NewGenerator(cfg, store, encoder, video.MediaProber{}, logger)
	dispatcher := notify.NewDispatcher(cfg.Sinks, logger)
	sched := scheduler.New(cfg, capturer, generator, dispatcher, status, logger)

	logger.Info("rtsp-timelapse starting",
		"stream", cfg.RTSPURL.Redacted(),
		"data_path", cfg.DataDir,
		"notification_targets", len(cfg.Sinks))
	for _, sink := range cfg.Sinks {
		logger.Debug("notification target", "target", sink.Name())
	}

	if cfg.StatusAddr != "" {
		collector := stats.NewCollector(cfg, store, status)
		cache := cachedstats.New(collector)
		cache.RunUpdater(ctx)

		router := server.SetupRouter(&handlers.Handlers{
			DataDir:  cfg.DataDir,
			Cache:    cache,
			Reporter: collector,
			Frames:   store,
			Trigger:  sched,
		}, cfg.TimelapsesDir)

		// A status server failure stops the service.
		serverDone := make(chan struct{})
		go func() {
			defer close(serverDone)
			if err := server.StartServer(ctx, cfg.StatusAddr, router); err != nil {
				logger.Error("status server failed", "addr", cfg.StatusAddr, "error", err)
				stop()
			}
		}()
		defer func() { <-serverDone }()
	}

	if err := sched.Run(ctx); err != nil {
		return err
	}
	slog.Info("rtsp-timelapse stopped")
	return nil
}
