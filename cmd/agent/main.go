package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kinedeck/kinedeck-agent/internal/api"
	"github.com/kinedeck/kinedeck-agent/internal/config"
	"github.com/kinedeck/kinedeck-agent/internal/db"
	"github.com/kinedeck/kinedeck-agent/internal/export"
	"github.com/kinedeck/kinedeck-agent/internal/logging"
	"github.com/kinedeck/kinedeck-agent/internal/media"
	"github.com/kinedeck/kinedeck-agent/internal/playback"
	"github.com/kinedeck/kinedeck-agent/internal/review"
	"github.com/kinedeck/kinedeck-agent/internal/series"
	"github.com/kinedeck/kinedeck-agent/internal/sink"
	"github.com/kinedeck/kinedeck-agent/internal/timeline"
	"github.com/kinedeck/kinedeck-agent/internal/trial"
	"github.com/kinedeck/kinedeck-agent/internal/ui"
	"github.com/kinedeck/kinedeck-agent/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting kinedeck agent", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := trial.NewRepository(database.Conn())

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                   KINEDECK AGENT v0.1.0                   ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	prober := media.NewCachedProber(&media.ToolProber{
		FFmpegPath:  cfg.FFmpegPath(),
		FFprobePath: cfg.FFprobePath(),
	}, logger)

	probeCtx, probeCancel := context.WithTimeout(context.Background(), cfg.ProbeTimeout())
	caps, err := prober.Refresh(probeCtx)
	probeCancel()
	if err != nil {
		logger.Warn("initial toolchain probe failed", "error", err)
	}

	var opener media.Opener
	if caps != nil && caps.CaptureAvailable {
		ff, err := media.NewFFmpeg(media.Config{
			FFmpegPath:     cfg.FFmpegPath(),
			FFprobePath:    cfg.FFprobePath(),
			ProbeTimeout:   cfg.ProbeTimeout(),
			CaptureTimeout: cfg.CaptureTimeout(),
			Logger:         logger,
		})
		if err != nil {
			logger.Warn("ffmpeg opener unavailable, media features disabled", "error", err)
			opener = media.NewStubOpener(logger)
		} else {
			opener = ff
			logger.Info("media toolchain ready",
				"ffmpeg", caps.FFmpeg.Version,
				"ffprobe", caps.FFprobe.Version,
			)
		}
	} else {
		logger.Warn("ffmpeg/ffprobe not found, media features disabled")
		opener = media.NewStubOpener(logger)
	}

	layout := series.DefaultLayout()
	if path := cfg.SeriesLayoutPath(); path != "" {
		loaded, err := series.LoadLayout(path)
		if err != nil {
			logger.Warn("series layout file invalid, using built-in layout", "path", path, "error", err)
		} else {
			layout = loaded
			logger.Info("series layout loaded", "path", path)
		}
	}

	artifacts, err := sink.NewDirSink(cfg.ExportDir(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize export sink: %w", err)
	}

	hub := api.NewHub(logger)

	reviews := review.NewManager(
		opener,
		timeline.NewClock(cfg.FrameRate()),
		layout,
		artifacts,
		export.NewRecorder(artifacts, logger),
		hub,
		logger,
	)

	trialSvc := trial.NewService(repo, opener, logger)
	playbackSvc := playback.NewServer(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := trial.NewRunner(trialSvc, repo, reviews, logger)
	go runner.Start(ctx)

	if cfg.WatchEnabled() {
		w, err := watcher.New(logger, func(sourceID string) {
			scanCtx, scanCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer scanCancel()
			if _, err := trialSvc.ScanSource(scanCtx, sourceID); err != nil {
				logger.Warn("failed to queue scan for changed source", "source_id", sourceID, "error", err)
			}
		})
		if err != nil {
			logger.Warn("folder watching unavailable", "error", err)
		} else {
			defer w.Close()
			go syncWatcher(ctx, w, trialSvc, logger)
		}
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:         cfg.Port(),
		Version:      config.Version,
		TrialService: trialSvc,
		Repository:   repo,
		Runner:       runner,
		Reviews:      reviews,
		Playback:     playbackSvc,
		Artifacts:    artifacts,
		Prober:       prober,
		Hub:          hub,
		Logger:       logger,
		StartTime:    startTime,
		DeviceID:     deviceID,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			TrialService: trialSvc,
			Runner:       runner,
			AuthToken:    authToken,
			Logger:       logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// syncWatcher keeps the watch set aligned with the catalogued sources, so
// folders added over the API start being watched without a restart.
func syncWatcher(ctx context.Context, w *watcher.Watcher, svc trial.TrialService, logger *slog.Logger) {
	resync := func() {
		listCtx, listCancel := context.WithTimeout(ctx, 10*time.Second)
		defer listCancel()

		sources, err := svc.GetSources(listCtx)
		if err != nil {
			logger.Warn("failed to list sources for watcher", "error", err)
			return
		}

		want := make(map[string]string, len(sources))
		for _, s := range sources {
			want[s.ID] = s.Path
		}
		w.Sync(want)
	}

	resync()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resync()
		}
	}
}

func ensureDeviceID(repo trial.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "device_id")
	if err == nil && existing != "" {
		return existing, nil
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	deviceID := hex.EncodeToString(idBytes)

	if err := repo.SetConfig(ctx, "device_id", deviceID); err != nil {
		return "", err
	}

	return deviceID, nil
}

func ensureAuthToken(repo trial.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}
