package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"

	"github.com/kinedeck/kinedeck-agent/internal/trial"
)

const refreshInterval = 30 * time.Second

type Tray struct {
	trialSvc  trial.TrialService
	runner    *trial.Runner
	authToken string
	logger    *slog.Logger

	statusItem *systray.MenuItem
	trialsItem *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu sync.Mutex

	onQuit func()
}

type TrayConfig struct {
	TrialService trial.TrialService
	Runner       *trial.Runner
	AuthToken    string
	Logger       *slog.Logger
	OnQuit       func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		trialSvc:  cfg.TrialService,
		runner:    cfg.Runner,
		authToken: cfg.AuthToken,
		logger:    cfg.Logger,
		onQuit:    cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Kinedeck")
	systray.SetTooltip("Kinedeck Agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current agent status")
	t.statusItem.Disable()

	t.trialsItem = systray.AddMenuItem("Trials: 0", "Catalogued trials")
	t.trialsItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause", "Pause background jobs")

	copyTokenItem := systray.AddMenuItem("Copy API Token", "Copy the API token for pairing the review UI")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Kinedeck Agent")

	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()

		t.refreshCounts()

		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-copyTokenItem.ClickedCh:
				t.handleCopyToken()
			case <-ticker.C:
				t.refreshCounts()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause")
		t.statusItem.SetTitle("Status: Idle")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume")
		t.statusItem.SetTitle("Status: Paused")
	}
}

func (t *Tray) handleCopyToken() {
	if err := clipboard.WriteAll(t.authToken); err != nil {
		t.logger.Error("failed to copy API token", "error", err)
		return
	}
	t.logger.Info("API token copied to clipboard")
}

func (t *Tray) refreshCounts() {
	if t.trialSvc == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := t.trialSvc.CountTrials(ctx)
	if err != nil {
		t.logger.Warn("failed to count trials for tray", "error", err)
		return
	}

	t.mu.Lock()
	t.trialsItem.SetTitle(fmt.Sprintf("Trials: %d", count))
	t.mu.Unlock()
}

func (t *Tray) UpdateStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner != nil && t.runner.IsPaused() {
		return
	}
	t.statusItem.SetTitle("Status: " + status)
}

func (t *Tray) Quit() {
	systray.Quit()
}
