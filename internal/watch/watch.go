// Package watch runs the polling daemon: probe the upstream branch head on an
// interval and trigger the update workflow whenever it diverges from the
// local checkout.
package watch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blogctl/blogctl/internal/config"
	"github.com/blogctl/blogctl/internal/logging"
	"github.com/blogctl/blogctl/internal/metrics"
	"github.com/blogctl/blogctl/internal/notify"
)

// Probe reports the local and upstream heads of the source branch.
type Probe interface {
	Head(ctx context.Context) (string, error)
	RemoteHead(ctx context.Context) (string, error)
}

// Updater applies an update when the probe detects divergence.
type Updater interface {
	Run(ctx context.Context) error
	RecoverInterrupted(ctx context.Context) error
}

type failureInfo struct {
	count           int
	lastFailureAt   time.Time
	suppressedUntil time.Time
}

// Daemon is the polling loop.
type Daemon struct {
	cfg      *config.Config
	probe    Probe
	updater  Updater
	notifier *notify.MultiNotifier
	quit     chan struct{}
	wg       sync.WaitGroup   // tracks active poll passes
	Now      func() time.Time // injectable clock for testing
	cancel   func()           // cancel function for active context (set at Start)
	// circuit breaker state for probe failures
	cbMu         sync.Mutex
	probeFailure *failureInfo
}

// New creates a watch daemon.
func New(cfg *config.Config, probe Probe, updater Updater, notifier *notify.MultiNotifier) *Daemon {
	d := &Daemon{cfg: cfg, probe: probe, updater: updater, notifier: notifier, quit: make(chan struct{}), Now: time.Now}
	for _, w := range cfg.Validate() {
		logging.Get().Warn().Str("warning", w).Msg("config validation")
	}
	return d
}

// Start runs the main polling loop. It blocks until Stop is called.
func (d *Daemon) Start() {
	logging.Get().Info().Dur("interval", d.cfg.PollInterval).Msg("starting watch daemon")
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	// Restart the service if a previous update died between stop and restart
	if err := d.updater.RecoverInterrupted(ctx); err != nil {
		logging.Get().Warn().Err(err).Msg("crash recovery pass failed")
	}

	// Run an immediate pass so users don't wait for the first tick
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.once(ctx)
	}()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.wg.Add(1)
			d.once(ctx)
			d.wg.Done()
		case <-d.quit:
			logging.Get().Info().Msg("stopping watch daemon")
			return
		}
	}
}

// once runs one poll pass
func (d *Daemon) once(ctx context.Context) {
	logging.Get().Debug().Msg("polling upstream")
	if !d.cfg.IsWithinPatchWindow(d.Now()) {
		logging.Get().Info().Str("window", d.cfg.PatchWindow).Msg("outside patch window, skipping poll pass")
		metrics.IncPatchWindowSkip()
		return
	}

	local, remote, err := d.probeHeads(ctx)
	if err != nil {
		metrics.IncProbeFailure()
		logging.Get().Warn().Err(err).Msg("upstream probe failed")
		if d.shouldNotifyProbeFailure() {
			d.notify(ctx, "failure", "Upstream probe failed", err.Error())
		}
		return
	}
	metrics.IncProbeSuccess()
	d.clearProbeFailure()

	if local == remote {
		logging.Get().Debug().Str("head", local).Msg("up to date")
		return
	}
	logging.Get().Info().Str("local", local).Str("remote", remote).Msg("upstream diverged, triggering update")
	if d.cfg.DryRun {
		d.notify(ctx, "info", "Update available (dry-run)", fmt.Sprintf("local=%s remote=%s", local, remote))
		return
	}
	// The update workflow handles its own state, metrics and notifications.
	if err := d.updater.Run(ctx); err != nil {
		logging.Get().Error().Err(err).Msg("triggered update failed")
	}
}

func (d *Daemon) probeHeads(ctx context.Context) (string, string, error) {
	local, err := d.probe.Head(ctx)
	if err != nil {
		return "", "", fmt.Errorf("read local head: %w", err)
	}
	remote, err := d.probe.RemoteHead(ctx)
	if err != nil {
		return "", "", fmt.Errorf("probe remote head: %w", err)
	}
	return local, remote, nil
}

// shouldNotifyProbeFailure updates circuit breaker state and returns true when
// a notification should be sent (up to the threshold, then suppressed for the
// cooldown period).
func (d *Daemon) shouldNotifyProbeFailure() bool {
	now := d.Now()
	d.cbMu.Lock()
	defer d.cbMu.Unlock()
	fi := d.probeFailure
	if fi == nil {
		d.probeFailure = &failureInfo{count: 1, lastFailureAt: now}
		return true
	}
	if fi.suppressedUntil.After(now) {
		fi.count++
		fi.lastFailureAt = now
		return false
	}
	if now.Sub(fi.lastFailureAt) > d.cfg.CircuitBreakerCooldown {
		fi.count = 1
		fi.lastFailureAt = now
		fi.suppressedUntil = time.Time{}
		return true
	}
	fi.count++
	fi.lastFailureAt = now
	if d.cfg.CircuitBreakerThreshold > 0 && fi.count > d.cfg.CircuitBreakerThreshold {
		fi.suppressedUntil = now.Add(d.cfg.CircuitBreakerCooldown)
		return false
	}
	return true
}

func (d *Daemon) clearProbeFailure() {
	d.cbMu.Lock()
	defer d.cbMu.Unlock()
	d.probeFailure = nil
}

// Stop signals the daemon to stop and waits for active passes to complete
func (d *Daemon) Stop(ctx context.Context) {
	if d.cancel != nil {
		d.cancel()
	}
	close(d.quit)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Get().Info().Msg("all active passes completed")
	case <-ctx.Done():
		logging.Get().Warn().Msg("shutdown timeout exceeded, a pass may be incomplete")
	}

	// Allow some time for pending notifications to finish (best-effort)
	if d.notifier != nil {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.notifier.Wait(notifyCtx); err != nil {
			logging.Get().Warn().Err(err).Msg("timed out waiting for notifiers to finish")
		}
	}
}

// RunOnce runs a single poll pass (public wrapper for tests / CLI)
func (d *Daemon) RunOnce() {
	d.once(context.Background())
}

func (d *Daemon) notify(ctx context.Context, level, title, message string) {
	if d.notifier == nil {
		return
	}
	configLevel := strings.ToLower(d.cfg.NotificationLevel)
	if configLevel == "none" {
		return
	}
	if configLevel == "failure" && level != "failure" {
		return
	}
	d.notifier.Send(ctx, title, message)
}
