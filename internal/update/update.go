// Package update implements the restart-aware update workflow: observe
// whether the reverse-proxy service is running, stop it if so, hard-reset the
// source tree to the upstream tip, and rebuild/restart the service only when
// it had been running.
package update

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blogctl/blogctl/internal/config"
	"github.com/blogctl/blogctl/internal/dockerx"
	"github.com/blogctl/blogctl/internal/logging"
	"github.com/blogctl/blogctl/internal/metrics"
	"github.com/blogctl/blogctl/internal/notify"
	"github.com/blogctl/blogctl/internal/state"
)

const workflowName = "update"

// ServiceController drives the compose service.
type ServiceController interface {
	Stop(ctx context.Context, timeout time.Duration) error
	UpBuild(ctx context.Context) error
	Build(ctx context.Context, buildArgs map[string]string) error
	Up(ctx context.Context) error
}

// Source is the git working tree holding blog content and build files.
type Source interface {
	SyncToRemote(ctx context.Context) error
	Head(ctx context.Context) (string, error)
	RemoteHead(ctx context.Context) (string, error)
}

// TagResolver resolves the newest base image tag matching a semver policy.
type TagResolver interface {
	Resolve(ctx context.Context, image, policy string) (string, error)
}

// Workflow runs the update sequence. All collaborators are injected so tests
// can observe the exact step ordering.
type Workflow struct {
	cfg      *config.Config
	docker   dockerx.Client
	svc      ServiceController
	src      Source
	resolver TagResolver
	notifier *notify.MultiNotifier
	Now      func() time.Time // injectable clock for testing
}

// New creates an update workflow.
func New(cfg *config.Config, docker dockerx.Client, svc ServiceController, src Source, resolver TagResolver, notifier *notify.MultiNotifier) *Workflow {
	return &Workflow{cfg: cfg, docker: docker, svc: svc, src: src, resolver: resolver, notifier: notifier, Now: time.Now}
}

// Run executes the workflow. The first failing step aborts with that step's
// error and no rollback; the repository stays at whatever state the last
// successful step produced.
func (w *Workflow) Run(ctx context.Context) error {
	start := w.Now()
	running, err := w.docker.ServiceRunning(ctx, w.cfg.ComposeProject, w.cfg.ComposeService)
	if err != nil {
		return w.fail(ctx, state.RunRecord{Workflow: workflowName, StartedAt: start}, fmt.Errorf("observe service: %w", err))
	}
	logging.Get().Info().Str("service", w.cfg.ComposeService).Bool("running", running).Msg("starting update")

	if w.cfg.DryRun {
		return w.dryRun(ctx, running)
	}

	rec := state.RunRecord{Workflow: workflowName, Phase: state.PhaseStarted, ServiceWasRunning: running, StartedAt: start}
	w.saveRecord(rec)

	if running {
		if err := w.svc.Stop(ctx, w.cfg.StopTimeout); err != nil {
			return w.fail(ctx, rec, fmt.Errorf("stop service: %w", err))
		}
		rec.Phase = state.PhaseStopped
		w.saveRecord(rec)
	}

	if err := w.src.SyncToRemote(ctx); err != nil {
		return w.fail(ctx, rec, fmt.Errorf("sync source: %w", err))
	}
	if head, err := w.src.Head(ctx); err == nil {
		rec.Head = head
	}
	rec.Phase = state.PhaseSynced
	w.saveRecord(rec)

	if running {
		if err := w.rebuildAndStart(ctx); err != nil {
			return w.fail(ctx, rec, err)
		}
		rec.Phase = state.PhaseRestarted
		w.saveRecord(rec)
	}

	rec.Phase = state.PhaseDone
	rec.FinishedAt = w.Now()
	w.saveRecord(rec)

	duration := w.Now().Sub(start).Seconds()
	metrics.ObserveWorkflowDuration(workflowName, duration)
	metrics.IncUpdate()
	metrics.SetLastRun(w.Now())
	logging.Get().Info().Str("head", rec.Head).Bool("restarted", running).Float64("duration_seconds", duration).Msg("update complete")
	w.notify(ctx, "success", "Blog updated", fmt.Sprintf("head=%s restarted=%v", rec.Head, running))
	return nil
}

// rebuildAndStart rebuilds the image and starts the service. When a base
// image policy is configured the newest matching tag is resolved and passed
// to the build as CADDY_VERSION; resolution failures fall back to an unpinned
// rebuild so the service does not stay down over an advisory step.
func (w *Workflow) rebuildAndStart(ctx context.Context) error {
	if w.resolver != nil && w.cfg.BaseImage != "" && w.cfg.BaseImagePolicy != "" {
		tag, err := w.resolver.Resolve(ctx, w.cfg.BaseImage, w.cfg.BaseImagePolicy)
		if err != nil {
			logging.Get().Warn().Err(err).Str("image", w.cfg.BaseImage).Msg("base image resolution failed; rebuilding unpinned")
		} else {
			logging.Get().Info().Str("image", w.cfg.BaseImage).Str("tag", tag).Msg("pinning base image for rebuild")
			if err := w.svc.Build(ctx, map[string]string{"CADDY_VERSION": tag}); err != nil {
				return fmt.Errorf("build service: %w", err)
			}
			if err := w.svc.Up(ctx); err != nil {
				return fmt.Errorf("start service: %w", err)
			}
			return nil
		}
	}
	if err := w.svc.UpBuild(ctx); err != nil {
		return fmt.Errorf("rebuild service: %w", err)
	}
	return nil
}

// dryRun reports what an update would do without changing anything.
func (w *Workflow) dryRun(ctx context.Context, running bool) error {
	local, err := w.src.Head(ctx)
	if err != nil {
		return fmt.Errorf("read local head: %w", err)
	}
	remote, err := w.src.RemoteHead(ctx)
	if err != nil {
		return fmt.Errorf("probe remote head: %w", err)
	}
	upToDate := local == remote
	ev := logging.Get().Info().Bool("running", running).Bool("up_to_date", upToDate).Str("local", local).Str("remote", remote)
	summary := fmt.Sprintf("running=%v up_to_date=%v local=%s remote=%s", running, upToDate, local, remote)
	if w.resolver != nil && w.cfg.BaseImage != "" && w.cfg.BaseImagePolicy != "" {
		if tag, rerr := w.resolver.Resolve(ctx, w.cfg.BaseImage, w.cfg.BaseImagePolicy); rerr == nil {
			ev = ev.Str("base_tag", tag)
			summary += " base_tag=" + tag
		}
	}
	ev.Msg("dry-run: no changes applied")
	w.notify(ctx, "info", "Update (dry-run)", summary)
	return nil
}

// RecoverInterrupted restarts the service when a previous update stopped it
// and never reached the restart step (e.g. the process died mid-run). No
// rebuild is forced: the interrupted run may already have built the image.
func (w *Workflow) RecoverInterrupted(ctx context.Context) error {
	rec, found, err := state.GetRunRecord(workflowName)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	if !found || !rec.ServiceWasRunning {
		return nil
	}
	if rec.Phase != state.PhaseStopped && rec.Phase != state.PhaseSynced {
		return nil
	}
	running, err := w.docker.ServiceRunning(ctx, w.cfg.ComposeProject, w.cfg.ComposeService)
	if err != nil {
		return fmt.Errorf("observe service for recovery: %w", err)
	}
	if running {
		// someone already brought it back; just close out the record
		rec.Phase = state.PhaseRestarted
		w.saveRecord(rec)
		return nil
	}
	logging.Get().Warn().Str("phase", rec.Phase).Msg("interrupted update left service stopped; restarting")
	if err := w.svc.Up(ctx); err != nil {
		w.notify(ctx, "failure", "Recovery failed", err.Error())
		return fmt.Errorf("recovery start: %w", err)
	}
	rec.Phase = state.PhaseRestarted
	rec.FinishedAt = w.Now()
	w.saveRecord(rec)
	metrics.IncRecovery()
	w.notify(ctx, "warning", "Recovery performed", "restarted service left stopped by an interrupted update")
	return nil
}

// fail records the failure, bumps metrics, notifies and returns the error.
func (w *Workflow) fail(ctx context.Context, rec state.RunRecord, err error) error {
	if !w.cfg.DryRun {
		rec.Phase = state.PhaseFailed
		rec.Error = err.Error()
		rec.FinishedAt = w.Now()
		w.saveRecord(rec)
	}
	metrics.IncUpdateFailed()
	logging.Get().Error().Err(err).Msg("update failed")
	w.notify(ctx, "failure", "Update failed", err.Error())
	return err
}

// saveRecord persists a run record; state write failures are non-fatal.
func (w *Workflow) saveRecord(rec state.RunRecord) {
	if err := state.SaveRunRecord(rec); err != nil {
		logging.Get().Warn().Err(err).Str("phase", rec.Phase).Msg("failed to persist run record")
	}
}

// notify sends a notification if the configured level allows it
func (w *Workflow) notify(ctx context.Context, level, title, message string) {
	if w.notifier == nil {
		return
	}
	configLevel := strings.ToLower(w.cfg.NotificationLevel)
	if configLevel == "none" {
		return
	}
	if configLevel == "failure" && level != "failure" {
		return
	}
	w.notifier.Send(ctx, title, message)
}
