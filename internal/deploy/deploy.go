// Package deploy implements the publish workflow: pull the latest source,
// regenerate the site with Hugo, and commit and push the generated output.
package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blogctl/blogctl/internal/config"
	"github.com/blogctl/blogctl/internal/logging"
	"github.com/blogctl/blogctl/internal/metrics"
	"github.com/blogctl/blogctl/internal/notify"
	"github.com/blogctl/blogctl/internal/state"
)

const workflowName = "deploy"

// SourceRepo is the git tree holding the blog sources.
type SourceRepo interface {
	Pull(ctx context.Context) error
	AddAll(ctx context.Context) error
	HasStagedChanges(ctx context.Context) (bool, error)
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context) error
}

// OutputRepo is the git tree holding the generated site.
type OutputRepo interface {
	Pull(ctx context.Context) error
	AddAll(ctx context.Context) error
	HasStagedChanges(ctx context.Context) (bool, error)
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context) error
}

// SiteBuilder regenerates the static site.
type SiteBuilder interface {
	Build(ctx context.Context) error
}

// Workflow runs the deploy sequence.
type Workflow struct {
	cfg      *config.Config
	src      SourceRepo
	out      OutputRepo
	builder  SiteBuilder
	notifier *notify.MultiNotifier
	Now      func() time.Time // injectable clock for testing
}

// New creates a deploy workflow.
func New(cfg *config.Config, src SourceRepo, out OutputRepo, builder SiteBuilder, notifier *notify.MultiNotifier) *Workflow {
	return &Workflow{cfg: cfg, src: src, out: out, builder: builder, notifier: notifier, Now: time.Now}
}

// CommitMessage returns the message for the output commit: the extra args
// joined with spaces, or a timestamped default when none are given.
func (w *Workflow) CommitMessage(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	return "site update " + w.Now().Format(time.RFC3339)
}

// Run executes the workflow. A clean output tree after the rebuild is a
// successful no-op. The push only ever runs after a successful commit.
func (w *Workflow) Run(ctx context.Context, messageArgs []string) error {
	start := w.Now()
	log := logging.Get()
	log.Info().Msg("starting deploy")

	rec := state.RunRecord{Workflow: workflowName, StartedAt: start}

	// The output tree must be at its remote tip before regenerating, or the
	// final push is rejected when another host deployed in the meantime.
	if err := w.out.Pull(ctx); err != nil {
		return w.fail(ctx, rec, fmt.Errorf("pull output: %w", err))
	}
	if err := w.src.Pull(ctx); err != nil {
		return w.fail(ctx, rec, fmt.Errorf("pull source: %w", err))
	}
	if err := w.builder.Build(ctx); err != nil {
		return w.fail(ctx, rec, fmt.Errorf("build site: %w", err))
	}
	if err := w.out.AddAll(ctx); err != nil {
		return w.fail(ctx, rec, fmt.Errorf("stage output: %w", err))
	}
	changed, err := w.out.HasStagedChanges(ctx)
	if err != nil {
		return w.fail(ctx, rec, fmt.Errorf("inspect output tree: %w", err))
	}
	if !changed {
		log.Info().Msg("generated site unchanged; nothing to publish")
		w.finish(rec)
		metrics.IncDeploy()
		metrics.SetLastRun(w.Now())
		return nil
	}

	msg := w.CommitMessage(messageArgs)
	if w.cfg.DryRun {
		log.Info().Str("message", msg).Msg("dry-run: would commit and push generated site")
		return nil
	}
	if err := w.out.Commit(ctx, msg); err != nil {
		return w.fail(ctx, rec, fmt.Errorf("commit output: %w", err))
	}
	if err := w.out.Push(ctx); err != nil {
		return w.fail(ctx, rec, fmt.Errorf("push output: %w", err))
	}

	if w.cfg.PushSource {
		if err := w.pushSource(ctx, msg); err != nil {
			return w.fail(ctx, rec, err)
		}
	}

	w.finish(rec)
	metrics.IncDeploy()
	metrics.ObserveWorkflowDuration(workflowName, w.Now().Sub(start).Seconds())
	metrics.SetLastRun(w.Now())
	log.Info().Str("message", msg).Msg("deploy complete")
	w.notify(ctx, "success", "Blog deployed", msg)
	return nil
}

// finish persists a successful run record; write failures are non-fatal.
// Dry runs leave the state file untouched.
func (w *Workflow) finish(rec state.RunRecord) {
	if w.cfg.DryRun {
		return
	}
	rec.Phase = state.PhaseDone
	rec.FinishedAt = w.Now()
	if err := state.SaveRunRecord(rec); err != nil {
		logging.Get().Warn().Err(err).Msg("failed to persist run record")
	}
}

// pushSource commits and pushes the source tree when it has changes of its
// own (new posts, config edits). A clean source tree is not an error.
func (w *Workflow) pushSource(ctx context.Context, msg string) error {
	if err := w.src.AddAll(ctx); err != nil {
		return fmt.Errorf("stage source: %w", err)
	}
	changed, err := w.src.HasStagedChanges(ctx)
	if err != nil {
		return fmt.Errorf("inspect source tree: %w", err)
	}
	if !changed {
		return nil
	}
	if err := w.src.Commit(ctx, msg); err != nil {
		return fmt.Errorf("commit source: %w", err)
	}
	if err := w.src.Push(ctx); err != nil {
		return fmt.Errorf("push source: %w", err)
	}
	return nil
}

func (w *Workflow) fail(ctx context.Context, rec state.RunRecord, err error) error {
	if !w.cfg.DryRun {
		rec.Phase = state.PhaseFailed
		rec.Error = err.Error()
		rec.FinishedAt = w.Now()
		if serr := state.SaveRunRecord(rec); serr != nil {
			logging.Get().Warn().Err(serr).Msg("failed to persist run record")
		}
	}
	metrics.IncDeployFailed()
	logging.Get().Error().Err(err).Msg("deploy failed")
	w.notify(ctx, "failure", "Deploy failed", err.Error())
	return err
}

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
