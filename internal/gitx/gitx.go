// Package gitx wraps the git CLI for the update and deploy workflows. git is
// an external collaborator here; nothing in this package reimplements its
// versioning semantics.
package gitx

import (
	"context"
	"fmt"
	"strings"

	"github.com/blogctl/blogctl/internal/logging"
	"github.com/blogctl/blogctl/internal/runner"
)

// Repo is a git working tree bound to a remote tracking branch.
type Repo struct {
	Dir    string
	Remote string
	Branch string

	run runner.Runner
}

// NewRepo returns a Repo using the provided runner for git invocations.
func NewRepo(dir, remote, branch string, run runner.Runner) *Repo {
	return &Repo{Dir: dir, Remote: remote, Branch: branch, run: run}
}

// Fetch updates remote tracking refs.
func (r *Repo) Fetch(ctx context.Context) error {
	if err := r.run.Run(ctx, r.Dir, "git", "fetch", r.Remote); err != nil {
		return fmt.Errorf("git fetch: %w", err)
	}
	return nil
}

// ResetHard discards any local divergence and moves the working tree to the
// remote tracking branch tip. Destructive, intentional.
func (r *Repo) ResetHard(ctx context.Context) error {
	target := fmt.Sprintf("%s/%s", r.Remote, r.Branch)
	logging.Get().Info().Str("dir", r.Dir).Str("target", target).Msg("hard-resetting to remote tip")
	if err := r.run.Run(ctx, r.Dir, "git", "reset", "--hard", target); err != nil {
		return fmt.Errorf("git reset --hard %s: %w", target, err)
	}
	return nil
}

// SyncToRemote fetches and hard-resets to the remote tip in one step.
func (r *Repo) SyncToRemote(ctx context.Context) error {
	if err := r.Fetch(ctx); err != nil {
		return err
	}
	return r.ResetHard(ctx)
}

// Pull fast-forwards the working tree. Diverged remotes make this fail, which
// aborts the deploy workflow with no cleanup.
func (r *Repo) Pull(ctx context.Context) error {
	if err := r.run.Run(ctx, r.Dir, "git", "pull", "--ff-only", r.Remote, r.Branch); err != nil {
		return fmt.Errorf("git pull: %w", err)
	}
	return nil
}

// AddAll stages every change in the working tree.
func (r *Repo) AddAll(ctx context.Context) error {
	if err := r.run.Run(ctx, r.Dir, "git", "add", "-A"); err != nil {
		return fmt.Errorf("git add: %w", err)
	}
	return nil
}

// HasStagedChanges reports whether anything is staged for commit.
func (r *Repo) HasStagedChanges(ctx context.Context) (bool, error) {
	out, err := r.run.Output(ctx, r.Dir, "git", "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// Commit records the staged changes with the given message.
func (r *Repo) Commit(ctx context.Context, message string) error {
	if err := r.run.Run(ctx, r.Dir, "git", "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit: %w", err)
	}
	return nil
}

// Push publishes the local branch to the remote.
func (r *Repo) Push(ctx context.Context) error {
	if err := r.run.Run(ctx, r.Dir, "git", "push", r.Remote, r.Branch); err != nil {
		return fmt.Errorf("git push: %w", err)
	}
	return nil
}

// Head returns the commit hash the working tree is at.
func (r *Repo) Head(ctx context.Context) (string, error) {
	out, err := r.run.Output(ctx, r.Dir, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	return out, nil
}

// RemoteHead returns the commit hash at the tip of the remote tracking branch
// without touching the working tree. Used by the watch daemon for cheap change
// detection.
func (r *Repo) RemoteHead(ctx context.Context) (string, error) {
	ref := fmt.Sprintf("refs/heads/%s", r.Branch)
	out, err := r.run.Output(ctx, r.Dir, "git", "ls-remote", r.Remote, ref)
	if err != nil {
		return "", fmt.Errorf("git ls-remote: %w", err)
	}
	// Output is "<hash>\t<ref>"; an empty result means the branch is unknown upstream.
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fmt.Errorf("git ls-remote: branch %s not found on %s", r.Branch, r.Remote)
	}
	return fields[0], nil
}
