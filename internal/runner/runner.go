// Package runner executes external commands (git, hugo, docker compose) with
// context cancellation, per-command timeouts and stderr capture. Workflows
// depend on the Runner interface so tests can substitute fakes.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/blogctl/blogctl/internal/logging"
)

// Runner runs external commands in a working directory.
type Runner interface {
	// Run executes the command and discards stdout. Returns an error carrying
	// trimmed stderr when the command exits non-zero.
	Run(ctx context.Context, dir, name string, args ...string) error
	// Output executes the command and returns trimmed stdout.
	Output(ctx context.Context, dir, name string, args ...string) (string, error)
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct {
	// Timeout bounds each command when non-zero and the caller's context has
	// no earlier deadline.
	Timeout time.Duration
	// Env entries appended to the command environment (e.g. CADDY_VERSION for
	// compose builds).
	Env []string
}

// New returns an ExecRunner with the given default timeout.
func New(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

func (r *ExecRunner) command(ctx context.Context, dir, name string, args []string) (*exec.Cmd, context.CancelFunc) {
	cancel := func() {}
	if r.Timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		}
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	return cmd, cancel
}

func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	cmd, cancel := r.command(ctx, dir, name, args)
	defer cancel()

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logging.Get().Debug().Str("dir", dir).Str("cmd", name).Strs("args", args).Msg("running command")
	if err := cmd.Run(); err != nil {
		return wrapExitError(name, args, stderr.String(), err)
	}
	return nil
}

func (r *ExecRunner) Output(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd, cancel := r.command(ctx, dir, name, args)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Get().Debug().Str("dir", dir).Str("cmd", name).Strs("args", args).Msg("running command")
	if err := cmd.Run(); err != nil {
		return "", wrapExitError(name, args, stderr.String(), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// wrapExitError folds the command line and captured stderr into the returned error
func wrapExitError(name string, args []string, stderr string, err error) error {
	line := name
	if len(args) > 0 {
		line = name + " " + strings.Join(args, " ")
	}
	if msg := strings.TrimSpace(stderr); msg != "" {
		return fmt.Errorf("%s: %s: %w", line, msg, err)
	}
	return fmt.Errorf("%s: %w", line, err)
}
