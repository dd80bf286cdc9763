// Package compose drives docker compose for the managed reverse-proxy
// service. Container orchestration stays delegated to compose; this package
// only assembles and runs its command lines.
package compose

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/blogctl/blogctl/internal/logging"
	"github.com/blogctl/blogctl/internal/runner"
)

// Project addresses one compose project/service pair.
type Project struct {
	Dir     string // directory holding the compose file
	File    string // compose file name, may be empty for the default
	Project string
	Service string

	run runner.Runner
}

// NewProject returns a Project using the provided runner.
func NewProject(dir, file, project, service string, run runner.Runner) *Project {
	return &Project{Dir: dir, File: file, Project: project, Service: service, run: run}
}

func (p *Project) baseArgs() []string {
	args := []string{"compose"}
	if p.File != "" {
		args = append(args, "-f", p.File)
	}
	if p.Project != "" {
		args = append(args, "-p", p.Project)
	}
	return args
}

// Stop stops the service's containers, waiting up to timeout for graceful shutdown.
func (p *Project) Stop(ctx context.Context, timeout time.Duration) error {
	args := append(p.baseArgs(), "stop")
	if timeout > 0 {
		args = append(args, "-t", strconv.Itoa(int(timeout.Seconds())))
	}
	args = append(args, p.Service)
	logging.Get().Info().Str("service", p.Service).Msg("stopping service")
	if err := p.run.Run(ctx, p.Dir, "docker", args...); err != nil {
		return fmt.Errorf("compose stop %s: %w", p.Service, err)
	}
	return nil
}

// UpBuild rebuilds the service image and starts it detached.
func (p *Project) UpBuild(ctx context.Context) error {
	args := append(p.baseArgs(), "up", "-d", "--build", p.Service)
	logging.Get().Info().Str("service", p.Service).Msg("rebuilding and starting service")
	if err := p.run.Run(ctx, p.Dir, "docker", args...); err != nil {
		return fmt.Errorf("compose up %s: %w", p.Service, err)
	}
	return nil
}

// Build rebuilds the service image with the given build args, without
// starting anything. Used when the base image tag is pinned by the resolver.
func (p *Project) Build(ctx context.Context, buildArgs map[string]string) error {
	args := append(p.baseArgs(), "build")
	keys := make([]string, 0, len(buildArgs))
	for k := range buildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--build-arg", k+"="+buildArgs[k])
	}
	args = append(args, p.Service)
	logging.Get().Info().Str("service", p.Service).Msg("building service image")
	if err := p.run.Run(ctx, p.Dir, "docker", args...); err != nil {
		return fmt.Errorf("compose build %s: %w", p.Service, err)
	}
	return nil
}

// Up starts the service without forcing a rebuild. Used by crash recovery,
// where the interrupted run may have already rebuilt the image.
func (p *Project) Up(ctx context.Context) error {
	args := append(p.baseArgs(), "up", "-d", p.Service)
	logging.Get().Info().Str("service", p.Service).Msg("starting service")
	if err := p.run.Run(ctx, p.Dir, "docker", args...); err != nil {
		return fmt.Errorf("compose up %s: %w", p.Service, err)
	}
	return nil
}
