// Package hugo invokes the Hugo static site generator. Hugo is consumed as an
// opaque external tool; no rendering logic lives here.
package hugo

import (
	"context"
	"fmt"

	"github.com/blogctl/blogctl/internal/logging"
	"github.com/blogctl/blogctl/internal/runner"
)

// Builder regenerates site output from the source tree.
type Builder struct {
	Binary    string
	SiteDir   string
	OutputDir string
	Theme     string
	ExtraArgs []string

	run runner.Runner
}

// NewBuilder returns a Builder using the provided runner.
func NewBuilder(binary, siteDir, outputDir, theme string, extraArgs []string, run runner.Runner) *Builder {
	if binary == "" {
		binary = "hugo"
	}
	return &Builder{Binary: binary, SiteDir: siteDir, OutputDir: outputDir, Theme: theme, ExtraArgs: extraArgs, run: run}
}

// Build regenerates the site into OutputDir.
func (b *Builder) Build(ctx context.Context) error {
	args := b.buildArgs()
	logging.Get().Info().Str("site", b.SiteDir).Str("dest", b.OutputDir).Msg("generating site")
	if err := b.run.Run(ctx, b.SiteDir, b.Binary, args...); err != nil {
		return fmt.Errorf("hugo build: %w", err)
	}
	return nil
}

func (b *Builder) buildArgs() []string {
	var args []string
	if b.Theme != "" {
		args = append(args, "--theme", b.Theme)
	}
	if b.OutputDir != "" {
		args = append(args, "--destination", b.OutputDir)
	}
	args = append(args, b.ExtraArgs...)
	return args
}
