package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blogctl/blogctl/internal/compose"
	"github.com/blogctl/blogctl/internal/config"
	"github.com/blogctl/blogctl/internal/deploy"
	"github.com/blogctl/blogctl/internal/dockerx"
	"github.com/blogctl/blogctl/internal/gitx"
	"github.com/blogctl/blogctl/internal/hugo"
	"github.com/blogctl/blogctl/internal/imagecheck"
	"github.com/blogctl/blogctl/internal/logging"
	"github.com/blogctl/blogctl/internal/metrics"
	"github.com/blogctl/blogctl/internal/notify"
	"github.com/blogctl/blogctl/internal/runner"
	"github.com/blogctl/blogctl/internal/state"
	"github.com/blogctl/blogctl/internal/update"
	"github.com/blogctl/blogctl/internal/watch"
)

var (
	flagConfig       string
	flagSourceDir    string
	flagDryRun       bool
	flagRunOnce      bool
	flagPollInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "blogctl",
	Short: "blogctl manages a Hugo blog served by a Dockerized reverse proxy",
	Long: `blogctl automates the operational loop of a self-hosted Hugo blog:
pulling new content, regenerating the static site, publishing the output,
and rebuilding and restarting the serving container when the source changes.`,
	SilenceUsage: true,
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Sync the blog source to upstream and restart the serving container if it was running",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()
		app, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer app.shutdown()
		if err := app.updater.RecoverInterrupted(cmd.Context()); err != nil {
			logging.Get().Warn().Err(err).Msg("crash recovery pass failed")
		}
		return app.updater.Run(cmd.Context())
	},
}

var deployCmd = &cobra.Command{
	Use:   "deploy [commit message...]",
	Short: "Rebuild the static site and push the generated output",
	Long: `Pull the latest source, regenerate the site with Hugo, and commit and push
the generated output repository. Extra arguments become the commit message;
without them a timestamped default is used. A clean output tree after the
rebuild is a successful no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()
		app, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer app.shutdown()
		return app.deployer.Run(cmd.Context(), args)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the upstream branch and update automatically when it moves",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()
		app, err := buildApp(cfg)
		if err != nil {
			return err
		}
		startMetricsAndInflux(cfg)

		d := watch.New(cfg, app.source, app.updater, app.notifier)
		if flagRunOnce {
			logging.Get().Info().Msg("run-once: performing a single poll pass")
			d.RunOnce()
			app.shutdown()
			return nil
		}
		go d.Start()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		logging.Get().Info().Msg("shutdown signal received, waiting for active passes to complete")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.Stop(shutdownCtx)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the serving container state and recent workflow runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		docker, err := dockerx.NewClient()
		if err != nil {
			return fmt.Errorf("create docker client: %w", err)
		}
		running, err := docker.ServiceRunning(cmd.Context(), cfg.ComposeProject, cfg.ComposeService)
		if err != nil {
			return fmt.Errorf("observe service: %w", err)
		}
		records, err := state.GetAllRunRecords()
		if err != nil {
			return fmt.Errorf("read state: %w", err)
		}
		out := struct {
			Service string                     `json:"service"`
			Running bool                       `json:"running"`
			Runs    map[string]state.RunRecord `json:"runs"`
		}{cfg.ComposeService, running, records}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&flagSourceDir, "source-dir", "", "blog source directory (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "report what would happen without changing anything")
	watchCmd.Flags().BoolVar(&flagRunOnce, "run-once", false, "run one poll pass and exit")
	watchCmd.Flags().DurationVar(&flagPollInterval, "poll-interval", 0, "poll interval (overrides config)")
	rootCmd.AddCommand(updateCmd, deployCmd, watchCmd, statusCmd)
}

// setup resolves configuration (defaults, then file, then env, then flags)
// and initializes logging. The returned cleanup closes the log file.
func setup() (*config.Config, func(), error) {
	cfg := config.DefaultConfig()
	if flagConfig != "" {
		c, err := config.LoadConfigFromFile(flagConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid environment configuration: %w", err)
	}
	if flagSourceDir != "" {
		cfg.SourceDir = flagSourceDir
	}
	if flagDryRun {
		cfg.DryRun = true
	}
	if flagPollInterval > 0 {
		cfg.PollInterval = flagPollInterval
	}
	if cfg.StateDir != "" {
		state.SetDir(cfg.StateDir)
	}

	cleanup, err := logging.Init(os.Getenv("BLOGCTL_LOG_FILE"), os.Getenv("BLOGCTL_LOG_LEVEL"))
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	for _, w := range cfg.Validate() {
		logging.Get().Warn().Str("warning", w).Msg("config validation")
	}
	return cfg, cleanup, nil
}

// app bundles the wired collaborators shared by the commands.
type app struct {
	source   *gitx.Repo
	updater  *update.Workflow
	deployer *deploy.Workflow
	notifier *notify.MultiNotifier
}

func (a *app) shutdown() {
	if a.notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.notifier.Wait(ctx); err != nil {
			logging.Get().Warn().Err(err).Msg("timed out waiting for notifiers to finish")
		}
	}
}

func buildApp(cfg *config.Config) (*app, error) {
	docker, err := dockerx.NewClient()
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	cmdRun := runner.New(cfg.CommandTimeout)
	buildRun := runner.New(cfg.BuildTimeout)

	source := gitx.NewRepo(cfg.SourceDir, cfg.SourceRemote, cfg.SourceBranch, cmdRun)
	output := gitx.NewRepo(cfg.OutputDir, cfg.OutputRemote, cfg.OutputBranch, cmdRun)
	svc := compose.NewProject(cfg.SourceDir, cfg.ComposeFile, cfg.ComposeProject, cfg.ComposeService, buildRun)
	site := hugo.NewBuilder(cfg.HugoBinary, cfg.SourceDir, cfg.OutputDir, cfg.HugoTheme, cfg.HugoArgs, buildRun)

	notifier := initNotifiers(cfg)

	var resolver update.TagResolver
	if cfg.BaseImage != "" && cfg.BaseImagePolicy != "" {
		resolver = imagecheck.NewResolver()
	}

	return &app{
		source:   source,
		updater:  update.New(cfg, docker, svc, source, resolver, notifier),
		deployer: deploy.New(cfg, source, output, site, notifier),
		notifier: notifier,
	}, nil
}

// startMetricsAndInflux starts the optional metrics server and Influx pusher
func startMetricsAndInflux(cfg *config.Config) {
	if cfg.MetricsEnabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.PromHandler())
			mux.Handle("/status", metrics.JSONHandler())
			addr := fmt.Sprintf(":%d", cfg.MetricsPort)
			logging.Get().Info().Str("addr", addr).Msg("starting metrics server")
			_ = http.ListenAndServe(addr, mux)
		}()
	}
	if cfg.InfluxURL != "" {
		go metrics.StartInfluxPusher(context.Background(), cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, cfg.InfluxInterval)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
