package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides reads configuration values from environment variables and
// overrides fields in the provided Config. Returns an error if parsing fails.
//
// Environment variables supported:
// - BLOGCTL_COMPOSE_PROJECT / BLOGCTL_COMPOSE_SERVICE / BLOGCTL_COMPOSE_FILE
// - BLOGCTL_SOURCE_DIR / BLOGCTL_SOURCE_REMOTE / BLOGCTL_SOURCE_BRANCH
// - BLOGCTL_OUTPUT_DIR / BLOGCTL_OUTPUT_REMOTE / BLOGCTL_OUTPUT_BRANCH
// - BLOGCTL_PUSH_SOURCE (bool)
// - BLOGCTL_HUGO_BINARY / BLOGCTL_HUGO_THEME
// - BLOGCTL_BASE_IMAGE / BLOGCTL_BASE_IMAGE_POLICY
// - BLOGCTL_POLL_INTERVAL (duration, e.g. "10m")
// - BLOGCTL_PATCH_WINDOW (string, e.g. "00:00-02:00")
// - BLOGCTL_METRICS_ENABLED (bool) / BLOGCTL_METRICS_PORT (int)
// - BLOGCTL_INFLUX_URL / _TOKEN / _ORG / _BUCKET / _INTERVAL
// - BLOGCTL_DRY_RUN (bool) and notification settings
func ApplyEnvOverrides(cfg *Config) error {
	if err := applyRepoEnv(cfg); err != nil {
		return err
	}
	if err := applyWorkflowEnv(cfg); err != nil {
		return err
	}
	if err := applyNotificationEnv(cfg); err != nil {
		return err
	}
	if err := applyEmailEnv(cfg); err != nil {
		return err
	}
	if err := applyMetricsEnv(cfg); err != nil {
		return err
	}
	return applyInfluxEnv(cfg)
}

// applyRepoEnv covers compose, source, output and hugo fields
func applyRepoEnv(cfg *Config) error {
	strs := []struct {
		env string
		set func(string)
	}{
		{"BLOGCTL_COMPOSE_PROJECT", func(v string) { cfg.ComposeProject = v }},
		{"BLOGCTL_COMPOSE_SERVICE", func(v string) { cfg.ComposeService = v }},
		{"BLOGCTL_COMPOSE_FILE", func(v string) { cfg.ComposeFile = v }},
		{"BLOGCTL_SOURCE_DIR", func(v string) { cfg.SourceDir = v }},
		{"BLOGCTL_SOURCE_REMOTE", func(v string) { cfg.SourceRemote = v }},
		{"BLOGCTL_SOURCE_BRANCH", func(v string) { cfg.SourceBranch = v }},
		{"BLOGCTL_OUTPUT_DIR", func(v string) { cfg.OutputDir = v }},
		{"BLOGCTL_OUTPUT_REMOTE", func(v string) { cfg.OutputRemote = v }},
		{"BLOGCTL_OUTPUT_BRANCH", func(v string) { cfg.OutputBranch = v }},
		{"BLOGCTL_HUGO_BINARY", func(v string) { cfg.HugoBinary = v }},
		{"BLOGCTL_HUGO_THEME", func(v string) { cfg.HugoTheme = v }},
		{"BLOGCTL_BASE_IMAGE", func(v string) { cfg.BaseImage = v }},
		{"BLOGCTL_BASE_IMAGE_POLICY", func(v string) { cfg.BaseImagePolicy = v }},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			s.set(v)
		}
	}
	return setBoolEnv("BLOGCTL_PUSH_SOURCE", func(b bool) { cfg.PushSource = b })
}

// applyWorkflowEnv covers poll interval, patch window, timeouts, dry-run and circuit breaker
func applyWorkflowEnv(cfg *Config) error {
	durs := []struct {
		env string
		set func(time.Duration)
	}{
		{"BLOGCTL_POLL_INTERVAL", func(d time.Duration) { cfg.PollInterval = d }},
		{"BLOGCTL_STOP_TIMEOUT", func(d time.Duration) { cfg.StopTimeout = d }},
		{"BLOGCTL_COMMAND_TIMEOUT", func(d time.Duration) { cfg.CommandTimeout = d }},
		{"BLOGCTL_BUILD_TIMEOUT", func(d time.Duration) { cfg.BuildTimeout = d }},
		{"BLOGCTL_CIRCUIT_BREAKER_COOLDOWN", func(d time.Duration) { cfg.CircuitBreakerCooldown = d }},
	}
	for _, s := range durs {
		if v := os.Getenv(s.env); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", s.env, err)
			}
			s.set(d)
		}
	}
	if v := os.Getenv("BLOGCTL_PATCH_WINDOW"); v != "" {
		cfg.PatchWindow = v
	}
	if v := os.Getenv("BLOGCTL_CIRCUIT_BREAKER_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BLOGCTL_CIRCUIT_BREAKER_THRESHOLD: %w", err)
		}
		cfg.CircuitBreakerThreshold = n
	}
	if v := os.Getenv("BLOGCTL_DRY_RUN"); v == "true" {
		cfg.DryRun = true
	}
	if v := os.Getenv("BLOGCTL_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	return nil
}

// applyNotificationEnv covers webhook-style notifier settings
func applyNotificationEnv(cfg *Config) error {
	strs := []struct {
		env string
		set func(string)
	}{
		{"BLOGCTL_DISCORD_WEBHOOK", func(v string) { cfg.DiscordWebhook = v }},
		{"BLOGCTL_SLACK_WEBHOOK", func(v string) { cfg.SlackWebhook = v }},
		{"BLOGCTL_TELEGRAM_TOKEN", func(v string) { cfg.TelegramToken = v }},
		{"BLOGCTL_TELEGRAM_CHAT_ID", func(v string) { cfg.TelegramChatID = v }},
		{"BLOGCTL_GENERIC_WEBHOOK_URL", func(v string) { cfg.GenericWebhookURL = v }},
		{"BLOGCTL_GOTIFY_URL", func(v string) { cfg.GotifyURL = v }},
		{"BLOGCTL_GOTIFY_TOKEN", func(v string) { cfg.GotifyToken = v }},
		{"BLOGCTL_NOTIFICATION_LEVEL", func(v string) { cfg.NotificationLevel = v }},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			s.set(v)
		}
	}
	return nil
}

// applyEmailEnv covers SMTP notifier settings
func applyEmailEnv(cfg *Config) error {
	if v := os.Getenv("BLOGCTL_EMAIL_HOST"); v != "" {
		cfg.EmailHost = v
	}
	if v := os.Getenv("BLOGCTL_EMAIL_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BLOGCTL_EMAIL_PORT: %w", err)
		}
		cfg.EmailPort = n
	}
	if v := os.Getenv("BLOGCTL_EMAIL_USER"); v != "" {
		cfg.EmailUser = v
	}
	if v := os.Getenv("BLOGCTL_EMAIL_PASS"); v != "" {
		cfg.EmailPass = v
	}
	if v := os.Getenv("BLOGCTL_EMAIL_TO"); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
		cfg.EmailTo = out
	}
	return nil
}

// applyMetricsEnv covers the metrics server settings
func applyMetricsEnv(cfg *Config) error {
	if err := setBoolEnv("BLOGCTL_METRICS_ENABLED", func(b bool) { cfg.MetricsEnabled = b }); err != nil {
		return err
	}
	if v := os.Getenv("BLOGCTL_METRICS_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BLOGCTL_METRICS_PORT: %w", err)
		}
		cfg.MetricsPort = n
	}
	return nil
}

// applyInfluxEnv covers the InfluxDB pusher settings
func applyInfluxEnv(cfg *Config) error {
	if v := os.Getenv("BLOGCTL_INFLUX_URL"); v != "" {
		cfg.InfluxURL = v
	}
	if v := os.Getenv("BLOGCTL_INFLUX_TOKEN"); v != "" {
		cfg.InfluxToken = v
	}
	if v := os.Getenv("BLOGCTL_INFLUX_ORG"); v != "" {
		cfg.InfluxOrg = v
	}
	if v := os.Getenv("BLOGCTL_INFLUX_BUCKET"); v != "" {
		cfg.InfluxBucket = v
	}
	if v := os.Getenv("BLOGCTL_INFLUX_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid BLOGCTL_INFLUX_INTERVAL: %w", err)
		}
		cfg.InfluxInterval = d
	}
	return nil
}

// setBoolEnv parses a boolean env var and applies it via set when present
func setBoolEnv(key string, set func(bool)) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	set(b)
	return nil
}
