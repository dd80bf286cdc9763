package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for blogctl
type Config struct {
	// Compose service that serves the blog (the reverse proxy)
	ComposeProject string `json:"compose_project" yaml:"compose_project"`
	ComposeService string `json:"compose_service" yaml:"compose_service"`
	ComposeFile    string `json:"compose_file" yaml:"compose_file"`

	// Source repository (blog content + Dockerfile + compose file)
	SourceDir    string `json:"source_dir" yaml:"source_dir"`
	SourceRemote string `json:"source_remote" yaml:"source_remote"`
	SourceBranch string `json:"source_branch" yaml:"source_branch"`

	// Output repository (generated static HTML, distinct from the source repo)
	OutputDir    string `json:"output_dir" yaml:"output_dir"`
	OutputRemote string `json:"output_remote" yaml:"output_remote"`
	OutputBranch string `json:"output_branch" yaml:"output_branch"`
	// Push the source repository after a successful output push
	PushSource bool `json:"push_source" yaml:"push_source"`

	// Static site generator
	HugoBinary string   `json:"hugo_binary" yaml:"hugo_binary"`
	HugoTheme  string   `json:"hugo_theme" yaml:"hugo_theme"`
	HugoArgs   []string `json:"hugo_args" yaml:"hugo_args"`

	// Base image pinning: resolve the newest builder tag matching the policy
	// before rebuilding (e.g. base_image "caddy", base_image_policy "2.x").
	BaseImage       string `json:"base_image" yaml:"base_image"`
	BaseImagePolicy string `json:"base_image_policy" yaml:"base_image_policy"`

	// Watch mode
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	PatchWindow  string        `json:"patch_window" yaml:"patch_window"`
	// Circuit breaker for remote probe failures (failures within cooldown)
	CircuitBreakerThreshold int           `json:"circuit_breaker_threshold" yaml:"circuit_breaker_threshold"`
	CircuitBreakerCooldown  time.Duration `json:"circuit_breaker_cooldown" yaml:"circuit_breaker_cooldown"`

	// Timeouts for external commands
	StopTimeout    time.Duration `json:"stop_timeout" yaml:"stop_timeout"`
	CommandTimeout time.Duration `json:"command_timeout" yaml:"command_timeout"`
	BuildTimeout   time.Duration `json:"build_timeout" yaml:"build_timeout"`

	// Dry-run: report what would happen without changing anything
	DryRun bool `json:"dry_run" yaml:"dry_run"`

	// Directory for the run state file (empty = /var/lib/blogctl with fallbacks)
	StateDir string `json:"state_dir" yaml:"state_dir"`

	// Notification configuration
	NotificationLevel string `json:"notification_level" yaml:"notification_level"` // "all", "failure", "none"

	DiscordWebhook string `json:"discord_webhook" yaml:"discord_webhook"`
	SlackWebhook   string `json:"slack_webhook" yaml:"slack_webhook"`
	TelegramToken  string `json:"telegram_token" yaml:"telegram_token"`
	TelegramChatID string `json:"telegram_chat_id" yaml:"telegram_chat_id"`

	GenericWebhookURL string `json:"generic_webhook_url" yaml:"generic_webhook_url"`
	GotifyURL         string `json:"gotify_url" yaml:"gotify_url"`
	GotifyToken       string `json:"gotify_token" yaml:"gotify_token"`

	EmailHost string   `json:"email_host" yaml:"email_host"`
	EmailPort int      `json:"email_port" yaml:"email_port"`
	EmailUser string   `json:"email_user" yaml:"email_user"`
	EmailPass string   `json:"email_pass" yaml:"email_pass"`
	EmailTo   []string `json:"email_to" yaml:"email_to"`

	// Metrics
	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsPort    int  `json:"metrics_port" yaml:"metrics_port"`

	// InfluxDB (push)
	InfluxURL      string        `json:"influx_url" yaml:"influx_url"`
	InfluxToken    string        `json:"influx_token" yaml:"influx_token"`
	InfluxOrg      string        `json:"influx_org" yaml:"influx_org"`
	InfluxBucket   string        `json:"influx_bucket" yaml:"influx_bucket"`
	InfluxInterval time.Duration `json:"influx_interval" yaml:"influx_interval"`
}

// IsWithinPatchWindow returns true when the provided time is inside the configured patch window.
// PatchWindow format: "HH:MM-HH:MM" in local time. Supports windows that span midnight (e.g., "23:00-02:00").
func (c *Config) IsWithinPatchWindow(now time.Time) bool {
	if c.PatchWindow == "" {
		// empty window means always allowed
		return true
	}
	var sh, sm, eh, em int
	n, err := fmt.Sscanf(c.PatchWindow, "%d:%d-%d:%d", &sh, &sm, &eh, &em)
	if err != nil || n != 4 {
		// invalid format - be conservative and return false (don't update)
		return false
	}
	nowMinutes := now.Hour()*60 + now.Minute()
	startMinutes := sh*60 + sm
	endMinutes := eh*60 + em

	if endMinutes > startMinutes {
		return nowMinutes >= startMinutes && nowMinutes <= endMinutes
	}
	// Window wraps midnight (e.g., 23:00-01:00)
	return nowMinutes >= startMinutes || nowMinutes <= endMinutes
}

// DefaultConfig returns a sane default configuration
func DefaultConfig() *Config {
	return &Config{
		ComposeProject: "blog",
		ComposeService: "caddy",
		ComposeFile:    "docker-compose.yml",

		SourceDir:    ".",
		SourceRemote: "origin",
		SourceBranch: "main",

		OutputDir:    "public",
		OutputRemote: "origin",
		OutputBranch: "main",
		PushSource:   true,

		HugoBinary: "hugo",

		PollInterval:            10 * time.Minute,
		PatchWindow:             "",
		CircuitBreakerThreshold: 3,
		CircuitBreakerCooldown:  10 * time.Minute,

		StopTimeout:    30 * time.Second,
		CommandTimeout: 2 * time.Minute,
		BuildTimeout:   10 * time.Minute,

		NotificationLevel: "all",

		// Metrics defaults (opt-in)
		MetricsEnabled: false,
		MetricsPort:    9090,

		InfluxInterval: 1 * time.Minute,
	}
}

// Validate returns a list of non-fatal configuration warnings, such as
// incomplete notifier credential combinations.
func (c *Config) Validate() []string {
	var warnings []string
	checks := []struct {
		cond bool
		msg  string
	}{
		{c.GotifyURL != "" && c.GotifyToken == "", "gotify URL provided but token is missing"},
		{c.GotifyToken != "" && c.GotifyURL == "", "gotify token provided but URL is missing"},
		{c.TelegramToken != "" && c.TelegramChatID == "", "telegram token provided but chat ID is missing"},
		{c.TelegramChatID != "" && c.TelegramToken == "", "telegram chat ID provided but token is missing"},
		{c.EmailHost != "" && len(c.EmailTo) == 0, "email host provided but no recipients configured (EmailTo)"},
		{c.EmailHost == "" && len(c.EmailTo) > 0, "email recipients configured but email host is empty"},
		{c.BaseImagePolicy != "" && c.BaseImage == "", "base image policy provided but base image is empty"},
		{c.ComposeService == "", "compose service name is empty; update workflow cannot observe the proxy"},
	}
	for _, ch := range checks {
		if ch.cond {
			warnings = append(warnings, ch.msg)
		}
	}
	if pw := validatePatchWindow(c.PatchWindow); pw != "" {
		warnings = append(warnings, pw)
	}
	return warnings
}

// validatePatchWindow returns a warning string when the provided patch window is invalid, or empty when valid/empty.
func validatePatchWindow(pw string) string {
	if pw == "" {
		return ""
	}
	var sh, sm, eh, em int
	n, err := fmt.Sscanf(pw, "%d:%d-%d:%d", &sh, &sm, &eh, &em)
	if err != nil || n != 4 || sh < 0 || sh > 23 || eh < 0 || eh > 23 || sm < 0 || sm > 59 || em < 0 || em > 59 {
		return fmt.Sprintf("invalid PatchWindow format: %q (expected HH:MM-HH:MM)", pw)
	}
	return ""
}

// LoadConfigFromFile loads config from a YAML/JSON file
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
