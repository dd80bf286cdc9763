package main

import (
	"github.com/blogctl/blogctl/internal/config"
	"github.com/blogctl/blogctl/internal/notify"
)

// initNotifiers builds the notifier fan-out from config. Entries with
// incomplete credentials are skipped (Validate already warned about them).
func initNotifiers(cfg *config.Config) *notify.MultiNotifier {
	m := notify.NewMultiNotifier()
	entries := []struct {
		enabled bool
		add     func()
	}{
		{cfg.DiscordWebhook != "", func() { m.Add(&notify.Discord{WebhookURL: cfg.DiscordWebhook}) }},
		{cfg.SlackWebhook != "", func() { m.Add(&notify.Slack{WebhookURL: cfg.SlackWebhook}) }},
		{cfg.TelegramToken != "" && cfg.TelegramChatID != "", func() {
			m.Add(&notify.Telegram{BotToken: cfg.TelegramToken, ChatID: cfg.TelegramChatID})
		}},
		{cfg.EmailHost != "" && len(cfg.EmailTo) > 0, func() {
			m.Add(&notify.Email{Host: cfg.EmailHost, Port: cfg.EmailPort, User: cfg.EmailUser, Pass: cfg.EmailPass, To: cfg.EmailTo})
		}},
		{cfg.GenericWebhookURL != "", func() { m.Add(&notify.Generic{WebhookURL: cfg.GenericWebhookURL}) }},
		{cfg.GotifyURL != "" && cfg.GotifyToken != "", func() {
			m.Add(&notify.Gotify{ServerURL: cfg.GotifyURL, Token: cfg.GotifyToken})
		}},
	}
	for _, e := range entries {
		if e.enabled {
			e.add()
		}
	}
	return m
}
