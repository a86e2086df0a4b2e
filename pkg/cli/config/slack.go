package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/service/slack"
	"github.com/urfave/cli/v3"
)

// Slack holds CLI flags for the Slack bot connection
type Slack struct {
	botToken      string
	signingSecret string
}

func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot User OAuth Token (xoxb-...)",
			Category:    "Slack",
			Destination: &x.botToken,
			Sources:     cli.EnvVars("SHIORI_SLACK_BOT_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "slack-signing-secret",
			Usage:       "Slack Signing Secret (for webhook verification)",
			Category:    "Slack",
			Destination: &x.signingSecret,
			Sources:     cli.EnvVars("SHIORI_SLACK_SIGNING_SECRET"),
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bot-token.len", len(x.botToken)),
		slog.Int("signing-secret.len", len(x.signingSecret)),
	)
}

// SigningSecret returns the webhook signing secret
func (x *Slack) SigningSecret() string {
	return x.signingSecret
}

// IsConfigured reports whether both the bot token and signing secret are set
func (x *Slack) IsConfigured() bool {
	return x.botToken != "" && x.signingSecret != ""
}

// Configure creates the Slack service from the bot token
func (x *Slack) Configure() (slack.Service, error) {
	if x.botToken == "" {
		return nil, goerr.New("slack-bot-token is required")
	}
	return slack.New(x.botToken)
}
