package slack

import (
	"bytes"
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/slack-go/slack"
)

// Service is the outbound Slack surface: posting replies and downloading
// files shared with the bot.
type Service interface {
	PostMessage(ctx context.Context, channelID, text string) error
	DownloadFile(ctx context.Context, url string) ([]byte, error)
}

// client implements Service interface
type client struct {
	api *slack.Client
}

// New creates a new Slack service with the provided bot token
func New(token string) (Service, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	return &client{
		api: slack.New(token),
	}, nil
}

// PostMessage sends a text message to the given channel
func (c *client) PostMessage(ctx context.Context, channelID, text string) error {
	if channelID == "" {
		return goerr.New("channel ID is required")
	}

	_, _, err := c.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return goerr.Wrap(err, "failed to post Slack message",
			goerr.V("channelID", channelID), goerr.T(model.TagTransient))
	}

	return nil
}

// DownloadFile fetches a file shared in Slack. Slack private URLs require the
// bot token, which the API client sends for us.
func (c *client) DownloadFile(ctx context.Context, url string) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.api.GetFileContext(ctx, url, &buf); err != nil {
		return nil, goerr.Wrap(err, "failed to download Slack file",
			goerr.V("url", url), goerr.T(model.TagTransient))
	}

	return buf.Bytes(), nil
}
