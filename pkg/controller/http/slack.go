package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/usecase"
	"github.com/shiori-lab/shiori/pkg/utils/async"
	"github.com/shiori-lab/shiori/pkg/utils/errutil"
	"github.com/shiori-lab/shiori/pkg/utils/logging"
	"github.com/slack-go/slack/slackevents"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const slackBodyKey contextKey = "slack_body"

// verifySlackSignature verifies the Slack request signature
func verifySlackSignature(signingSecret, timestamp, signature string, body []byte) error {
	if timestamp == "" {
		return goerr.New("missing timestamp")
	}

	if signature == "" {
		return goerr.New("missing signature")
	}

	// Check timestamp to prevent replay attacks (within 5 minutes)
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return goerr.Wrap(err, "invalid timestamp")
	}

	now := time.Now().Unix()
	if now-ts > 60*5 {
		return goerr.New("timestamp too old", goerr.V("timestamp", timestamp), goerr.V("now", now))
	}

	baseString := fmt.Sprintf("v0:%s:%s", timestamp, body)
	mac := hmac.New(sha256.New, []byte(signingSecret))
	if _, err := mac.Write([]byte(baseString)); err != nil {
		return goerr.Wrap(err, "failed to compute HMAC")
	}
	expectedSignature := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expectedSignature), []byte(signature)) {
		return goerr.New("signature mismatch")
	}

	return nil
}

// SlackSignatureMiddleware creates a middleware that verifies Slack request signatures
func SlackSignatureMiddleware(signingSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
				return
			}
			defer func() {
				if err := r.Body.Close(); err != nil {
					logging.From(ctx).Error("failed to close request body", "error", err)
				}
			}()

			timestamp := r.Header.Get("X-Slack-Request-Timestamp")
			signature := r.Header.Get("X-Slack-Signature")

			if err := verifySlackSignature(signingSecret, timestamp, signature, body); err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "slack signature verification failed"), http.StatusUnauthorized)
				return
			}

			// Store body in context for later use and restore it to the request
			ctx = context.WithValue(ctx, slackBodyKey, body)
			r.Body = io.NopCloser(bytes.NewBuffer(body))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SlackWebhookHandler handles Slack Events API webhook requests and feeds
// message events into the ingest use case.
type SlackWebhookHandler struct {
	ingest *usecase.IngestUseCase
}

// NewSlackWebhookHandler creates a new Slack webhook handler
func NewSlackWebhookHandler(ingest *usecase.IngestUseCase) *SlackWebhookHandler {
	return &SlackWebhookHandler{
		ingest: ingest,
	}
}

// ServeHTTP handles Slack webhook requests
func (h *SlackWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Read body (already verified by middleware)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
		return
	}

	eventsAPIEvent, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to parse slack event"), http.StatusBadRequest)
		return
	}

	switch eventsAPIEvent.Type {
	case slackevents.URLVerification:
		var resp *slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to unmarshal challenge"), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(resp.Challenge)); err != nil {
			logging.From(ctx).Error("failed to write challenge response", "error", err)
		}
		return

	case slackevents.CallbackEvent:
		// Return 200 immediately to satisfy Slack's 3-second timeout requirement
		w.WriteHeader(http.StatusOK)

		async.Dispatch(ctx, func(ctx context.Context) error {
			if err := h.handleCallbackEvent(ctx, &eventsAPIEvent); err != nil {
				return goerr.Wrap(err, "failed to handle slack event")
			}
			return nil
		})

	default:
		logging.From(ctx).Warn("unknown slack event type", "type", eventsAPIEvent.Type)
		w.WriteHeader(http.StatusOK)
	}
}

// handleCallbackEvent routes an inner event to the ingest use case. Bot
// messages and edit/delete subtypes are dropped so the assistant never
// ingests its own replies.
func (h *SlackWebhookHandler) handleCallbackEvent(ctx context.Context, event *slackevents.EventsAPIEvent) error {
	logger := logging.From(ctx)

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.BotID != "" || ev.SubType == "bot_message" {
			return nil
		}
		if ev.SubType != "" && ev.SubType != "file_share" {
			logger.Debug("ignoring message subtype", "subtype", ev.SubType)
			return nil
		}

		// Shared files ride on the raw message payload, not the event struct
		if ev.Message != nil && len(ev.Message.Files) > 0 {
			var urls, mimes []string
			for _, f := range ev.Message.Files {
				if f.URLPrivate == "" {
					continue
				}
				urls = append(urls, f.URLPrivate)
				mimes = append(mimes, f.Mimetype)
			}
			if len(urls) > 0 {
				job, err := h.ingest.IngestMedia(ctx, ev.User, ev.Channel, urls, mimes, ev.Text, ev.TimeStamp)
				if err != nil {
					return goerr.Wrap(err, "failed to ingest media message",
						goerr.V("channel", ev.Channel), goerr.V("ts", ev.TimeStamp))
				}
				logger.Info("media message ingested", "jobID", job.ID, "files", len(urls))
				return nil
			}
		}

		job, err := h.ingest.IngestText(ctx, ev.User, ev.Channel, ev.Text, ev.TimeStamp)
		if err != nil {
			return goerr.Wrap(err, "failed to ingest text message",
				goerr.V("channel", ev.Channel), goerr.V("ts", ev.TimeStamp))
		}
		logger.Info("text message ingested", "jobID", job.ID)
		return nil

	case *slackevents.AppMentionEvent:
		job, err := h.ingest.IngestText(ctx, ev.User, ev.Channel, ev.Text, ev.TimeStamp)
		if err != nil {
			return goerr.Wrap(err, "failed to ingest app mention",
				goerr.V("channel", ev.Channel), goerr.V("ts", ev.TimeStamp))
		}
		logger.Info("app mention ingested", "jobID", job.ID)
		return nil

	default:
		logger.Warn("unsupported slack event type", "type", event.Type, "innerType", event.InnerEvent.Type)
		return nil
	}
}
