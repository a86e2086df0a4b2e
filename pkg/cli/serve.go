package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/shiori-lab/shiori/pkg/cli/config"
	httpctrl "github.com/shiori-lab/shiori/pkg/controller/http"
	"github.com/shiori-lab/shiori/pkg/service/dispatcher"
	"github.com/shiori-lab/shiori/pkg/service/embedding"
	"github.com/shiori-lab/shiori/pkg/usecase"
	"github.com/shiori-lab/shiori/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var repoCfg config.Repository
	var geminiCfg config.Gemini
	var slackCfg config.Slack
	var ocrCfg config.OCR
	var storageCfg config.Storage
	var profileCfg config.Profile
	var dispatcherCfg config.Dispatcher

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("SHIORI_ADDR"),
			Destination: &addr,
		},
	}

	// Add shared config flags
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, ocrCfg.Flags()...)
	flags = append(flags, storageCfg.Flags()...)
	flags = append(flags, profileCfg.Flags()...)
	flags = append(flags, dispatcherCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logger.Error("failed to close repository", "error", err.Error())
				}
			}()

			llmClient, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize Gemini client")
			}
			if llmClient == nil {
				return goerr.New("gemini-project is required: the server cannot classify or answer without an LLM")
			}

			embedSvc, err := embedding.New(llmClient)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize embedding service")
			}

			if !slackCfg.IsConfigured() {
				return goerr.New("slack-bot-token and slack-signing-secret are required")
			}
			slackSvc, err := slackCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to initialize Slack service")
			}

			store, err := storageCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize media storage")
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Error("failed to close media storage", "error", err.Error())
				}
			}()

			ocrSvc, err := ocrCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to initialize OCR service")
			}
			if ocrSvc == nil {
				logger.Warn("Mistral API key not configured, media jobs will fail without OCR")
			}

			profile, err := profileCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load assistant profile")
			}

			uc := usecase.New(repo,
				usecase.WithProfile(profile),
				usecase.WithLLMClient(llmClient),
				usecase.WithEmbedding(embedSvc),
				usecase.WithOCR(ocrSvc),
				usecase.WithObjectStorage(store),
				usecase.WithMediaFetcher(slackSvc),
				usecase.WithProgressNotifier(slackSvc),
			)

			dispatcherOpts := append(dispatcherCfg.Options(),
				dispatcher.WithFailureMessage(profile.FailureMessage))
			d, err := dispatcher.New(repo, uc.HandleJob, slackSvc, dispatcherOpts...)
			if err != nil {
				return goerr.Wrap(err, "failed to create dispatcher")
			}
			uc.SetJobQueue(d)
			d.Start(ctx)
			defer d.Stop()

			webhookHandler := httpctrl.NewSlackWebhookHandler(uc.Ingest)
			httpHandler := httpctrl.New(
				httpctrl.WithSlackWebhook(webhookHandler, slackCfg.SigningSecret()),
			)

			server := &http.Server{
				Addr:              addr,
				Handler:           httpHandler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logger.Info("Received shutdown signal", "signal", sig)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logger.Info("Server shutdown completed")
				return nil
			}
		},
	}
}
