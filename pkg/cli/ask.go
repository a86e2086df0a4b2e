package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/cli/config"
	"github.com/shiori-lab/shiori/pkg/service/embedding"
	"github.com/shiori-lab/shiori/pkg/usecase"
	"github.com/shiori-lab/shiori/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdAsk() *cli.Command {
	var owner string
	var repoCfg config.Repository
	var geminiCfg config.Gemini
	var profileCfg config.Profile

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "owner",
			Usage:       "Slack user ID whose records to search (required)",
			Required:    true,
			Sources:     cli.EnvVars("SHIORI_OWNER"),
			Destination: &owner,
		},
	}

	// Add shared config flags
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, profileCfg.Flags()...)

	return &cli.Command{
		Name:      "ask",
		Aliases:   []string{"a"},
		Usage:     "Ask a one-shot question against saved records",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if question == "" {
				return goerr.New("question is required as an argument")
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			llmClient, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize Gemini client")
			}
			if llmClient == nil {
				return goerr.New("gemini-project is required for ask")
			}

			embedSvc, err := embedding.New(llmClient)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize embedding service")
			}

			profile, err := profileCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load assistant profile")
			}

			uc := usecase.New(repo,
				usecase.WithProfile(profile),
				usecase.WithLLMClient(llmClient),
				usecase.WithEmbedding(embedSvc),
			)

			answer, err := uc.Agent.Answer(ctx, owner, question)
			if err != nil {
				return goerr.Wrap(err, "failed to answer question")
			}

			fmt.Println(answer)
			return nil
		},
	}
}
