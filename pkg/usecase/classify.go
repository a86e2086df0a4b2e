package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/shiori-lab/shiori/pkg/domain/interfaces"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/domain/types"
	"github.com/shiori-lab/shiori/pkg/utils/logging"
)

//go:embed prompt/intent_classify.md
var intentPromptTmpl string

var intentPrompt = template.Must(template.New("intent_classify").Parse(intentPromptTmpl))

// promptTurn represents one conversation turn for template rendering
type promptTurn struct {
	Role    string
	Content string
}

// intentPromptData holds all data for the classifier system prompt template
type intentPromptData struct {
	Turns []promptTurn
}

// llmClassifier implements IntentClassifier over a gollem session with a
// JSON response schema
type llmClassifier struct {
	repo      interfaces.Repository
	llmClient gollem.LLMClient
	profile   *model.Profile
}

func newLLMClassifier(repo interfaces.Repository, llmClient gollem.LLMClient, profile *model.Profile) *llmClassifier {
	return &llmClassifier{
		repo:      repo,
		llmClient: llmClient,
		profile:   profile,
	}
}

type intentResponse struct {
	Intent string `json:"intent"`
}

func (c *llmClassifier) Classify(ctx context.Context, owner, text string) (types.Intent, error) {
	if c.llmClient == nil {
		return "", goerr.Wrap(ErrClassification, "no LLM client configured")
	}

	systemPrompt, err := c.buildSystemPrompt(ctx, owner)
	if err != nil {
		return "", err
	}

	session, err := c.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(c.buildResponseSchema()),
		gollem.WithSessionSystemPrompt(systemPrompt),
	)
	if err != nil {
		return "", goerr.Wrap(ErrClassification, "failed to create LLM session", goerr.V("cause", err))
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(text))
	if err != nil {
		return "", goerr.Wrap(ErrClassification, "failed to generate classification", goerr.V("cause", err))
	}
	if len(resp.Texts) == 0 {
		return "", goerr.Wrap(ErrClassification, "classifier returned no content")
	}

	var parsed intentResponse
	if err := json.Unmarshal([]byte(resp.Texts[0]), &parsed); err != nil {
		return "", goerr.Wrap(ErrClassification, "failed to parse classifier response",
			goerr.V("response", resp.Texts[0]))
	}

	intent, err := types.ParseIntent(parsed.Intent)
	if err != nil {
		return "", goerr.Wrap(ErrClassification, "classifier returned unknown intent",
			goerr.V("intent", parsed.Intent))
	}

	return intent, nil
}

// buildSystemPrompt renders the classifier prompt with recent conversation
// history, oldest first. History failures degrade to a history-less prompt.
func (c *llmClassifier) buildSystemPrompt(ctx context.Context, owner string) (string, error) {
	var data intentPromptData

	turns, err := c.repo.Turn().ListRecent(ctx, owner, c.profile.HistoryLimit)
	if err != nil {
		logging.From(ctx).Warn("failed to load history for classifier, proceeding without it",
			"owner", owner, "error", err)
	} else {
		for i := len(turns) - 1; i >= 0; i-- {
			data.Turns = append(data.Turns, promptTurn{
				Role:    turns[i].Role.String(),
				Content: turns[i].Content,
			})
		}
	}

	var buf bytes.Buffer
	if err := intentPrompt.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render classifier prompt")
	}

	return buf.String(), nil
}

func (c *llmClassifier) buildResponseSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "IntentClassification",
		Description: "Classification of one incoming user message",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"intent": {
				Type:        gollem.TypeString,
				Description: `Either "save" or "question"`,
				Required:    true,
			},
		},
	}
}
