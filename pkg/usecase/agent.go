package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/shiori-lab/shiori/pkg/agent/tool/core"
	"github.com/shiori-lab/shiori/pkg/domain/interfaces"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/service/embedding"
	"github.com/shiori-lab/shiori/pkg/utils/logging"
)

//go:embed prompt/agent_system.md
var agentSystemPromptTmpl string

var agentSystemPrompt = template.Must(template.New("agent_system").Parse(agentSystemPromptTmpl))

// AgentUseCase answers questions over the user's records with a bounded
// tool-calling loop. It never propagates an agent failure to the job: when
// the step budget runs out or the agent cannot produce text, the user gets
// the profile's fallback answer.
type AgentUseCase struct {
	repo      interfaces.Repository
	llmClient gollem.LLMClient
	embed     embedding.Service
	profile   *model.Profile
}

func NewAgentUseCase(repo interfaces.Repository, llmClient gollem.LLMClient, embed embedding.Service, profile *model.Profile) *AgentUseCase {
	if profile == nil {
		profile = model.DefaultProfile()
	}
	return &AgentUseCase{
		repo:      repo,
		llmClient: llmClient,
		embed:     embed,
		profile:   profile,
	}
}

// agentPromptData holds all data for the agent system prompt template
type agentPromptData struct {
	Persona string
	Turns   []promptTurn
}

// Answer runs the agent loop for one question and degrades to the fallback
// answer when the loop cannot finish.
func (uc *AgentUseCase) Answer(ctx context.Context, owner, question string) (string, error) {
	answer, err := uc.execute(ctx, owner, question)
	if err != nil {
		if errors.Is(err, ErrAgentBudgetExceeded) {
			logging.From(ctx).Warn("agent budget exceeded, returning fallback answer",
				"owner", owner, "loopLimit", uc.profile.AgentLoopLimit, "error", err)
			return uc.profile.FallbackAnswer, nil
		}
		return "", err
	}

	if strings.TrimSpace(answer) == "" {
		logging.From(ctx).Warn("agent produced empty answer, returning fallback", "owner", owner)
		return uc.profile.FallbackAnswer, nil
	}

	return answer, nil
}

func (uc *AgentUseCase) execute(ctx context.Context, owner, question string) (string, error) {
	if uc.llmClient == nil {
		return "", goerr.New("no LLM client configured")
	}

	systemPrompt, err := uc.buildSystemPrompt(ctx, owner)
	if err != nil {
		return "", err
	}

	tools := core.New(uc.repo, owner, uc.embed)

	agent := gollem.New(uc.llmClient,
		gollem.WithSystemPrompt(systemPrompt),
		gollem.WithTools(tools...),
		gollem.WithLoopLimit(uc.profile.AgentLoopLimit),
	)

	resp, err := agent.Execute(ctx, gollem.Text(question))
	if err != nil {
		// The loop limit is by far the common cause here; treat every
		// execution failure as an exhausted budget and degrade
		return "", goerr.Wrap(ErrAgentBudgetExceeded, "agent stopped before producing an answer",
			goerr.V("owner", owner), goerr.V("cause", err))
	}

	return strings.Join(resp.Texts, "\n"), nil
}

// buildSystemPrompt renders the persona plus recent conversation history,
// oldest first. History failures degrade to a history-less prompt.
func (uc *AgentUseCase) buildSystemPrompt(ctx context.Context, owner string) (string, error) {
	data := agentPromptData{
		Persona: uc.profile.Persona,
	}

	turns, err := uc.repo.Turn().ListRecent(ctx, owner, uc.profile.HistoryLimit)
	if err != nil {
		logging.From(ctx).Warn("failed to load history for agent, proceeding without it",
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
	if err := agentSystemPrompt.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render agent prompt")
	}

	return buf.String(), nil
}
