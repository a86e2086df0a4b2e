package usecase

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/agent/tool"
	"github.com/shiori-lab/shiori/pkg/domain/interfaces"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/domain/types"
	"github.com/shiori-lab/shiori/pkg/service/embedding"
	"github.com/shiori-lab/shiori/pkg/utils/logging"
)

// TextPipeline handles text jobs: classify the message as a save or a
// question, then persist a note or answer via the agent. Classification
// failures never fail the job; the message is treated as a question.
type TextPipeline struct {
	repo       interfaces.Repository
	classifier IntentClassifier
	answerer   Answerer
	embed      embedding.Service
	notifier   ProgressNotifier
}

func NewTextPipeline(repo interfaces.Repository, classifier IntentClassifier, answerer Answerer, embed embedding.Service, notifier ProgressNotifier) *TextPipeline {
	return &TextPipeline{
		repo:       repo,
		classifier: classifier,
		answerer:   answerer,
		embed:      embed,
		notifier:   notifier,
	}
}

func (p *TextPipeline) Process(ctx context.Context, job *model.Job) (*model.JobResult, error) {
	payload, err := job.TextPayload()
	if err != nil {
		return nil, goerr.Wrap(ErrValidation, "invalid text payload", goerr.V("jobID", job.ID), goerr.V("cause", err))
	}

	intent, err := p.classifier.Classify(ctx, job.Owner, payload.Text)
	if err != nil {
		// Fail closed: an unclassifiable message is treated as a question
		// so we never store something the user did not ask to keep
		logging.From(ctx).Warn("classification failed, treating message as question",
			"jobID", job.ID, "error", err)
		intent = types.IntentQuestion
	}

	result := &model.JobResult{}

	switch intent {
	case types.IntentSave:
		record, err := p.saveNote(ctx, job.Owner, payload.Text)
		if err != nil {
			return nil, err
		}
		result.RecordID = record.ID
		result.Response = fmt.Sprintf("Saved as record %s.", record.ID)

	case types.IntentQuestion:
		answerCtx := ctx
		// Tool progress goes back to the channel the question came from
		if p.notifier != nil && payload.ChannelID != "" {
			channelID := payload.ChannelID
			answerCtx = tool.WithUpdate(ctx, func(ctx context.Context, message string) {
				if err := p.notifier.PostMessage(ctx, channelID, message); err != nil {
					logging.From(ctx).Warn("failed to post progress update",
						"jobID", job.ID, "channel", channelID, "error", err)
				}
			})
		}
		answer, err := p.answerer.Answer(answerCtx, job.Owner, payload.Text)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to answer question", goerr.V("jobID", job.ID))
		}
		result.Response = answer

	default:
		return nil, goerr.Wrap(ErrValidation, "unknown intent",
			goerr.V("jobID", job.ID), goerr.V("intent", intent))
	}

	if _, err := p.repo.Turn().Append(ctx, &model.ConversationTurn{
		Owner:         job.Owner,
		Direction:     types.DirectionOut,
		Role:          types.RoleAssistant,
		Content:       result.Response,
		CorrelationID: string(job.ID),
	}); err != nil {
		logging.From(ctx).Error("failed to append outbound turn", "jobID", job.ID, "error", err)
	}

	return result, nil
}

func (p *TextPipeline) saveNote(ctx context.Context, owner, text string) (*model.Record, error) {
	emb, err := p.embed.Embed(ctx, text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed note", goerr.V("owner", owner))
	}

	record, err := p.repo.Record().Create(ctx, &model.Record{
		Owner:     owner,
		Kind:      types.RecordKindNote,
		RawText:   text,
		Embedding: emb,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to persist note", goerr.V("owner", owner))
	}

	return record, nil
}
