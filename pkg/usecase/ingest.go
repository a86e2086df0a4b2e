package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/interfaces"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/domain/types"
	"github.com/shiori-lab/shiori/pkg/utils/logging"
)

// IngestUseCase turns incoming transport events into queued jobs. Every
// accepted event leaves two traces: an inbound conversation turn and a job.
type IngestUseCase struct {
	repo  interfaces.Repository
	queue JobQueue
}

func NewIngestUseCase(repo interfaces.Repository) *IngestUseCase {
	return &IngestUseCase{repo: repo}
}

// IngestText accepts a plain text message
func (uc *IngestUseCase) IngestText(ctx context.Context, owner, channelID, text, correlationID string) (*model.Job, error) {
	if strings.TrimSpace(text) == "" {
		return nil, goerr.Wrap(ErrValidation, "text is empty", goerr.V("owner", owner))
	}

	job, err := model.NewJob(owner, types.JobKindText, model.TextPayload{
		ChannelID: channelID,
		Text:      text,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build text job", goerr.V("owner", owner))
	}

	return uc.submit(ctx, job, text, correlationID)
}

// IngestMedia accepts a message carrying one or more media files
func (uc *IngestUseCase) IngestMedia(ctx context.Context, owner, channelID string, mediaURLs, mimeTypes []string, caption, correlationID string) (*model.Job, error) {
	if len(mediaURLs) == 0 {
		return nil, goerr.Wrap(ErrValidation, "no media URLs", goerr.V("owner", owner))
	}

	job, err := model.NewJob(owner, types.JobKindMedia, model.MediaPayload{
		ChannelID: channelID,
		MediaURLs: mediaURLs,
		MimeTypes: mimeTypes,
		Caption:   caption,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build media job", goerr.V("owner", owner))
	}

	content := fmt.Sprintf("[media] %s", strings.Join(mediaURLs, " "))
	if caption != "" {
		content += "\n" + caption
	}

	return uc.submit(ctx, job, content, correlationID)
}

func (uc *IngestUseCase) submit(ctx context.Context, job *model.Job, turnContent, correlationID string) (*model.Job, error) {
	if _, err := uc.repo.Turn().Append(ctx, &model.ConversationTurn{
		Owner:         job.Owner,
		Direction:     types.DirectionIn,
		Role:          types.RoleUser,
		Content:       turnContent,
		CorrelationID: correlationID,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to append inbound turn", goerr.V("owner", job.Owner))
	}

	created, err := uc.repo.Job().Create(ctx, job)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create job", goerr.V("owner", job.Owner))
	}

	if uc.queue == nil {
		logging.From(ctx).Warn("no job queue attached, job stays queued", "jobID", created.ID)
		return created, nil
	}

	if err := uc.queue.Enqueue(ctx, created.ID); err != nil {
		// The job row exists and stays queued; operators can requeue it
		logging.From(ctx).Error("failed to enqueue job", "jobID", created.ID, "error", err)
	}

	return created, nil
}
