package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/interfaces"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/domain/types"
	"github.com/shiori-lab/shiori/pkg/service/embedding"
	"github.com/shiori-lab/shiori/pkg/service/objstore"
	"github.com/shiori-lab/shiori/pkg/service/ocr"
	"github.com/shiori-lab/shiori/pkg/utils/logging"
)

// MediaTextSeparator joins text extracted from multiple files of one message
const MediaTextSeparator = "\n\n---\n\n"

// MediaPipeline turns a media job into a persisted Record: fetch each file,
// archive the bytes, extract text, embed the combined text, persist.
type MediaPipeline struct {
	repo       interfaces.Repository
	fetcher    MediaFetcher
	store      objstore.Storage
	ocrService ocr.Service
	embed      embedding.Service
}

func NewMediaPipeline(repo interfaces.Repository, fetcher MediaFetcher, store objstore.Storage, ocrService ocr.Service, embed embedding.Service) *MediaPipeline {
	return &MediaPipeline{
		repo:       repo,
		fetcher:    fetcher,
		store:      store,
		ocrService: ocrService,
		embed:      embed,
	}
}

func (p *MediaPipeline) Process(ctx context.Context, job *model.Job) (*model.JobResult, error) {
	if p.fetcher == nil || p.store == nil || p.ocrService == nil {
		return nil, goerr.Wrap(ErrValidation, "media processing is not configured", goerr.V("jobID", job.ID))
	}

	payload, err := job.MediaPayload()
	if err != nil {
		return nil, goerr.Wrap(ErrValidation, "invalid media payload", goerr.V("jobID", job.ID), goerr.V("cause", err))
	}

	texts := make([]string, 0, len(payload.MediaURLs))
	sourceRefs := make([]string, 0, len(payload.MediaURLs))

	var ocrFailures int
	var lastOCRErr error

	for i, url := range payload.MediaURLs {
		mimeType := ""
		if i < len(payload.MimeTypes) {
			mimeType = payload.MimeTypes[i]
		}

		data, err := p.fetcher.DownloadFile(ctx, url)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to fetch media",
				goerr.V("jobID", job.ID), goerr.V("url", url), goerr.T(model.TagTransient))
		}

		key := fmt.Sprintf("media/%s/%d", job.ID, i)
		if err := p.store.Put(ctx, key, data, mimeType); err != nil {
			return nil, goerr.Wrap(err, "failed to archive media",
				goerr.V("jobID", job.ID), goerr.V("key", key), goerr.T(model.TagTransient))
		}
		sourceRefs = append(sourceRefs, key)

		// One unreadable file must not lose the rest of the batch; the job
		// fails only when every file errored
		text, err := p.ocrService.ExtractText(ctx, data, mimeType)
		if err != nil {
			logging.From(ctx).Warn("text extraction failed for one file, continuing",
				"jobID", job.ID, "key", key, "error", err)
			ocrFailures++
			lastOCRErr = err
			continue
		}
		if strings.TrimSpace(text) != "" {
			texts = append(texts, text)
		}
	}

	if ocrFailures > 0 && ocrFailures == len(payload.MediaURLs) {
		return nil, goerr.Wrap(lastOCRErr, "failed to extract text from every file",
			goerr.V("jobID", job.ID), goerr.V("failures", ocrFailures))
	}

	record := &model.Record{
		Owner:      job.Owner,
		Kind:       types.RecordKindMedia,
		RawText:    strings.Join(texts, MediaTextSeparator),
		SourceRefs: sourceRefs,
		Metadata: map[string]string{
			"source":      "slack",
			"media_count": strconv.Itoa(len(payload.MediaURLs)),
		},
	}

	// Media with no readable text is still archived, just not searchable
	if record.RawText != "" {
		emb, err := p.embed.Embed(ctx, record.RawText)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to embed media text", goerr.V("jobID", job.ID))
		}
		record.Embedding = emb
	} else {
		logging.From(ctx).Info("media carries no readable text, saving without embedding", "jobID", job.ID)
	}

	created, err := p.repo.Record().Create(ctx, record)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to persist media record", goerr.V("jobID", job.ID))
	}

	response := fmt.Sprintf("Saved %d file(s) as record %s.", len(payload.MediaURLs), created.ID)
	if record.RawText == "" {
		response = fmt.Sprintf("Saved %d file(s) as record %s. No readable text was found, so it won't show up in search.", len(payload.MediaURLs), created.ID)
	}

	if _, err := p.repo.Turn().Append(ctx, &model.ConversationTurn{
		Owner:         job.Owner,
		Direction:     types.DirectionOut,
		Role:          types.RoleAssistant,
		Content:       response,
		CorrelationID: string(job.ID),
	}); err != nil {
		logging.From(ctx).Error("failed to append outbound turn", "jobID", job.ID, "error", err)
	}

	return &model.JobResult{
		Response: response,
		RecordID: created.ID,
	}, nil
}
