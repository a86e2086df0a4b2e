package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/shiori-lab/shiori/pkg/domain/interfaces"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/domain/types"
	"github.com/shiori-lab/shiori/pkg/service/embedding"
	"github.com/shiori-lab/shiori/pkg/service/objstore"
	"github.com/shiori-lab/shiori/pkg/service/ocr"
)

// MediaFetcher downloads raw media bytes from a transport URL
type MediaFetcher interface {
	DownloadFile(ctx context.Context, url string) ([]byte, error)
}

// JobQueue hands created jobs to the dispatcher
type JobQueue interface {
	Enqueue(ctx context.Context, id model.JobID) error
}

// IntentClassifier decides whether an incoming text is a save or a question
type IntentClassifier interface {
	Classify(ctx context.Context, owner, text string) (types.Intent, error)
}

// Answerer produces a degradable answer to a question
type Answerer interface {
	Answer(ctx context.Context, owner, question string) (string, error)
}

// ProgressNotifier surfaces agent progress to the channel while a question
// is being answered. The Slack service satisfies this.
type ProgressNotifier interface {
	PostMessage(ctx context.Context, channelID, text string) error
}

type UseCases struct {
	repo    interfaces.Repository
	profile *model.Profile

	Ingest *IngestUseCase
	Media  *MediaPipeline
	Text   *TextPipeline
	Agent  *AgentUseCase

	embed      embedding.Service
	ocrService ocr.Service
	store      objstore.Storage
	fetcher    MediaFetcher
	llmClient  gollem.LLMClient
	classifier IntentClassifier
	answerer   Answerer
	notifier   ProgressNotifier
}

type Option func(*UseCases)

func WithProfile(profile *model.Profile) Option {
	return func(uc *UseCases) {
		uc.profile = profile
	}
}

func WithEmbedding(svc embedding.Service) Option {
	return func(uc *UseCases) {
		uc.embed = svc
	}
}

func WithOCR(svc ocr.Service) Option {
	return func(uc *UseCases) {
		uc.ocrService = svc
	}
}

func WithObjectStorage(store objstore.Storage) Option {
	return func(uc *UseCases) {
		uc.store = store
	}
}

func WithMediaFetcher(fetcher MediaFetcher) Option {
	return func(uc *UseCases) {
		uc.fetcher = fetcher
	}
}

func WithLLMClient(client gollem.LLMClient) Option {
	return func(uc *UseCases) {
		uc.llmClient = client
	}
}

// WithIntentClassifier replaces the LLM-backed classifier, mainly for tests
func WithIntentClassifier(c IntentClassifier) Option {
	return func(uc *UseCases) {
		uc.classifier = c
	}
}

// WithAnswerer replaces the LLM-backed agent, mainly for tests
func WithAnswerer(a Answerer) Option {
	return func(uc *UseCases) {
		uc.answerer = a
	}
}

// WithProgressNotifier posts agent tool progress back to the originating
// channel while a question job runs
func WithProgressNotifier(n ProgressNotifier) Option {
	return func(uc *UseCases) {
		uc.notifier = n
	}
}

func New(repo interfaces.Repository, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:    repo,
		profile: model.DefaultProfile(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Agent = NewAgentUseCase(repo, uc.llmClient, uc.embed, uc.profile)
	if uc.answerer == nil {
		uc.answerer = uc.Agent
	}
	if uc.classifier == nil {
		uc.classifier = newLLMClassifier(repo, uc.llmClient, uc.profile)
	}

	uc.Ingest = NewIngestUseCase(repo)
	uc.Media = NewMediaPipeline(repo, uc.fetcher, uc.store, uc.ocrService, uc.embed)
	uc.Text = NewTextPipeline(repo, uc.classifier, uc.answerer, uc.embed, uc.notifier)

	return uc
}

// SetJobQueue attaches the dispatcher queue. Called after the dispatcher is
// built, since the dispatcher's handler is HandleJob below.
func (uc *UseCases) SetJobQueue(queue JobQueue) {
	uc.Ingest.queue = queue
}

// HandleJob routes a claimed job to its pipeline by kind
func (uc *UseCases) HandleJob(ctx context.Context, job *model.Job) (*model.JobResult, error) {
	switch job.Kind {
	case types.JobKindMedia:
		return uc.Media.Process(ctx, job)
	case types.JobKindText:
		return uc.Text.Process(ctx, job)
	default:
		return nil, goerr.Wrap(ErrValidation, "unknown job kind",
			goerr.V("jobID", job.ID), goerr.V("kind", job.Kind))
	}
}
