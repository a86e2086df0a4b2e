package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/interfaces"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultFailureMessage is sent to the user when a job ends up failed
	DefaultFailureMessage = "Sorry, something went wrong while handling your message. Please try again."

	defaultWorkers       = 4
	defaultQueueSize     = 64
	defaultMaxRetries    = 3
	defaultRetryBackoff  = 500 * time.Millisecond
	defaultSweepInterval = time.Minute
	defaultStaleAfter    = 5 * time.Minute
)

// Handler processes a claimed job and produces its result
type Handler func(ctx context.Context, job *model.Job) (*model.JobResult, error)

// Notifier delivers the outbound reply for a terminal job
type Notifier interface {
	PostMessage(ctx context.Context, channelID, text string) error
}

// Dispatcher owns the job lifecycle: it claims queued jobs, runs the handler
// with bounded retries for transient failures, writes exactly one terminal
// status, and delivers exactly one outbound message per terminal job. A
// background sweeper fails jobs abandoned mid-processing.
//
// Architecture assumptions:
// - Single server instance (no distributed locking); the CAS claim still
//   keeps concurrent workers within the instance safe
type Dispatcher struct {
	repo     interfaces.Repository
	handler  Handler
	notifier Notifier

	queue          chan model.JobID
	workers        int
	maxRetries     int
	retryBackoff   time.Duration
	sweepInterval  time.Duration
	staleAfter     time.Duration
	failureMessage string

	eg     *errgroup.Group
	cancel context.CancelFunc
}

// Option is a functional option for dispatcher configuration
type Option func(*Dispatcher)

// WithWorkers sets the worker pool size
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets the queue buffer size
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan model.JobID, n)
		}
	}
}

// WithMaxRetries sets how many times a transiently failing job is retried
// after the first attempt
func WithMaxRetries(n int) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base backoff; each retry doubles it
func WithRetryBackoff(backoff time.Duration) Option {
	return func(d *Dispatcher) {
		if backoff > 0 {
			d.retryBackoff = backoff
		}
	}
}

// WithSweepInterval sets how often the abandoned-job sweep runs
func WithSweepInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.sweepInterval = interval
		}
	}
}

// WithStaleAfter sets how long a job may sit in processing before the sweep
// declares it abandoned
func WithStaleAfter(age time.Duration) Option {
	return func(d *Dispatcher) {
		if age > 0 {
			d.staleAfter = age
		}
	}
}

// WithFailureMessage overrides the message sent to users on failed jobs
func WithFailureMessage(msg string) Option {
	return func(d *Dispatcher) {
		if msg != "" {
			d.failureMessage = msg
		}
	}
}

func New(repo interfaces.Repository, handler Handler, notifier Notifier, opts ...Option) (*Dispatcher, error) {
	if repo == nil {
		return nil, goerr.New("repository is required")
	}
	if handler == nil {
		return nil, goerr.New("handler is required")
	}
	if notifier == nil {
		return nil, goerr.New("notifier is required")
	}

	d := &Dispatcher{
		repo:           repo,
		handler:        handler,
		notifier:       notifier,
		queue:          make(chan model.JobID, defaultQueueSize),
		workers:        defaultWorkers,
		maxRetries:     defaultMaxRetries,
		retryBackoff:   defaultRetryBackoff,
		sweepInterval:  defaultSweepInterval,
		staleAfter:     defaultStaleAfter,
		failureMessage: DefaultFailureMessage,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Start launches the worker pool and the abandoned-job sweeper
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.eg = &errgroup.Group{}

	logging.From(ctx).Info("dispatcher starting",
		"workers", d.workers,
		"maxRetries", d.maxRetries,
		"sweepInterval", d.sweepInterval.String())

	for i := 0; i < d.workers; i++ {
		d.eg.Go(func() error {
			d.workerLoop(ctx)
			return nil
		})
	}

	d.eg.Go(func() error {
		d.sweepLoop(ctx)
		return nil
	})
}

// Stop signals all workers to stop and waits for completion
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	_ = d.eg.Wait()
}

// Enqueue hands a created job to the worker pool
func (d *Dispatcher) Enqueue(ctx context.Context, id model.JobID) error {
	select {
	case d.queue <- id:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "failed to enqueue job", goerr.V("jobID", id))
	}
}

func (d *Dispatcher) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-d.queue:
			d.process(ctx, id)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, id model.JobID) {
	logger := logging.From(ctx).With("jobID", id)

	job, err := d.repo.Job().Claim(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrJobAlreadyClaimed) {
			logger.Debug("job already claimed, skipping")
			return
		}
		logger.Error("failed to claim job", "error", err)
		return
	}

	result, err := d.runWithRetry(ctx, job)
	if err != nil {
		d.finishFailed(ctx, job, err)
		return
	}

	d.finishCompleted(ctx, job, result)
}

// runWithRetry runs the handler, retrying only errors tagged transient.
// All attempts happen inside the job's single processing window.
func (d *Dispatcher) runWithRetry(ctx context.Context, job *model.Job) (*model.JobResult, error) {
	logger := logging.From(ctx).With("jobID", job.ID)

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			wait := d.retryBackoff << (attempt - 1)
			logger.Warn("retrying job after transient error",
				"attempt", attempt, "wait", wait.String(), "error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, goerr.Wrap(ctx.Err(), "job processing cancelled")
			}
		}

		result, err := d.handler(ctx, job)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !goerr.HasTag(err, model.TagTransient) {
			return nil, err
		}
	}

	return nil, goerr.Wrap(lastErr, "retries exhausted", goerr.V("maxRetries", d.maxRetries))
}

func (d *Dispatcher) finishCompleted(ctx context.Context, job *model.Job, result *model.JobResult) {
	logger := logging.From(ctx).With("jobID", job.ID)

	var encoded []byte
	if result != nil {
		var err error
		encoded, err = json.Marshal(result)
		if err != nil {
			logger.Error("failed to encode job result", "error", err)
			d.finishFailed(ctx, job, err)
			return
		}
	}

	if err := d.repo.Job().Complete(ctx, job.ID, encoded); err != nil {
		// Lost to the sweep or another writer: the other side owns delivery
		if errors.Is(err, model.ErrJobInvalidTransition) {
			logger.Warn("job no longer completable, skipping delivery", "error", err)
			return
		}
		logger.Error("failed to complete job", "error", err)
		return
	}

	if result == nil || result.Response == "" {
		return
	}
	d.deliver(ctx, job, result.Response)
}

func (d *Dispatcher) finishFailed(ctx context.Context, job *model.Job, jobErr error) {
	logger := logging.From(ctx).With("jobID", job.ID)
	logger.Error("job failed", "error", jobErr)

	if err := d.repo.Job().Fail(ctx, job.ID, jobErr.Error()); err != nil {
		if errors.Is(err, model.ErrJobInvalidTransition) {
			logger.Warn("job no longer failable, skipping delivery", "error", err)
			return
		}
		logger.Error("failed to mark job failed", "error", err)
		return
	}

	d.deliver(ctx, job, d.failureMessage)
}

// deliver sends the single outbound message for a terminal job. Delivery is
// attempted once; a failure is logged, never retried.
func (d *Dispatcher) deliver(ctx context.Context, job *model.Job, text string) {
	channelID, err := job.ReplyChannel()
	if err != nil || channelID == "" {
		logging.From(ctx).Warn("job has no reply channel, skipping delivery",
			"jobID", job.ID, "error", err)
		return
	}

	if err := d.notifier.PostMessage(ctx, channelID, text); err != nil {
		logging.From(ctx).Error("failed to deliver reply",
			"jobID", job.ID, "channelID", channelID, "error", err)
	}
}

func (d *Dispatcher) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep fails jobs stuck in processing longer than staleAfter. The terminal
// transition doubles as the delivery guard: whichever writer wins sends the
// one outbound message.
func (d *Dispatcher) Sweep(ctx context.Context) {
	logger := logging.From(ctx)

	cutoff := time.Now().UTC().Add(-d.staleAfter)
	jobs, err := d.repo.Job().ListStaleProcessing(ctx, cutoff)
	if err != nil {
		logger.Error("failed to list stale jobs", "error", err)
		return
	}

	for _, job := range jobs {
		if err := d.repo.Job().Fail(ctx, job.ID, "abandoned: processing timed out"); err != nil {
			if errors.Is(err, model.ErrJobInvalidTransition) {
				continue
			}
			logger.Error("failed to fail abandoned job", "jobID", job.ID, "error", err)
			continue
		}

		logger.Warn("abandoned job marked as failed", "jobID", job.ID, "updatedAt", job.UpdatedAt)
		d.deliver(ctx, job, d.failureMessage)
	}
}
