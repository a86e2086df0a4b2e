package dispatcher_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/domain/types"
	"github.com/shiori-lab/shiori/pkg/repository/memory"
	"github.com/shiori-lab/shiori/pkg/service/dispatcher"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) PostMessage(ctx context.Context, channelID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return nil
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func createJob(t *testing.T, repo *memory.Memory) *model.Job {
	t.Helper()
	job, err := model.NewJob("U012345", types.JobKindText, model.TextPayload{
		ChannelID: "C012345",
		Text:      "what was the wifi password?",
	})
	gt.NoError(t, err).Required()

	created, err := repo.Job().Create(context.Background(), job)
	gt.NoError(t, err).Required()
	return created
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func jobStatus(t *testing.T, repo *memory.Memory, id model.JobID) types.JobStatus {
	t.Helper()
	job, err := repo.Job().Get(context.Background(), id)
	gt.NoError(t, err).Required()
	return job.Status
}

func TestCompletedJobDeliversResponseOnce(t *testing.T) {
	repo := memory.New()
	notifier := &recordingNotifier{}

	handler := func(ctx context.Context, job *model.Job) (*model.JobResult, error) {
		return &model.JobResult{Response: "It rotates monthly"}, nil
	}

	d, err := dispatcher.New(repo, handler, notifier, dispatcher.WithWorkers(2))
	gt.NoError(t, err).Required()
	d.Start(context.Background())
	defer d.Stop()

	job := createJob(t, repo)
	gt.NoError(t, d.Enqueue(context.Background(), job.ID)).Required()

	waitFor(t, func() bool {
		return jobStatus(t, repo, job.ID) == types.JobStatusCompleted
	})
	waitFor(t, func() bool { return len(notifier.sent()) == 1 })

	gt.Value(t, notifier.sent()[0]).Equal("It rotates monthly")

	fetched, err := repo.Job().Get(context.Background(), job.ID)
	gt.NoError(t, err).Required()
	result, err := fetched.DecodeResult()
	gt.NoError(t, err).Required()
	gt.Value(t, result.Response).Equal("It rotates monthly")
}

func TestTransientErrorIsRetried(t *testing.T) {
	repo := memory.New()
	notifier := &recordingNotifier{}

	var mu sync.Mutex
	attempts := 0
	handler := func(ctx context.Context, job *model.Job) (*model.JobResult, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return nil, goerr.New("provider hiccup", goerr.T(model.TagTransient))
		}
		return &model.JobResult{Response: "recovered"}, nil
	}

	d, err := dispatcher.New(repo, handler, notifier,
		dispatcher.WithWorkers(1),
		dispatcher.WithMaxRetries(3),
		dispatcher.WithRetryBackoff(time.Millisecond))
	gt.NoError(t, err).Required()
	d.Start(context.Background())
	defer d.Stop()

	job := createJob(t, repo)
	gt.NoError(t, d.Enqueue(context.Background(), job.ID)).Required()

	waitFor(t, func() bool {
		return jobStatus(t, repo, job.ID) == types.JobStatusCompleted
	})

	mu.Lock()
	gt.Value(t, attempts).Equal(3)
	mu.Unlock()
	gt.Array(t, notifier.sent()).Length(1)
	gt.Value(t, notifier.sent()[0]).Equal("recovered")
}

func TestPermanentErrorFailsWithoutRetry(t *testing.T) {
	repo := memory.New()
	notifier := &recordingNotifier{}

	var mu sync.Mutex
	attempts := 0
	handler := func(ctx context.Context, job *model.Job) (*model.JobResult, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return nil, goerr.New("malformed payload")
	}

	d, err := dispatcher.New(repo, handler, notifier,
		dispatcher.WithWorkers(1),
		dispatcher.WithMaxRetries(3),
		dispatcher.WithRetryBackoff(time.Millisecond))
	gt.NoError(t, err).Required()
	d.Start(context.Background())
	defer d.Stop()

	job := createJob(t, repo)
	gt.NoError(t, d.Enqueue(context.Background(), job.ID)).Required()

	waitFor(t, func() bool {
		return jobStatus(t, repo, job.ID) == types.JobStatusFailed
	})

	mu.Lock()
	gt.Value(t, attempts).Equal(1)
	mu.Unlock()
	gt.Array(t, notifier.sent()).Length(1)
	gt.Value(t, notifier.sent()[0]).Equal(dispatcher.DefaultFailureMessage)
}

func TestExhaustedRetriesFailJob(t *testing.T) {
	repo := memory.New()
	notifier := &recordingNotifier{}

	var mu sync.Mutex
	attempts := 0
	handler := func(ctx context.Context, job *model.Job) (*model.JobResult, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return nil, goerr.New("still down", goerr.T(model.TagTransient))
	}

	d, err := dispatcher.New(repo, handler, notifier,
		dispatcher.WithWorkers(1),
		dispatcher.WithMaxRetries(2),
		dispatcher.WithRetryBackoff(time.Millisecond))
	gt.NoError(t, err).Required()
	d.Start(context.Background())
	defer d.Stop()

	job := createJob(t, repo)
	gt.NoError(t, d.Enqueue(context.Background(), job.ID)).Required()

	waitFor(t, func() bool {
		return jobStatus(t, repo, job.ID) == types.JobStatusFailed
	})

	// first attempt + 2 retries
	mu.Lock()
	gt.Value(t, attempts).Equal(3)
	mu.Unlock()
	gt.Array(t, notifier.sent()).Length(1)
}

func TestAlreadyClaimedJobIsSkipped(t *testing.T) {
	repo := memory.New()
	notifier := &recordingNotifier{}

	handler := func(ctx context.Context, job *model.Job) (*model.JobResult, error) {
		return &model.JobResult{Response: "should not run"}, nil
	}

	d, err := dispatcher.New(repo, handler, notifier, dispatcher.WithWorkers(1))
	gt.NoError(t, err).Required()
	d.Start(context.Background())
	defer d.Stop()

	job := createJob(t, repo)
	_, err = repo.Job().Claim(context.Background(), job.ID)
	gt.NoError(t, err).Required()

	gt.NoError(t, d.Enqueue(context.Background(), job.ID)).Required()
	time.Sleep(50 * time.Millisecond)

	gt.Value(t, jobStatus(t, repo, job.ID)).Equal(types.JobStatusProcessing)
	gt.Array(t, notifier.sent()).Length(0)
}

func TestSweepFailsAbandonedJobs(t *testing.T) {
	repo := memory.New()
	notifier := &recordingNotifier{}

	handler := func(ctx context.Context, job *model.Job) (*model.JobResult, error) {
		return nil, goerr.New("unreachable in this test")
	}

	d, err := dispatcher.New(repo, handler, notifier,
		dispatcher.WithStaleAfter(time.Millisecond))
	gt.NoError(t, err).Required()

	job := createJob(t, repo)
	_, err = repo.Job().Claim(context.Background(), job.ID)
	gt.NoError(t, err).Required()

	time.Sleep(20 * time.Millisecond)
	d.Sweep(context.Background())

	gt.Value(t, jobStatus(t, repo, job.ID)).Equal(types.JobStatusFailed)
	gt.Array(t, notifier.sent()).Length(1)
	gt.Value(t, notifier.sent()[0]).Equal(dispatcher.DefaultFailureMessage)

	// Sweep is idempotent: a failed job is never failed or notified twice
	d.Sweep(context.Background())
	gt.Array(t, notifier.sent()).Length(1)
}
