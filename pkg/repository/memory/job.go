package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/domain/types"
)

type jobRepository struct {
	mu   sync.Mutex
	jobs map[model.JobID]*model.Job
}

func newJobRepository() *jobRepository {
	return &jobRepository{
		jobs: make(map[model.JobID]*model.Job),
	}
}

func copyJob(j *model.Job) *model.Job {
	copied := *j
	if j.Payload != nil {
		copied.Payload = append([]byte(nil), j.Payload...)
	}
	if j.Result != nil {
		copied.Result = append([]byte(nil), j.Result...)
	}
	return &copied
}

func (r *jobRepository) Create(ctx context.Context, job *model.Job) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	created := copyJob(job)
	if created.ID == "" {
		created.ID = model.NewJobID()
	}
	created.Status = types.JobStatusQueued
	created.CreatedAt = now
	created.UpdatedAt = now

	r.jobs[created.ID] = created
	return copyJob(created), nil
}

func (r *jobRepository) Get(ctx context.Context, id model.JobID) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "job not found", goerr.V("id", id))
	}

	return copyJob(job), nil
}

// Claim is a compare-and-swap on status under the repository lock:
// exactly one concurrent claimer observes queued and wins.
func (r *jobRepository) Claim(ctx context.Context, id model.JobID) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "job not found", goerr.V("id", id))
	}

	if job.Status != types.JobStatusQueued {
		return nil, goerr.Wrap(model.ErrJobAlreadyClaimed, "job is not queued",
			goerr.V("id", id), goerr.V("status", job.Status))
	}

	job.Status = types.JobStatusProcessing
	job.UpdatedAt = time.Now().UTC()

	return copyJob(job), nil
}

func (r *jobRepository) Complete(ctx context.Context, id model.JobID, result []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[id]
	if !exists {
		return goerr.Wrap(ErrNotFound, "job not found", goerr.V("id", id))
	}

	if !job.Status.CanTransitionTo(types.JobStatusCompleted) {
		return goerr.Wrap(model.ErrJobInvalidTransition, "cannot complete job",
			goerr.V("id", id), goerr.V("status", job.Status))
	}

	job.Status = types.JobStatusCompleted
	job.Result = append([]byte(nil), result...)
	job.Error = ""
	job.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *jobRepository) Fail(ctx context.Context, id model.JobID, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[id]
	if !exists {
		return goerr.Wrap(ErrNotFound, "job not found", goerr.V("id", id))
	}

	if !job.Status.CanTransitionTo(types.JobStatusFailed) {
		return goerr.Wrap(model.ErrJobInvalidTransition, "cannot fail job",
			goerr.V("id", id), goerr.V("status", job.Status))
	}

	job.Status = types.JobStatusFailed
	job.Error = errMsg
	job.Result = nil
	job.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *jobRepository) ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*model.Job
	for _, j := range r.jobs {
		if j.Status == types.JobStatusProcessing && j.UpdatedAt.Before(olderThan) {
			result = append(result, copyJob(j))
		}
	}

	return result, nil
}
