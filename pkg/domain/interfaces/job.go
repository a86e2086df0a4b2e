package interfaces

import (
	"context"
	"time"

	"github.com/shiori-lab/shiori/pkg/domain/model"
)

// JobRepository defines the interface for Job persistence and carries the job
// state machine. Implementations must make Claim atomic against concurrent
// claimers and reject terminal writes on jobs that are not processing.
type JobRepository interface {
	// Create persists a new job in queued status
	Create(ctx context.Context, job *model.Job) (*model.Job, error)

	// Get retrieves a job by ID
	Get(ctx context.Context, id model.JobID) (*model.Job, error)

	// Claim transitions queued → processing with first-claim-wins semantics.
	// Returns model.ErrJobAlreadyClaimed if the job is not in queued status.
	Claim(ctx context.Context, id model.JobID) (*model.Job, error)

	// Complete transitions processing → completed and stores the result.
	// Returns model.ErrJobInvalidTransition if the job is not processing.
	Complete(ctx context.Context, id model.JobID, result []byte) error

	// Fail transitions processing → failed and stores the error message.
	// Returns model.ErrJobInvalidTransition if the job is not processing.
	Fail(ctx context.Context, id model.JobID, errMsg string) error

	// ListStaleProcessing retrieves jobs stuck in processing whose last
	// update is older than the given time. Used by the abandoned-job sweep.
	ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]*model.Job, error)
}
