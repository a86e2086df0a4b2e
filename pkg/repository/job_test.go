package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/shiori-lab/shiori/pkg/domain/interfaces"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/domain/types"
	"github.com/shiori-lab/shiori/pkg/repository/memory"
)

func newTextJob(t *testing.T, owner string) *model.Job {
	t.Helper()
	job, err := model.NewJob(owner, types.JobKindText, model.TextPayload{
		ChannelID: "C012345",
		Text:      "what was the wifi password?",
	})
	gt.NoError(t, err).Required()
	return job
}

func runJobRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create stores job as queued", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
		created, err := repo.Job().Create(ctx, newTextJob(t, owner))
		gt.NoError(t, err).Required()

		gt.String(t, string(created.ID)).NotEqual("")
		gt.Value(t, created.Status).Equal(types.JobStatusQueued)
		gt.Bool(t, created.CreatedAt.IsZero()).False()
		gt.Bool(t, created.UpdatedAt.IsZero()).False()

		fetched, err := repo.Job().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, fetched.Status).Equal(types.JobStatusQueued)

		payload, err := fetched.TextPayload()
		gt.NoError(t, err).Required()
		gt.Value(t, payload.Text).Equal("what was the wifi password?")
	})

	t.Run("Claim transitions queued to processing", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
		created, err := repo.Job().Create(ctx, newTextJob(t, owner))
		gt.NoError(t, err).Required()

		claimed, err := repo.Job().Claim(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, claimed.Status).Equal(types.JobStatusProcessing)
	})

	t.Run("Claim fails on already claimed job", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
		created, err := repo.Job().Create(ctx, newTextJob(t, owner))
		gt.NoError(t, err).Required()

		_, err = repo.Job().Claim(ctx, created.ID)
		gt.NoError(t, err).Required()

		_, err = repo.Job().Claim(ctx, created.ID)
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, model.ErrJobAlreadyClaimed)).True()
	})

	t.Run("Exactly one of concurrent claimers wins", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
		created, err := repo.Job().Create(ctx, newTextJob(t, owner))
		gt.NoError(t, err).Required()

		const claimers = 8
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < claimers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.Job().Claim(ctx, created.ID); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		gt.Value(t, wins.Load()).Equal(int32(1))
	})

	t.Run("Complete sets result and completed status", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
		created, err := repo.Job().Create(ctx, newTextJob(t, owner))
		gt.NoError(t, err).Required()

		_, err = repo.Job().Claim(ctx, created.ID)
		gt.NoError(t, err).Required()

		result, err := json.Marshal(model.JobResult{Response: "It rotates monthly"})
		gt.NoError(t, err).Required()

		gt.NoError(t, repo.Job().Complete(ctx, created.ID, result)).Required()

		fetched, err := repo.Job().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, fetched.Status).Equal(types.JobStatusCompleted)
		gt.Value(t, fetched.Error).Equal("")

		decoded, err := fetched.DecodeResult()
		gt.NoError(t, err).Required()
		gt.Value(t, decoded.Response).Equal("It rotates monthly")
	})

	t.Run("Fail sets error and failed status", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
		created, err := repo.Job().Create(ctx, newTextJob(t, owner))
		gt.NoError(t, err).Required()

		_, err = repo.Job().Claim(ctx, created.ID)
		gt.NoError(t, err).Required()

		gt.NoError(t, repo.Job().Fail(ctx, created.ID, "ocr provider unreachable")).Required()

		fetched, err := repo.Job().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, fetched.Status).Equal(types.JobStatusFailed)
		gt.Value(t, fetched.Error).Equal("ocr provider unreachable")
		gt.Array(t, fetched.Result).Length(0)
	})

	t.Run("Complete rejects queued job", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
		created, err := repo.Job().Create(ctx, newTextJob(t, owner))
		gt.NoError(t, err).Required()

		err = repo.Job().Complete(ctx, created.ID, nil)
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, model.ErrJobInvalidTransition)).True()
	})

	t.Run("Terminal status is immutable", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
		created, err := repo.Job().Create(ctx, newTextJob(t, owner))
		gt.NoError(t, err).Required()

		_, err = repo.Job().Claim(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Job().Complete(ctx, created.ID, nil)).Required()

		err = repo.Job().Fail(ctx, created.ID, "too late")
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, model.ErrJobInvalidTransition)).True()

		err = repo.Job().Complete(ctx, created.ID, nil)
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, model.ErrJobInvalidTransition)).True()
	})

	t.Run("ListStaleProcessing returns only old processing jobs", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())

		stale, err := repo.Job().Create(ctx, newTextJob(t, owner))
		gt.NoError(t, err).Required()
		_, err = repo.Job().Claim(ctx, stale.ID)
		gt.NoError(t, err).Required()

		// queued job must not show up even if old
		_, err = repo.Job().Create(ctx, newTextJob(t, owner))
		gt.NoError(t, err).Required()

		time.Sleep(20 * time.Millisecond)
		cutoff := time.Now().UTC()

		fresh, err := repo.Job().Create(ctx, newTextJob(t, owner))
		gt.NoError(t, err).Required()
		_, err = repo.Job().Claim(ctx, fresh.ID)
		gt.NoError(t, err).Required()

		jobs, err := repo.Job().ListStaleProcessing(ctx, cutoff)
		gt.NoError(t, err).Required()

		found := false
		for _, j := range jobs {
			gt.Value(t, j.Status).Equal(types.JobStatusProcessing)
			gt.Bool(t, j.UpdatedAt.Before(cutoff)).True()
			if j.ID == stale.ID {
				found = true
			}
			gt.Bool(t, j.ID == fresh.ID).False()
		}
		gt.Bool(t, found).True()
	})
}

func TestMemoryJobRepository(t *testing.T) {
	runJobRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New()
	})
}

func TestFirestoreJobRepository(t *testing.T) {
	runJobRepositoryTest(t, newFirestoreRecordRepository)
}
