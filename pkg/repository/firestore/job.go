package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type jobDoc struct {
	ID        model.JobID `firestore:"ID"`
	Owner     string      `firestore:"Owner"`
	Kind      string      `firestore:"Kind"`
	Payload   []byte      `firestore:"Payload"`
	Status    string      `firestore:"Status"`
	Result    []byte      `firestore:"Result"`
	Error     string      `firestore:"Error"`
	CreatedAt time.Time   `firestore:"CreatedAt"`
	UpdatedAt time.Time   `firestore:"UpdatedAt"`
}

func toJobDoc(j *model.Job) *jobDoc {
	return &jobDoc{
		ID:        j.ID,
		Owner:     j.Owner,
		Kind:      j.Kind.String(),
		Payload:   j.Payload,
		Status:    j.Status.String(),
		Result:    j.Result,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

func fromJobDoc(d *jobDoc) *model.Job {
	return &model.Job{
		ID:        d.ID,
		Owner:     d.Owner,
		Kind:      types.JobKind(d.Kind),
		Payload:   d.Payload,
		Status:    types.JobStatus(d.Status),
		Result:    d.Result,
		Error:     d.Error,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type jobRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newJobRepository(client *firestore.Client) *jobRepository {
	return &jobRepository{client: client}
}

func (r *jobRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "jobs")
}

func (r *jobRepository) Create(ctx context.Context, job *model.Job) (*model.Job, error) {
	now := time.Now().UTC()
	created := *job
	if created.ID == "" {
		created.ID = model.NewJobID()
	}
	created.Status = types.JobStatusQueued
	created.CreatedAt = now
	created.UpdatedAt = now

	docRef := r.collection().Doc(string(created.ID))
	if _, err := docRef.Set(ctx, toJobDoc(&created)); err != nil {
		return nil, goerr.Wrap(err, "failed to create job")
	}

	return &created, nil
}

func (r *jobRepository) Get(ctx context.Context, id model.JobID) (*model.Job, error) {
	doc, err := r.collection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "job not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get job", goerr.V("id", id))
	}

	var d jobDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal job", goerr.V("id", id))
	}

	return fromJobDoc(&d), nil
}

// Claim transitions queued → processing inside a transaction so that exactly
// one of any number of concurrent claimers wins.
func (r *jobRepository) Claim(ctx context.Context, id model.JobID) (*model.Job, error) {
	docRef := r.collection().Doc(string(id))

	var claimed *model.Job
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "job not found", goerr.V("id", id))
			}
			return goerr.Wrap(err, "failed to get job", goerr.V("id", id))
		}

		var d jobDoc
		if err := doc.DataTo(&d); err != nil {
			return goerr.Wrap(err, "failed to unmarshal job", goerr.V("id", id))
		}

		if types.JobStatus(d.Status) != types.JobStatusQueued {
			return goerr.Wrap(model.ErrJobAlreadyClaimed, "job is not queued",
				goerr.V("id", id), goerr.V("status", d.Status))
		}

		now := time.Now().UTC()
		if err := tx.Update(docRef, []firestore.Update{
			{Path: "Status", Value: types.JobStatusProcessing.String()},
			{Path: "UpdatedAt", Value: now},
		}); err != nil {
			return goerr.Wrap(err, "failed to claim job", goerr.V("id", id))
		}

		d.Status = types.JobStatusProcessing.String()
		d.UpdatedAt = now
		claimed = fromJobDoc(&d)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// terminalUpdate applies a processing → terminal transition inside a transaction
func (r *jobRepository) terminalUpdate(ctx context.Context, id model.JobID, next types.JobStatus, updates []firestore.Update) error {
	docRef := r.collection().Doc(string(id))

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "job not found", goerr.V("id", id))
			}
			return goerr.Wrap(err, "failed to get job", goerr.V("id", id))
		}

		var d jobDoc
		if err := doc.DataTo(&d); err != nil {
			return goerr.Wrap(err, "failed to unmarshal job", goerr.V("id", id))
		}

		if !types.JobStatus(d.Status).CanTransitionTo(next) {
			return goerr.Wrap(model.ErrJobInvalidTransition, "illegal status transition",
				goerr.V("id", id), goerr.V("from", d.Status), goerr.V("to", next))
		}

		updates = append(updates,
			firestore.Update{Path: "Status", Value: next.String()},
			firestore.Update{Path: "UpdatedAt", Value: time.Now().UTC()},
		)
		if err := tx.Update(docRef, updates); err != nil {
			return goerr.Wrap(err, "failed to update job", goerr.V("id", id))
		}
		return nil
	})
}

func (r *jobRepository) Complete(ctx context.Context, id model.JobID, result []byte) error {
	return r.terminalUpdate(ctx, id, types.JobStatusCompleted, []firestore.Update{
		{Path: "Result", Value: result},
		{Path: "Error", Value: ""},
	})
}

func (r *jobRepository) Fail(ctx context.Context, id model.JobID, errMsg string) error {
	return r.terminalUpdate(ctx, id, types.JobStatusFailed, []firestore.Update{
		{Path: "Error", Value: errMsg},
		{Path: "Result", Value: []byte(nil)},
	})
}

func (r *jobRepository) ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]*model.Job, error) {
	iter := r.collection().
		Where("Status", "==", types.JobStatusProcessing.String()).
		Where("UpdatedAt", "<", olderThan).
		Documents(ctx)
	defer iter.Stop()

	jobs := make([]*model.Job, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate stale jobs")
		}

		var d jobDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal job")
		}
		jobs = append(jobs, fromJobDoc(&d))
	}

	return jobs, nil
}
