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

// recordDoc is the Firestore document representation of model.Record.
// Embedding is stored as firestore.Vector32 so that FindNearest vector search works.
type recordDoc struct {
	ID         model.RecordID     `firestore:"ID"`
	Owner      string             `firestore:"Owner"`
	Kind       string             `firestore:"Kind"`
	RawText    string             `firestore:"RawText"`
	SourceRefs []string           `firestore:"SourceRefs"`
	Embedding  firestore.Vector32 `firestore:"Embedding,omitempty"`
	Metadata   map[string]string  `firestore:"Metadata"`
	CreatedAt  time.Time          `firestore:"CreatedAt"`
}

func toRecordDoc(r *model.Record) *recordDoc {
	doc := &recordDoc{
		ID:         r.ID,
		Owner:      r.Owner,
		Kind:       r.Kind.String(),
		RawText:    r.RawText,
		SourceRefs: r.SourceRefs,
		Metadata:   r.Metadata,
		CreatedAt:  r.CreatedAt,
	}
	if len(r.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(r.Embedding)
	}
	return doc
}

func fromRecordDoc(d *recordDoc) *model.Record {
	r := &model.Record{
		ID:         d.ID,
		Owner:      d.Owner,
		Kind:       types.RecordKind(d.Kind),
		RawText:    d.RawText,
		SourceRefs: d.SourceRefs,
		Metadata:   d.Metadata,
		CreatedAt:  d.CreatedAt,
	}
	if len(d.Embedding) > 0 {
		r.Embedding = []float32(d.Embedding)
	}
	return r
}

func docToRecord(doc *firestore.DocumentSnapshot) (*model.Record, error) {
	var d recordDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, err
	}
	return fromRecordDoc(&d), nil
}

type recordRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newRecordRepository(client *firestore.Client) *recordRepository {
	return &recordRepository{client: client}
}

func (r *recordRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "records")
}

func (r *recordRepository) Create(ctx context.Context, record *model.Record) (*model.Record, error) {
	if err := record.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid record")
	}

	created := *record
	if created.ID == "" {
		created.ID = model.NewRecordID()
	}
	created.CreatedAt = time.Now().UTC()

	docRef := r.collection().Doc(string(created.ID))
	if _, err := docRef.Set(ctx, toRecordDoc(&created)); err != nil {
		return nil, goerr.Wrap(err, "failed to create record")
	}

	return &created, nil
}

func (r *recordRepository) Get(ctx context.Context, owner string, id model.RecordID) (*model.Record, error) {
	doc, err := r.collection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "record not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get record", goerr.V("id", id))
	}

	record, err := docToRecord(doc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal record", goerr.V("id", id))
	}
	if record.Owner != owner {
		return nil, goerr.Wrap(ErrNotFound, "record not found", goerr.V("id", id))
	}

	return record, nil
}

func (r *recordRepository) ListByOwner(ctx context.Context, owner string, limit int) ([]*model.Record, error) {
	query := r.collection().
		Where("Owner", "==", owner).
		OrderBy("CreatedAt", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	records := make([]*model.Record, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate records", goerr.V("owner", owner))
		}

		record, err := docToRecord(doc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal record")
		}
		records = append(records, record)
	}

	return records, nil
}

func (r *recordRepository) FindByEmbedding(ctx context.Context, owner string, embedding []float32, limit int) ([]*model.Record, error) {
	vq := r.collection().
		Where("Owner", "==", owner).
		FindNearest("Embedding", firestore.Vector32(embedding), limit, firestore.DistanceMeasureCosine, nil)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	records := make([]*model.Record, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate vector search results", goerr.V("owner", owner))
		}

		record, err := docToRecord(doc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal record from vector search")
		}
		records = append(records, record)
	}

	return records, nil
}
