package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/shiori-lab/shiori/pkg/domain/interfaces"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/domain/types"
	"github.com/shiori-lab/shiori/pkg/repository/firestore"
	"github.com/shiori-lab/shiori/pkg/repository/memory"
)

func testEmbedding(seed float32) []float32 {
	emb := make([]float32, model.EmbeddingDimension)
	for i := range emb {
		emb[i] = seed
	}
	emb[0] = 1
	return emb
}

func runRecordRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create creates record with UUID", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
		record := &model.Record{
			Owner:     owner,
			Kind:      types.RecordKindNote,
			RawText:   "The deployment window is every Tuesday morning",
			Embedding: testEmbedding(0.1),
			Metadata:  map[string]string{"channel": "C012345"},
		}

		created, err := repo.Record().Create(ctx, record)
		gt.NoError(t, err).Required()

		gt.String(t, string(created.ID)).NotEqual("")
		gt.Value(t, created.Owner).Equal(owner)
		gt.Value(t, created.Kind).Equal(types.RecordKindNote)
		gt.Value(t, created.RawText).Equal("The deployment window is every Tuesday morning")
		gt.Array(t, created.Embedding).Length(model.EmbeddingDimension)
		gt.Value(t, created.Metadata["channel"]).Equal("C012345")
		gt.Bool(t, created.CreatedAt.IsZero()).False()
	})

	t.Run("Create rejects invalid embedding dimension", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
		_, err := repo.Record().Create(ctx, &model.Record{
			Owner:     owner,
			Kind:      types.RecordKindNote,
			RawText:   "Bad embedding",
			Embedding: []float32{0.1, 0.2, 0.3},
		})
		gt.Value(t, err).NotNil()
	})

	t.Run("Create allows media record without embedding", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
		created, err := repo.Record().Create(ctx, &model.Record{
			Owner:      owner,
			Kind:       types.RecordKindMedia,
			SourceRefs: []string{"media/abc123.png"},
		})
		gt.NoError(t, err).Required()
		gt.Array(t, created.Embedding).Length(0)
	})

	t.Run("Get retrieves existing record", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
		created, err := repo.Record().Create(ctx, &model.Record{
			Owner:     owner,
			Kind:      types.RecordKindNote,
			RawText:   "Office wifi password rotates monthly",
			Embedding: testEmbedding(0.2),
		})
		gt.NoError(t, err).Required()

		retrieved, err := repo.Record().Get(ctx, owner, created.ID)
		gt.NoError(t, err).Required()

		gt.Value(t, retrieved.ID).Equal(created.ID)
		gt.Value(t, retrieved.RawText).Equal("Office wifi password rotates monthly")
		gt.Array(t, retrieved.Embedding).Length(model.EmbeddingDimension)
	})

	t.Run("Get does not cross owner boundaries", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
		created, err := repo.Record().Create(ctx, &model.Record{
			Owner:   owner,
			Kind:    types.RecordKindNote,
			RawText: "Private note",
		})
		gt.NoError(t, err).Required()

		_, err = repo.Record().Get(ctx, "someone-else", created.ID)
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, memory.ErrNotFound) || errors.Is(err, firestore.ErrNotFound)).True()
	})

	t.Run("Get returns error for non-existent record", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Record().Get(ctx, "anyone", model.NewRecordID())
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, memory.ErrNotFound) || errors.Is(err, firestore.ErrNotFound)).True()
	})

	t.Run("ListByOwner returns records sorted by CreatedAt descending", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())

		r1, err := repo.Record().Create(ctx, &model.Record{
			Owner: owner, Kind: types.RecordKindNote, RawText: "First note",
		})
		gt.NoError(t, err).Required()
		time.Sleep(10 * time.Millisecond)

		r2, err := repo.Record().Create(ctx, &model.Record{
			Owner: owner, Kind: types.RecordKindNote, RawText: "Second note",
		})
		gt.NoError(t, err).Required()
		time.Sleep(10 * time.Millisecond)

		r3, err := repo.Record().Create(ctx, &model.Record{
			Owner: owner, Kind: types.RecordKindNote, RawText: "Third note",
		})
		gt.NoError(t, err).Required()

		records, err := repo.Record().ListByOwner(ctx, owner, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(3)

		// Newest first
		gt.Value(t, records[0].ID).Equal(r3.ID)
		gt.Value(t, records[1].ID).Equal(r2.ID)
		gt.Value(t, records[2].ID).Equal(r1.ID)
	})

	t.Run("ListByOwner respects limit and isolates owners", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
		other := owner + "-other"

		for i := 0; i < 5; i++ {
			_, err := repo.Record().Create(ctx, &model.Record{
				Owner: owner, Kind: types.RecordKindNote, RawText: fmt.Sprintf("Note %d", i),
			})
			gt.NoError(t, err).Required()
			time.Sleep(5 * time.Millisecond)
		}
		_, err := repo.Record().Create(ctx, &model.Record{
			Owner: other, Kind: types.RecordKindNote, RawText: "Other owner note",
		})
		gt.NoError(t, err).Required()

		records, err := repo.Record().ListByOwner(ctx, owner, 2)
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(2)
		gt.Value(t, records[0].Owner).Equal(owner)
		gt.Value(t, records[1].Owner).Equal(owner)
	})

	t.Run("FindByEmbedding ranks by similarity and skips records without embeddings", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())

		// near: almost parallel to the query vector, far: mostly orthogonal
		near := testEmbedding(0.9)
		far := testEmbedding(0.0)
		query := testEmbedding(1.0)

		_, err := repo.Record().Create(ctx, &model.Record{
			Owner: owner, Kind: types.RecordKindNote, RawText: "Far note", Embedding: far,
		})
		gt.NoError(t, err).Required()

		closest, err := repo.Record().Create(ctx, &model.Record{
			Owner: owner, Kind: types.RecordKindNote, RawText: "Close note", Embedding: near,
		})
		gt.NoError(t, err).Required()

		// No embedding: must never appear in similarity results
		_, err = repo.Record().Create(ctx, &model.Record{
			Owner: owner, Kind: types.RecordKindMedia, SourceRefs: []string{"media/no-text.png"},
		})
		gt.NoError(t, err).Required()

		results, err := repo.Record().FindByEmbedding(ctx, owner, query, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(2)
		gt.Value(t, results[0].ID).Equal(closest.ID)
		for _, r := range results {
			gt.Bool(t, len(r.Embedding) > 0).True()
		}
	})

	t.Run("FindByEmbedding isolates owners", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
		other := owner + "-other"

		_, err := repo.Record().Create(ctx, &model.Record{
			Owner: other, Kind: types.RecordKindNote, RawText: "Other owner note", Embedding: testEmbedding(0.5),
		})
		gt.NoError(t, err).Required()

		results, err := repo.Record().FindByEmbedding(ctx, owner, testEmbedding(0.5), 10)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(0)
	})
}

func newFirestoreRecordRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	repo, err := firestore.New(ctx, projectID, databaseID)
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})
	return repo
}

func TestMemoryRecordRepository(t *testing.T) {
	runRecordRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New()
	})
}

func TestFirestoreRecordRepository(t *testing.T) {
	runRecordRepositoryTest(t, newFirestoreRecordRepository)
}
