package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/model"
)

type recordRepository struct {
	mu      sync.RWMutex
	records map[model.RecordID]*model.Record
}

func newRecordRepository() *recordRepository {
	return &recordRepository{
		records: make(map[model.RecordID]*model.Record),
	}
}

// copyRecord creates a deep copy of a record
func copyRecord(r *model.Record) *model.Record {
	copied := &model.Record{
		ID:        r.ID,
		Owner:     r.Owner,
		Kind:      r.Kind,
		RawText:   r.RawText,
		CreatedAt: r.CreatedAt,
	}

	if r.SourceRefs != nil {
		copied.SourceRefs = make([]string, len(r.SourceRefs))
		copy(copied.SourceRefs, r.SourceRefs)
	}
	if r.Embedding != nil {
		copied.Embedding = make([]float32, len(r.Embedding))
		copy(copied.Embedding, r.Embedding)
	}
	if r.Metadata != nil {
		copied.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			copied.Metadata[k] = v
		}
	}

	return copied
}

func (r *recordRepository) Create(ctx context.Context, record *model.Record) (*model.Record, error) {
	if err := record.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid record")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	created := copyRecord(record)
	if created.ID == "" {
		created.ID = model.NewRecordID()
	}
	created.CreatedAt = time.Now().UTC()

	r.records[created.ID] = created
	return copyRecord(created), nil
}

func (r *recordRepository) Get(ctx context.Context, owner string, id model.RecordID) (*model.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[id]
	if !exists || record.Owner != owner {
		return nil, goerr.Wrap(ErrNotFound, "record not found", goerr.V("id", id))
	}

	return copyRecord(record), nil
}

func (r *recordRepository) ListByOwner(ctx context.Context, owner string, limit int) ([]*model.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Record
	for _, rec := range r.records {
		if rec.Owner == owner {
			result = append(result, copyRecord(rec))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}

	return result, nil
}

func (r *recordRepository) FindByEmbedding(ctx context.Context, owner string, embedding []float32, limit int) ([]*model.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		record *model.Record
		score  float64
	}

	var candidates []scored
	for _, rec := range r.records {
		if rec.Owner != owner || len(rec.Embedding) == 0 {
			continue
		}
		s := cosineSimilarity(embedding, rec.Embedding)
		candidates = append(candidates, scored{record: copyRecord(rec), score: s})
	}

	// Descending score, ties broken by most recent creation first
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].record.CreatedAt.After(candidates[j].record.CreatedAt)
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}

	result := make([]*model.Record, limit)
	for i := 0; i < limit; i++ {
		result[i] = candidates[i].record
	}

	return result, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}
