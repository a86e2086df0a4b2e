package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/interfaces"
	"github.com/shiori-lab/shiori/pkg/domain/model"
)

const (
	// DefaultLimit is used when the caller does not ask for a specific count
	DefaultLimit = 5
	// MaxLimit caps how many records one search may return
	MaxLimit = 20
)

// Engine ranks a user's records against a query embedding. Results are
// ordered by cosine similarity descending; equal scores break toward the
// newer record. Records without an embedding never appear.
type Engine struct {
	repo interfaces.Repository
}

func New(repo interfaces.Repository) *Engine {
	return &Engine{repo: repo}
}

// ClampLimit normalizes a requested result count into [1, MaxLimit]
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func (e *Engine) Search(ctx context.Context, owner string, queryEmbedding []float32, limit int) ([]*model.Record, error) {
	if owner == "" {
		return nil, goerr.New("owner is required")
	}
	if len(queryEmbedding) == 0 {
		return nil, goerr.New("query embedding is required")
	}

	limit = ClampLimit(limit)

	candidates, err := e.repo.Record().FindByEmbedding(ctx, owner, queryEmbedding, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search records by embedding", goerr.V("owner", owner))
	}

	// Backends return nearest-first but leave ties unspecified, so the
	// ordering contract is enforced here.
	type scored struct {
		record *model.Record
		score  float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, r := range candidates {
		if len(r.Embedding) == 0 {
			continue
		}
		ranked = append(ranked, scored{record: r, score: CosineSimilarity(queryEmbedding, r.Embedding)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].record.CreatedAt.After(ranked[j].record.CreatedAt)
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	results := make([]*model.Record, len(ranked))
	for i, s := range ranked {
		results[i] = s.record
	}

	return results, nil
}

// CosineSimilarity computes cosine similarity between two vectors.
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
