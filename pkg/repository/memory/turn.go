package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/model"
)

type turnRepository struct {
	mu    sync.RWMutex
	turns map[model.TurnID]*model.ConversationTurn
	seq   int64
}

func newTurnRepository() *turnRepository {
	return &turnRepository{
		turns: make(map[model.TurnID]*model.ConversationTurn),
	}
}

func copyTurn(t *model.ConversationTurn) *model.ConversationTurn {
	copied := *t
	return &copied
}

func (r *turnRepository) Append(ctx context.Context, turn *model.ConversationTurn) (*model.ConversationTurn, error) {
	if err := turn.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid conversation turn")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	created := copyTurn(turn)
	if created.ID == "" {
		created.ID = model.NewTurnID()
	}
	// Monotonic nanosecond offset keeps ordering stable when several turns
	// are appended within the same wall-clock tick.
	r.seq++
	created.CreatedAt = time.Now().UTC().Add(time.Duration(r.seq) * time.Nanosecond)

	r.turns[created.ID] = created
	return copyTurn(created), nil
}

func (r *turnRepository) ListRecent(ctx context.Context, owner string, limit int) ([]*model.ConversationTurn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.ConversationTurn
	for _, t := range r.turns {
		if t.Owner == owner {
			result = append(result, copyTurn(t))
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
