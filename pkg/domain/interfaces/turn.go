package interfaces

import (
	"context"

	"github.com/shiori-lab/shiori/pkg/domain/model"
)

// TurnRepository defines the interface for ConversationTurn persistence.
// The log is append-only; turns are never mutated or deleted.
type TurnRepository interface {
	// Append persists a new conversation turn
	Append(ctx context.Context, turn *model.ConversationTurn) (*model.ConversationTurn, error)

	// ListRecent retrieves the most recent turns for an owner,
	// ordered by creation time descending (most recent first)
	ListRecent(ctx context.Context, owner string, limit int) ([]*model.ConversationTurn, error)
}
