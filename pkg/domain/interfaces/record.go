package interfaces

import (
	"context"

	"github.com/shiori-lab/shiori/pkg/domain/model"
)

// RecordRepository defines the interface for Record data persistence.
// Records are insert-only; the core never updates or deletes them.
type RecordRepository interface {
	// Create persists a new record and returns it with ID and timestamps set
	Create(ctx context.Context, record *model.Record) (*model.Record, error)

	// Get retrieves a record by ID within an owner scope
	Get(ctx context.Context, owner string, id model.RecordID) (*model.Record, error)

	// ListByOwner retrieves the most recent records for an owner,
	// ordered by creation time descending
	ListByOwner(ctx context.Context, owner string, limit int) ([]*model.Record, error)

	// FindByEmbedding performs vector similarity search scoped to an owner.
	// Results are ordered by cosine similarity descending; records without an
	// embedding are never returned.
	FindByEmbedding(ctx context.Context, owner string, embedding []float32, limit int) ([]*model.Record, error)
}
