package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/types"
)

// TurnID is a UUID-based identifier for ConversationTurn
type TurnID string

// NewTurnID generates a new UUID v4 TurnID
func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

// ConversationTurn is one message exchanged with a user. Turns are appended
// exactly once and never mutated; ordering by CreatedAt is the canonical
// conversation order per owner.
type ConversationTurn struct {
	ID            TurnID
	Owner         string
	Direction     types.Direction
	Role          types.Role
	Content       string
	CorrelationID string // external message ID from the transport, if any
	CreatedAt     time.Time
}

// Validate checks the turn invariants
func (t *ConversationTurn) Validate() error {
	if t.Owner == "" {
		return goerr.New("turn owner is required")
	}
	if !t.Direction.IsValid() {
		return goerr.New("invalid turn direction", goerr.V("direction", t.Direction))
	}
	if !t.Role.IsValid() {
		return goerr.New("invalid turn role", goerr.V("role", t.Role))
	}
	return nil
}
