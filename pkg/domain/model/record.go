package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/types"
)

// EmbeddingDimension is the dimension of the embedding vector.
// Gemini text-embedding-004 uses 768 dimensions.
const EmbeddingDimension = 768

// RecordID is a UUID-based identifier for Record
type RecordID string

// NewRecordID generates a new UUID v4 RecordID
func NewRecordID() RecordID {
	return RecordID(uuid.New().String())
}

// Record is a stored unit of user knowledge: OCR text extracted from a
// photographed document, or a free-text note the user asked to remember.
// Records are immutable after creation except for metadata enrichment.
type Record struct {
	ID         RecordID
	Owner      string // opaque user scope key; all reads are partitioned by it
	Kind       types.RecordKind
	RawText    string
	SourceRefs []string // object storage locators; empty for notes
	Embedding  []float32
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Validate checks the record invariants:
// an embedding is either absent or exactly EmbeddingDimension wide,
// a media record has at least one source reference,
// and a note record has non-empty raw text.
func (r *Record) Validate() error {
	if r.Owner == "" {
		return goerr.New("record owner is required")
	}
	if !r.Kind.IsValid() {
		return goerr.New("invalid record kind", goerr.V("kind", r.Kind))
	}
	if len(r.Embedding) != 0 && len(r.Embedding) != EmbeddingDimension {
		return goerr.New("embedding dimension mismatch",
			goerr.V("got", len(r.Embedding)),
			goerr.V("want", EmbeddingDimension))
	}
	switch r.Kind {
	case types.RecordKindMedia:
		if len(r.SourceRefs) == 0 {
			return goerr.New("media record requires at least one source reference")
		}
	case types.RecordKindNote:
		if r.RawText == "" {
			return goerr.New("note record requires non-empty raw text")
		}
	}
	return nil
}
