package types

import "fmt"

// RecordKind represents the kind of a stored record
type RecordKind string

const (
	RecordKindMedia RecordKind = "media"
	RecordKindNote  RecordKind = "note"
)

// AllRecordKinds returns all valid record kinds
func AllRecordKinds() []RecordKind {
	return []RecordKind{
		RecordKindMedia,
		RecordKindNote,
	}
}

// IsValid checks if the record kind is valid
func (k RecordKind) IsValid() bool {
	switch k {
	case RecordKindMedia, RecordKindNote:
		return true
	default:
		return false
	}
}

// String returns the string representation of the record kind
func (k RecordKind) String() string {
	return string(k)
}

// ParseRecordKind parses a string into a RecordKind
func ParseRecordKind(s string) (RecordKind, error) {
	kind := RecordKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid record kind: %s", s)
	}
	return kind, nil
}
