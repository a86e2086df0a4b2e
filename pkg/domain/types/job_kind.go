package types

import "fmt"

// JobKind represents the kind of work a job carries
type JobKind string

const (
	JobKindMedia JobKind = "media"
	JobKindText  JobKind = "text"
)

// AllJobKinds returns all valid job kinds
func AllJobKinds() []JobKind {
	return []JobKind{
		JobKindMedia,
		JobKindText,
	}
}

// IsValid checks if the job kind is valid
func (k JobKind) IsValid() bool {
	switch k {
	case JobKindMedia, JobKindText:
		return true
	default:
		return false
	}
}

// String returns the string representation of the job kind
func (k JobKind) String() string {
	return string(k)
}

// ParseJobKind parses a string into a JobKind
func ParseJobKind(s string) (JobKind, error) {
	kind := JobKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid job kind: %s", s)
	}
	return kind, nil
}
