package types

import "fmt"

// Intent represents the classified purpose of an inbound text turn
type Intent string

const (
	IntentSave     Intent = "save"
	IntentQuestion Intent = "question"
)

// IsValid checks if the intent is valid
func (i Intent) IsValid() bool {
	switch i {
	case IntentSave, IntentQuestion:
		return true
	default:
		return false
	}
}

// String returns the string representation of the intent
func (i Intent) String() string {
	return string(i)
}

// ParseIntent parses a string into an Intent
func ParseIntent(s string) (Intent, error) {
	intent := Intent(s)
	if !intent.IsValid() {
		return "", fmt.Errorf("invalid intent: %s", s)
	}
	return intent, nil
}
