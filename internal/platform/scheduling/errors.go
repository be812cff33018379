package scheduling

import (
	"fmt"
)

// NoCoverageError rejects an appointment whose window overlaps no availability
// entry for the provider.
type NoCoverageError struct {
	ProviderName string
	Date         Date
}

func (e *NoCoverageError) Error() string {
	name := e.ProviderName
	if name == "" {
		name = "The provider"
	}
	return fmt.Sprintf("%s is not scheduled to see patients on %s. Please choose another time.", name, e.Date)
}

// BlockedTimeError rejects an appointment whose window overlaps blocked
// availability. The message never says why the time is blocked.
type BlockedTimeError struct{}

func (e *BlockedTimeError) Error() string {
	return "The requested time is not available. Please choose another time."
}

// InvalidRecurrenceError is a field-level validation failure of a recurrence
// rule, raised before anything is persisted.
type InvalidRecurrenceError struct {
	Field  string
	Reason string
}

func (e *InvalidRecurrenceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
