package scheduling

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrWindowTaken is returned when storage already holds a live record
	// with the same provider and window as the one being created.
	ErrWindowTaken       = errors.New("the requested time is already booked")
	ErrAlreadyCancelled  = errors.New("appointment is already cancelled")
	ErrInvalidSlotSearch = errors.New("max_results and days must be positive")
)

// ResolutionError reports a provider or patient id that does not resolve to a
// known identity the caller may use. Field names the request field carrying
// the id; it is empty when the id came from the URL.
type ResolutionError struct {
	Kind  string
	ID    uuid.UUID
	Field string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
