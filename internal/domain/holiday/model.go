package holiday

import (
	"errors"
	"time"

	"github.com/google/uuid"

	engine "github.com/clinicsched/scheduler/internal/platform/scheduling"
)

var (
	ErrNotFound       = errors.New("holiday not found")
	ErrUnknownCountry = errors.New("no holiday rules for country")
)

// Holiday maps to the holiday table. A holiday excludes its date from
// recurring series only while it is recognized and not suppressed.
type Holiday struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	Country    string      `db:"country" json:"country"`
	Date       engine.Date `db:"date" json:"date"`
	Name       string      `db:"name" json:"name"`
	Recognized bool        `db:"recognized" json:"recognized"`
	Suppressed bool        `db:"suppressed" json:"suppressed"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
}

// Excludes reports whether the holiday blocks recurring occurrences.
func (h *Holiday) Excludes() bool { return h.Recognized && !h.Suppressed }

// UpdateRequest changes how a seeded holiday is treated. Omitted fields keep
// their value.
type UpdateRequest struct {
	Recognized *bool `json:"recognized"`
	Suppressed *bool `json:"suppressed"`
}
