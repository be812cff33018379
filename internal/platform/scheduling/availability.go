package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Block is one availability calendar entry of a provider. Entries may overlap
// each other; an open block can contain a blocked sub-range.
type Block struct {
	Interval
	Blocked bool
}

// AvailabilityLookup returns a provider's availability entries that overlap
// window. With blockedOnly set only is_blocked entries are returned.
// Implementations may return extra rows; the validator re-checks overlap.
type AvailabilityLookup interface {
	OverlappingAvailability(ctx context.Context, providerID uuid.UUID, window Interval, blockedOnly bool) ([]Block, error)
}

// Validator answers coverage and blocked-time questions about a provider's
// availability calendar.
type Validator struct {
	lookup AvailabilityLookup
}

func NewValidator(lookup AvailabilityLookup) *Validator {
	return &Validator{lookup: lookup}
}

// HasAnyCoverage reports whether at least one availability entry of the
// provider, blocked or not, overlaps window.
func (v *Validator) HasAnyCoverage(ctx context.Context, providerID uuid.UUID, window Interval) (bool, error) {
	return v.anyOverlap(ctx, providerID, window, false)
}

// HasBlockingConflict reports whether a blocked availability entry of the
// provider overlaps window.
func (v *Validator) HasBlockingConflict(ctx context.Context, providerID uuid.UUID, window Interval) (bool, error) {
	return v.anyOverlap(ctx, providerID, window, true)
}

func (v *Validator) anyOverlap(ctx context.Context, providerID uuid.UUID, window Interval, blockedOnly bool) (bool, error) {
	blocks, err := v.lookup.OverlappingAvailability(ctx, providerID, window, blockedOnly)
	if err != nil {
		return false, fmt.Errorf("query availability for provider %s: %w", providerID, err)
	}
	for _, b := range blocks {
		if blockedOnly && !b.Blocked {
			continue
		}
		if b.Overlaps(window) {
			return true, nil
		}
	}
	return false, nil
}

// Provider identifies the provider an appointment is checked against.
type Provider struct {
	ID   uuid.UUID
	Name string
}

// ConflictReport carries both answers for one window.
type ConflictReport struct {
	HasCoverage         bool `json:"has_coverage"`
	HasBlockingConflict bool `json:"has_blocking_conflict"`
}

// Inspect answers both questions for window.
func (v *Validator) Inspect(ctx context.Context, providerID uuid.UUID, window Interval) (ConflictReport, error) {
	var rep ConflictReport
	var err error
	if rep.HasCoverage, err = v.HasAnyCoverage(ctx, providerID, window); err != nil {
		return rep, err
	}
	if !rep.HasCoverage {
		return rep, nil
	}
	rep.HasBlockingConflict, err = v.HasBlockingConflict(ctx, providerID, window)
	return rep, err
}

// CheckAppointment applies the booking policy: a window with no coverage is
// rejected with NoCoverageError, a covered window that touches blocked time
// with BlockedTimeError, anything else is accepted.
func (v *Validator) CheckAppointment(ctx context.Context, p Provider, window Interval) error {
	if err := window.Validate(); err != nil {
		return err
	}
	rep, err := v.Inspect(ctx, p.ID, window)
	if err != nil {
		return err
	}
	if !rep.HasCoverage {
		return &NoCoverageError{ProviderName: p.Name, Date: DateOf(window.Start)}
	}
	if rep.HasBlockingConflict {
		return &BlockedTimeError{}
	}
	return nil
}
