package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	engine "github.com/clinicsched/scheduler/internal/platform/scheduling"
)

type AppointmentRepository interface {
	// Create stores a new appointment. It returns ErrWindowTaken when a live
	// appointment already holds the provider and window.
	Create(ctx context.Context, a *Appointment) error
	// CreateIfAbsent stores a generated child and reports false when storage
	// rejected it as a duplicate.
	CreateIfAbsent(ctx context.Context, a *Appointment) (bool, error)
	// Exists matches identity and exact window regardless of status, so a
	// cancelled child is never generated again.
	Exists(ctx context.Context, id AppointmentIdentity, window engine.Interval) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error
	// BookedStarts returns start times of live appointments starting inside
	// the window.
	BookedStarts(ctx context.Context, providerID uuid.UUID, window engine.Interval) ([]time.Time, error)
	DueReminders(ctx context.Context, from, to time.Time) ([]*Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

type AvailabilityRepository interface {
	Create(ctx context.Context, b *AvailabilityBlock) error
	CreateIfAbsent(ctx context.Context, b *AvailabilityBlock) (bool, error)
	Exists(ctx context.Context, id AvailabilityIdentity, window engine.Interval) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*AvailabilityBlock, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f AvailabilityFilter, limit, offset int) ([]*AvailabilityBlock, int, error)
	// Overlapping returns the provider's entries overlapping window, only the
	// blocked ones when blockedOnly is set.
	Overlapping(ctx context.Context, providerID uuid.UUID, window engine.Interval, blockedOnly bool) ([]*AvailabilityBlock, error)
}

// ProviderLocker serializes writes to one provider's calendar. fn runs inside
// a transaction that holds the provider's lock.
type ProviderLocker interface {
	WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error
}
