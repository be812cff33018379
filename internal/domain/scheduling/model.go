package scheduling

import (
	"time"

	"github.com/google/uuid"

	engine "github.com/clinicsched/scheduler/internal/platform/scheduling"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Appointment maps to the appointment table. Children generated from a
// recurring anchor are ordinary rows with Frequency none.
type Appointment struct {
	ID                uuid.UUID         `db:"id" json:"id"`
	OrganizationID    uuid.UUID         `db:"organization_id" json:"organization_id"`
	ProviderID        uuid.UUID         `db:"provider_id" json:"provider_id"`
	PatientID         uuid.UUID         `db:"patient_id" json:"patient_id"`
	Title             string            `db:"title" json:"title"`
	Notes             *string           `db:"notes" json:"notes,omitempty"`
	StartTime         time.Time         `db:"start_time" json:"start_time"`
	EndTime           time.Time         `db:"end_time" json:"end_time"`
	Status            AppointmentStatus `db:"status" json:"status"`
	Frequency         engine.Frequency  `db:"frequency" json:"frequency"`
	RecurrenceEndDate *engine.Date      `db:"recurrence_end_date" json:"recurrence_end_date,omitempty"`
	ReminderSentAt    *time.Time        `db:"reminder_sent_at" json:"reminder_sent_at,omitempty"`
	CreatedBy         *string           `db:"created_by" json:"created_by,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

func (a *Appointment) Window() engine.Interval {
	return engine.Interval{Start: a.StartTime, End: a.EndTime}
}

// AppointmentIdentity is what makes two appointments the same booking for
// duplicate detection, together with the exact window.
type AppointmentIdentity struct {
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	Title      string
}

func (a *Appointment) Identity() AppointmentIdentity {
	return AppointmentIdentity{ProviderID: a.ProviderID, PatientID: a.PatientID, Title: a.Title}
}

// AvailabilityBlock maps to the availability_block table. A blocked entry
// marks time the provider cannot be booked even when an open entry covers it.
type AvailabilityBlock struct {
	ID                uuid.UUID        `db:"id" json:"id"`
	OrganizationID    uuid.UUID        `db:"organization_id" json:"organization_id"`
	ProviderID        uuid.UUID        `db:"provider_id" json:"provider_id"`
	StartTime         time.Time        `db:"start_time" json:"start_time"`
	EndTime           time.Time        `db:"end_time" json:"end_time"`
	IsBlocked         bool             `db:"is_blocked" json:"is_blocked"`
	BlockType         *string          `db:"block_type" json:"block_type,omitempty"`
	Notes             *string          `db:"notes" json:"notes,omitempty"`
	Frequency         engine.Frequency `db:"frequency" json:"frequency"`
	RecurrenceEndDate *engine.Date     `db:"recurrence_end_date" json:"recurrence_end_date,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

func (b *AvailabilityBlock) Window() engine.Interval {
	return engine.Interval{Start: b.StartTime, End: b.EndTime}
}

// AvailabilityIdentity is the duplicate key of an availability entry,
// together with the exact window.
type AvailabilityIdentity struct {
	ProviderID     uuid.UUID
	OrganizationID uuid.UUID
	IsBlocked      bool
}

func (b *AvailabilityBlock) Identity() AvailabilityIdentity {
	return AvailabilityIdentity{ProviderID: b.ProviderID, OrganizationID: b.OrganizationID, IsBlocked: b.IsBlocked}
}

// -- Filters --

type AppointmentFilter struct {
	OrganizationID uuid.UUID
	ProviderID     uuid.UUID
	PatientID      uuid.UUID
	Status         AppointmentStatus
	From           *time.Time
	To             *time.Time
}

type AvailabilityFilter struct {
	OrganizationID uuid.UUID
	ProviderID     uuid.UUID
	BlockedOnly    bool
	From           *time.Time
	To             *time.Time
}

// -- Requests --

type RecurrenceRequest struct {
	Frequency string       `json:"frequency" validate:"required,oneof=none daily weekly monthly"`
	EndDate   *engine.Date `json:"end_date,omitempty"`
}

func (r *RecurrenceRequest) Rule() engine.Rule {
	if r == nil {
		return engine.Rule{Frequency: engine.FrequencyNone}
	}
	return engine.Rule{Frequency: engine.Frequency(r.Frequency), EndDate: r.EndDate}
}

type CreateAppointmentRequest struct {
	ProviderID string             `json:"provider_id" validate:"required,uuid"`
	PatientID  string             `json:"patient_id" validate:"required,uuid"`
	Title      string             `json:"title" validate:"required,max=200"`
	Notes      string             `json:"notes" validate:"max=2000"`
	StartTime  time.Time          `json:"start_time" validate:"required"`
	EndTime    time.Time          `json:"end_time" validate:"required,gtfield=StartTime"`
	Recurrence *RecurrenceRequest `json:"recurrence,omitempty"`
}

type CreateAvailabilityRequest struct {
	ProviderID string             `json:"provider_id" validate:"required,uuid"`
	StartTime  time.Time          `json:"start_time" validate:"required"`
	EndTime    time.Time          `json:"end_time" validate:"required,gtfield=StartTime"`
	IsBlocked  bool               `json:"is_blocked"`
	BlockType  string             `json:"block_type" validate:"omitempty,oneof=vacation meeting training personal other"`
	Notes      string             `json:"notes" validate:"max=2000"`
	Recurrence *RecurrenceRequest `json:"recurrence,omitempty"`
}

// -- Results --

// AppointmentResult is the outcome of a booking: the anchor, the children the
// expansion created and how many candidates were skipped, by reason.
type AppointmentResult struct {
	Appointment  *Appointment                   `json:"appointment"`
	Children     []*Appointment                 `json:"children"`
	CreatedCount int                            `json:"created_count"`
	Skipped      map[engine.ExclusionReason]int `json:"skipped,omitempty"`
}

type AvailabilityResult struct {
	Availability *AvailabilityBlock             `json:"availability"`
	Children     []*AvailabilityBlock           `json:"children"`
	CreatedCount int                            `json:"created_count"`
	Skipped      map[engine.ExclusionReason]int `json:"skipped,omitempty"`
}

// Slot is a free grid position returned by slot discovery.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
