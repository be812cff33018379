package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// Provider maps to the provider table. Every provider belongs to exactly one
// organization.
type Provider struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name" json:"name"`
	Specialty      *string   `db:"specialty" json:"specialty,omitempty"`
	Email          *string   `db:"email" json:"email,omitempty"`
	Phone          *string   `db:"phone" json:"phone,omitempty"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Patient maps to the patient table. A patient without an organization can
// be booked with any provider.
type Patient struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	OrganizationID *uuid.UUID `db:"organization_id" json:"organization_id,omitempty"`
	Name           string     `db:"name" json:"name"`
	Email          *string    `db:"email" json:"email,omitempty"`
	Phone          *string    `db:"phone" json:"phone,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

type ProviderRequest struct {
	OrganizationID string `json:"organization_id" validate:"omitempty,uuid"`
	Name           string `json:"name" validate:"required,max=200"`
	Specialty      string `json:"specialty" validate:"omitempty,max=100"`
	Email          string `json:"email" validate:"omitempty,email"`
	Phone          string `json:"phone" validate:"omitempty,e164"`
}

type PatientRequest struct {
	OrganizationID string `json:"organization_id" validate:"omitempty,uuid"`
	Name           string `json:"name" validate:"required,max=200"`
	Email          string `json:"email" validate:"omitempty,email"`
	Phone          string `json:"phone" validate:"omitempty,e164"`
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
