package organization

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("organization not found")

// Organization maps to the organization table. BlockedDays uses
// Sunday=0..Saturday=6.
type Organization struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Timezone       string    `db:"timezone" json:"timezone"`
	HolidayCountry string    `db:"holiday_country" json:"holiday_country"`
	BlockedDays    []int     `db:"blocked_days" json:"blocked_days"`
	Phone          *string   `db:"phone" json:"phone,omitempty"`
	Email          *string   `db:"email" json:"email,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

type CreateRequest struct {
	Name           string `json:"name" validate:"required,max=200"`
	Timezone       string `json:"timezone" validate:"omitempty,timezone"`
	HolidayCountry string `json:"holiday_country" validate:"omitempty,iso3166_1_alpha2"`
	BlockedDays    []int  `json:"blocked_days" validate:"omitempty,dive,min=0,max=6"`
	Phone          string `json:"phone" validate:"omitempty,e164"`
	Email          string `json:"email" validate:"omitempty,email"`
}

type BlockedDaysRequest struct {
	BlockedDays []int `json:"blocked_days" validate:"dive,min=0,max=6"`
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
