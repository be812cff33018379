package organization

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	engine "github.com/clinicsched/scheduler/internal/platform/scheduling"
)

// ExclusionDates lists the holiday dates in [from, to] for a country.
type ExclusionDates interface {
	ExcludedDates(ctx context.Context, country string, from, to engine.Date) ([]engine.Date, error)
}

// Location returns the clinic time zone of the organization. A nil id uses
// the configured default.
func (s *Service) Location(ctx context.Context, orgID uuid.UUID) (*time.Location, error) {
	if orgID == uuid.Nil {
		return s.loadLocation(s.defaults.Timezone)
	}
	o, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("organization %s: %w", orgID, err)
	}
	tz := o.Timezone
	if tz == "" {
		tz = s.defaults.Timezone
	}
	return s.loadLocation(tz)
}

// ExclusionCalendar assembles the organization's blocked weekdays and its
// country's excluding holidays between from and to.
func (s *Service) ExclusionCalendar(ctx context.Context, orgID uuid.UUID, from, to engine.Date) (engine.ExclusionCalendar, error) {
	country := s.defaults.HolidayCountry
	var blocked []engine.Weekday
	if orgID != uuid.Nil {
		o, err := s.orgs.GetByID(ctx, orgID)
		if err != nil {
			return engine.ExclusionCalendar{}, fmt.Errorf("organization %s: %w", orgID, err)
		}
		if o.HolidayCountry != "" {
			country = o.HolidayCountry
		}
		for _, d := range o.BlockedDays {
			w, err := engine.WeekdayFromSundayIndex(d)
			if err != nil {
				return engine.ExclusionCalendar{}, err
			}
			blocked = append(blocked, w)
		}
	}

	holidays, err := s.holidays.ExcludedDates(ctx, country, from, to)
	if err != nil {
		return engine.ExclusionCalendar{}, fmt.Errorf("holidays %s %s..%s: %w", country, from, to, err)
	}
	return engine.NewExclusionCalendar(blocked, holidays), nil
}
