package organization

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicsched/scheduler/internal/platform/validation"
)

// HolidaySource answers which country holiday rules exist and which dates
// they exclude.
type HolidaySource interface {
	Supports(country string) bool
	ExclusionDates
}

// Defaults fill organization settings left empty on creation.
type Defaults struct {
	Timezone       string
	HolidayCountry string
}

type Service struct {
	orgs     Repository
	holidays HolidaySource
	defaults Defaults
	logger   zerolog.Logger

	locMu sync.RWMutex
	locs  map[string]*time.Location
}

func NewService(orgs Repository, holidays HolidaySource, defaults Defaults, logger zerolog.Logger) *Service {
	if defaults.Timezone == "" {
		defaults.Timezone = "UTC"
	}
	return &Service{
		orgs:     orgs,
		holidays: holidays,
		defaults: defaults,
		logger:   logger,
		locs:     make(map[string]*time.Location),
	}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Organization, error) {
	o := &Organization{
		Name:           req.Name,
		Timezone:       req.Timezone,
		HolidayCountry: strings.ToUpper(req.HolidayCountry),
		Phone:          strPtr(req.Phone),
		Email:          strPtr(req.Email),
	}
	if o.Timezone == "" {
		o.Timezone = s.defaults.Timezone
	}
	if o.HolidayCountry == "" {
		o.HolidayCountry = strings.ToUpper(s.defaults.HolidayCountry)
	}
	if _, err := s.loadLocation(o.Timezone); err != nil {
		return nil, validation.Field("timezone", "unknown time zone "+o.Timezone)
	}
	if o.HolidayCountry != "" && !s.holidays.Supports(o.HolidayCountry) {
		return nil, validation.Field("holiday_country", "no holiday rules for "+o.HolidayCountry)
	}
	days, err := normalizeDays(req.BlockedDays)
	if err != nil {
		return nil, err
	}
	o.BlockedDays = days

	if err := s.orgs.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}
	s.logger.Info().Str("organization_id", o.ID.String()).Str("timezone", o.Timezone).Msg("organization created")
	return o, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return s.orgs.GetByID(ctx, id)
}

// Exists reports whether an organization with id is on file.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.orgs.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Organization, int, error) {
	return s.orgs.List(ctx, limit, offset)
}

// SetBlockedDays replaces the weekdays on which recurring series skip
// occurrences. Existing records are not touched.
func (s *Service) SetBlockedDays(ctx context.Context, id uuid.UUID, days []int) (*Organization, error) {
	norm, err := normalizeDays(days)
	if err != nil {
		return nil, err
	}
	if err := s.orgs.UpdateBlockedDays(ctx, id, norm); err != nil {
		return nil, err
	}
	s.logger.Info().Str("organization_id", id.String()).Ints("blocked_days", norm).Msg("blocked days updated")
	return s.orgs.GetByID(ctx, id)
}

// normalizeDays sorts and de-duplicates Sunday=0 weekday numbers.
func normalizeDays(days []int) ([]int, error) {
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return nil, validation.Field("blocked_days", "days must be between 0 (Sunday) and 6 (Saturday)")
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (s *Service) loadLocation(name string) (*time.Location, error) {
	s.locMu.RLock()
	loc, ok := s.locs[name]
	s.locMu.RUnlock()
	if ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	s.locMu.Lock()
	s.locs[name] = loc
	s.locMu.Unlock()
	return loc, nil
}
