package holiday

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	engine "github.com/clinicsched/scheduler/internal/platform/scheduling"
)

type Service struct {
	repo    Repository
	dataset *Dataset
	logger  zerolog.Logger
}

func NewService(repo Repository, dataset *Dataset, logger zerolog.Logger) *Service {
	return &Service{repo: repo, dataset: dataset, logger: logger}
}

// Supports reports whether holidays can be generated for country.
func (s *Service) Supports(country string) bool {
	return s.dataset.Supports(country)
}

// EnsureYear generates and stores country's holidays for year unless that
// was done before. Admin changes to seeded rows are never overwritten.
func (s *Service) EnsureYear(ctx context.Context, country string, year int) (int, error) {
	country = strings.ToUpper(country)
	seeded, err := s.repo.IsSeeded(ctx, country, year)
	if err != nil {
		return 0, fmt.Errorf("check holiday seed %s/%d: %w", country, year, err)
	}
	if seeded {
		return 0, nil
	}

	occ, err := s.dataset.Generate(country, year)
	if err != nil {
		return 0, err
	}
	rows := make([]*Holiday, 0, len(occ))
	for _, o := range occ {
		rows = append(rows, &Holiday{Country: country, Date: o.Date, Name: o.Name, Recognized: o.Recognized})
	}
	n, err := s.repo.SeedYear(ctx, country, year, rows)
	if err != nil {
		return 0, fmt.Errorf("seed holidays %s/%d: %w", country, year, err)
	}
	s.logger.Info().Str("country", country).Int("year", year).Int("inserted", n).Msg("holidays seeded")
	return n, nil
}

// List returns every stored holiday of country dated in year, seeding the
// year first when needed.
func (s *Service) List(ctx context.Context, country string, year int) ([]*Holiday, error) {
	if _, err := s.EnsureYear(ctx, country, year); err != nil {
		return nil, err
	}
	return s.repo.ListRange(ctx, strings.ToUpper(country), engine.Date{Year: year, Month: time.January, Day: 1},
		engine.Date{Year: year, Month: time.December, Day: 31})
}

// ExcludedDates returns the dates in [from, to] on which recurring series
// must not produce an occurrence for country. An empty country has none.
func (s *Service) ExcludedDates(ctx context.Context, country string, from, to engine.Date) ([]engine.Date, error) {
	if country == "" {
		return nil, nil
	}
	last := to.Year
	// Observed days can move into the previous year (Jan 1 on a Saturday).
	if to.Month == time.December {
		last++
	}
	for y := from.Year; y <= last; y++ {
		if _, err := s.EnsureYear(ctx, country, y); err != nil {
			return nil, err
		}
	}

	hs, err := s.repo.ListRange(ctx, strings.ToUpper(country), from, to)
	if err != nil {
		return nil, err
	}
	out := make([]engine.Date, 0, len(hs))
	for _, h := range hs {
		if h.Excludes() {
			out = append(out, h.Date)
		}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Holiday, error) {
	return s.repo.GetByID(ctx, id)
}

// Update applies an admin decision to one holiday.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Holiday, error) {
	h, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Recognized != nil {
		h.Recognized = *req.Recognized
	}
	if req.Suppressed != nil {
		h.Suppressed = *req.Suppressed
	}
	if err := s.repo.Update(ctx, h); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("holiday_id", h.ID.String()).
		Str("date", h.Date.String()).
		Bool("recognized", h.Recognized).
		Bool("suppressed", h.Suppressed).
		Msg("holiday updated")
	return h, nil
}
