package holiday

import (
	"context"

	"github.com/google/uuid"

	engine "github.com/clinicsched/scheduler/internal/platform/scheduling"
)

type Repository interface {
	IsSeeded(ctx context.Context, country string, year int) (bool, error)
	// SeedYear stores holidays and marks (country, year) seeded, atomically.
	// It returns how many rows were inserted; zero when another caller got
	// there first.
	SeedYear(ctx context.Context, country string, year int, holidays []*Holiday) (int, error)
	ListRange(ctx context.Context, country string, from, to engine.Date) ([]*Holiday, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Holiday, error)
	Update(ctx context.Context, h *Holiday) error
}
