package organization

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, o *Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	UpdateBlockedDays(ctx context.Context, id uuid.UUID, days []int) error
	List(ctx context.Context, limit, offset int) ([]*Organization, int, error)
}
