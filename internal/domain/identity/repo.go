package identity

import (
	"context"

	"github.com/google/uuid"
)

type ProviderRepository interface {
	Create(ctx context.Context, p *Provider) error
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	// List returns providers of one organization, or of all when orgID is Nil.
	List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Provider, int, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
}
