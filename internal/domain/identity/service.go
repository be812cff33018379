package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicsched/scheduler/internal/platform/validation"
)

// OrganizationChecker confirms that an organization exists before a provider
// or patient is attached to it.
type OrganizationChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	providers ProviderRepository
	patients  PatientRepository
	orgs      OrganizationChecker
	logger    zerolog.Logger
}

func NewService(providers ProviderRepository, patients PatientRepository, orgs OrganizationChecker, logger zerolog.Logger) *Service {
	return &Service{providers: providers, patients: patients, orgs: orgs, logger: logger}
}

// organization resolves the organization a new record is filed under. A
// caller bound to an organization always files into it; an unbound caller
// (admin) must name one when required is set.
func (s *Service) organization(ctx context.Context, callerOrg uuid.UUID, requested string, required bool) (uuid.UUID, error) {
	id := callerOrg
	if requested != "" {
		parsed, err := uuid.Parse(requested)
		if err != nil {
			return uuid.Nil, validation.Field("organization_id", "must be a valid UUID")
		}
		if callerOrg != uuid.Nil && parsed != callerOrg {
			return uuid.Nil, validation.Field("organization_id", "must be your own organization")
		}
		id = parsed
	}
	if id == uuid.Nil {
		if required {
			return uuid.Nil, validation.Field("organization_id", "is required")
		}
		return uuid.Nil, nil
	}
	ok, err := s.orgs.Exists(ctx, id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("check organization %s: %w", id, err)
	}
	if !ok {
		return uuid.Nil, validation.Field("organization_id", "unknown organization")
	}
	return id, nil
}

// -- Provider --

func (s *Service) CreateProvider(ctx context.Context, callerOrg uuid.UUID, req ProviderRequest) (*Provider, error) {
	orgID, err := s.organization(ctx, callerOrg, req.OrganizationID, true)
	if err != nil {
		return nil, err
	}
	p := &Provider{
		OrganizationID: orgID,
		Name:           req.Name,
		Specialty:      strPtr(req.Specialty),
		Email:          strPtr(req.Email),
		Phone:          strPtr(req.Phone),
		Active:         true,
	}
	if err := s.providers.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	s.logger.Info().Str("provider_id", p.ID.String()).Str("organization_id", orgID.String()).Msg("provider created")
	return p, nil
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return s.providers.GetByID(ctx, id)
}

func (s *Service) ListProviders(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Provider, int, error) {
	return s.providers.List(ctx, orgID, limit, offset)
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, callerOrg uuid.UUID, req PatientRequest) (*Patient, error) {
	orgID, err := s.organization(ctx, callerOrg, req.OrganizationID, false)
	if err != nil {
		return nil, err
	}
	p := &Patient{
		Name:  req.Name,
		Email: strPtr(req.Email),
		Phone: strPtr(req.Phone),
	}
	if orgID != uuid.Nil {
		p.OrganizationID = &orgID
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient created")
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
