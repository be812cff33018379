package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicsched/scheduler/internal/domain/scheduling"
)

// Directory resolves providers and patients for the scheduler.
type Directory struct {
	svc *Service
}

func NewDirectory(svc *Service) *Directory {
	return &Directory{svc: svc}
}

var _ scheduling.Directory = (*Directory)(nil)

func (d *Directory) Provider(ctx context.Context, id uuid.UUID) (scheduling.Participant, bool, error) {
	p, err := d.svc.GetProvider(ctx, id)
	if isNotFound(err) {
		return scheduling.Participant{}, false, nil
	}
	if err != nil {
		return scheduling.Participant{}, false, err
	}
	return scheduling.Participant{
		ID:             p.ID,
		Name:           p.Name,
		Email:          deref(p.Email),
		Phone:          deref(p.Phone),
		OrganizationID: p.OrganizationID,
	}, true, nil
}

func (d *Directory) Patient(ctx context.Context, id uuid.UUID) (scheduling.Participant, bool, error) {
	p, err := d.svc.GetPatient(ctx, id)
	if isNotFound(err) {
		return scheduling.Participant{}, false, nil
	}
	if err != nil {
		return scheduling.Participant{}, false, err
	}
	out := scheduling.Participant{
		ID:    p.ID,
		Name:  p.Name,
		Email: deref(p.Email),
		Phone: deref(p.Phone),
	}
	if p.OrganizationID != nil {
		out.OrganizationID = *p.OrganizationID
	}
	return out, true, nil
}
