package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsched/scheduler/internal/platform/db"
)

func connFor(ctx context.Context, pool *pgxpool.Pool) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// -- Provider --

type providerRepoPG struct{ pool *pgxpool.Pool }

func NewProviderRepoPG(pool *pgxpool.Pool) ProviderRepository {
	return &providerRepoPG{pool: pool}
}

const providerCols = `id, organization_id, name, specialty, email, phone, active, created_at, updated_at`

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Specialty, &p.Email, &p.Phone,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *providerRepoPG) Create(ctx context.Context, p *Provider) error {
	p.ID = uuid.New()
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO provider (id, organization_id, name, specialty, email, phone, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.OrganizationID, p.Name, p.Specialty, p.Email, p.Phone, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *providerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return scanProvider(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+providerCols+` FROM provider WHERE id = $1`, id))
}

func (r *providerRepoPG) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Provider, int, error) {
	q := connFor(ctx, r.pool)
	where, args := "", []interface{}{}
	if orgID != uuid.Nil {
		where = " WHERE organization_id = $1"
		args = append(args, orgID)
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM provider`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM provider%s ORDER BY name, id LIMIT $%d OFFSET $%d`,
		providerCols, where, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// -- Patient --

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, organization_id, name, email, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		p.ID, p.OrganizationID, p.Name, p.Email, p.Phone,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT id, organization_id, name, email, phone, created_at, updated_at
		FROM patient WHERE id = $1`, id,
	).Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
