package organization

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsched/scheduler/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const orgCols = `id, name, timezone, holiday_country, blocked_days, phone, email, created_at, updated_at`

func scanOrg(row pgx.Row) (*Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.Name, &o.Timezone, &o.HolidayCountry, &o.BlockedDays,
		&o.Phone, &o.Email, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.BlockedDays == nil {
		o.BlockedDays = []int{}
	}
	return &o, nil
}

func (r *repoPG) Create(ctx context.Context, o *Organization) error {
	o.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO organization (id, name, timezone, holiday_country, blocked_days, phone, email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		o.ID, o.Name, o.Timezone, o.HolidayCountry, o.BlockedDays, o.Phone, o.Email,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return scanOrg(r.conn(ctx).QueryRow(ctx, `SELECT `+orgCols+` FROM organization WHERE id = $1`, id))
}

func (r *repoPG) UpdateBlockedDays(ctx context.Context, id uuid.UUID, days []int) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE organization SET blocked_days = $2, updated_at = NOW() WHERE id = $1`, id, days)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Organization, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM organization`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+orgCols+` FROM organization ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Organization
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}
