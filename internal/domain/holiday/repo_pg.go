package holiday

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsched/scheduler/internal/platform/db"
	engine "github.com/clinicsched/scheduler/internal/platform/scheduling"
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

const holidayCols = `id, country, date, name, recognized, suppressed, created_at, updated_at`

func scanHoliday(row pgx.Row) (*Holiday, error) {
	var (
		h Holiday
		d time.Time
	)
	err := row.Scan(&h.ID, &h.Country, &d, &h.Name, &h.Recognized, &h.Suppressed, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	h.Date = engine.Date{Year: d.Year(), Month: d.Month(), Day: d.Day()}
	return &h, nil
}

func (r *repoPG) IsSeeded(ctx context.Context, country string, year int) (bool, error) {
	var seeded bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM holiday_seed WHERE country = $1 AND year = $2)`,
		country, year).Scan(&seeded)
	return seeded, err
}

func (r *repoPG) SeedYear(ctx context.Context, country string, year int, holidays []*Holiday) (int, error) {
	inserted := 0
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if err := db.LockKey(ctx, "holiday_seed:"+country+":"+strconv.Itoa(year)); err != nil {
			return err
		}
		tag, err := db.TxFromContext(ctx).Exec(ctx,
			`INSERT INTO holiday_seed (country, year) VALUES ($1, $2) ON CONFLICT DO NOTHING`, country, year)
		if err != nil {
			return fmt.Errorf("mark seeded: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, h := range holidays {
			if h.ID == uuid.Nil {
				h.ID = uuid.New()
			}
			batch.Queue(`
				INSERT INTO holiday (id, country, date, name, recognized, suppressed)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (country, date, name) DO NOTHING`,
				h.ID, country, h.Date.In(time.UTC), h.Name, h.Recognized, h.Suppressed)
		}
		br := db.TxFromContext(ctx).SendBatch(ctx, batch)
		defer br.Close()
		for range holidays {
			tag, err := br.Exec()
			if err != nil {
				return fmt.Errorf("insert holiday: %w", err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	return inserted, err
}

func (r *repoPG) ListRange(ctx context.Context, country string, from, to engine.Date) ([]*Holiday, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+holidayCols+` FROM holiday
		WHERE country = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, name`,
		country, from.In(time.UTC), to.In(time.UTC))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Holiday
	for rows.Next() {
		h, err := scanHoliday(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	return items, rows.Err()
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Holiday, error) {
	return scanHoliday(r.conn(ctx).QueryRow(ctx, `SELECT `+holidayCols+` FROM holiday WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, h *Holiday) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE holiday SET recognized = $2, suppressed = $3, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`,
		h.ID, h.Recognized, h.Suppressed).Scan(&h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
