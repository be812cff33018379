package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsched/scheduler/internal/platform/db"
	engine "github.com/clinicsched/scheduler/internal/platform/scheduling"
)

func conn(ctx context.Context, pool *pgxpool.Pool) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// DATE columns travel as midnight UTC.
func dateArg(d *engine.Date) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.In(time.UTC)
	return &t
}

func dateFromColumn(t *time.Time) *engine.Date {
	if t == nil {
		return nil
	}
	d := engine.Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
	return &d
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `id, organization_id, provider_id, patient_id, title, notes, start_time, end_time,
	status, frequency, recurrence_end_date, reminder_sent_at, created_by, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a       Appointment
		endDate *time.Time
	)
	err := row.Scan(&a.ID, &a.OrganizationID, &a.ProviderID, &a.PatientID, &a.Title, &a.Notes,
		&a.StartTime, &a.EndTime, &a.Status, &a.Frequency, &endDate, &a.ReminderSentAt,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.RecurrenceEndDate = dateFromColumn(endDate)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func prepareAppointment(a *Appointment) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if a.Frequency == "" {
		a.Frequency = engine.FrequencyNone
	}
}

const apptInsert = `
	INSERT INTO appointment (id, organization_id, provider_id, patient_id, title, notes,
		start_time, end_time, status, frequency, recurrence_end_date, created_by)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

func apptArgs(a *Appointment) []interface{} {
	return []interface{}{a.ID, a.OrganizationID, a.ProviderID, a.PatientID, a.Title, a.Notes,
		a.StartTime, a.EndTime, a.Status, a.Frequency, dateArg(a.RecurrenceEndDate), a.CreatedBy}
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	prepareAppointment(a)
	err := conn(ctx, r.pool).QueryRow(ctx, apptInsert+` RETURNING created_at, updated_at`, apptArgs(a)...).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrWindowTaken
	}
	return err
}

func (r *appointmentRepoPG) CreateIfAbsent(ctx context.Context, a *Appointment) (bool, error) {
	prepareAppointment(a)
	err := conn(ctx, r.pool).QueryRow(ctx, apptInsert+` ON CONFLICT DO NOTHING RETURNING created_at, updated_at`, apptArgs(a)...).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *appointmentRepoPG) Exists(ctx context.Context, id AppointmentIdentity, window engine.Interval) (bool, error) {
	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE provider_id = $1 AND patient_id = $2 AND title = $3
				AND start_time = $4 AND end_time = $5)`,
		id.ProviderID, id.PatientID, id.Title, window.Start, window.End).Scan(&exists)
	return exists, err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where += fmt.Sprintf(clause, len(args))
	}
	if f.OrganizationID != uuid.Nil {
		add(` AND organization_id = $%d`, f.OrganizationID)
	}
	if f.ProviderID != uuid.Nil {
		add(` AND provider_id = $%d`, f.ProviderID)
	}
	if f.PatientID != uuid.Nil {
		add(` AND patient_id = $%d`, f.PatientID)
	}
	if f.Status != "" {
		add(` AND status = $%d`, f.Status)
	}
	if f.From != nil {
		add(` AND end_time > $%d`, *f.From)
	}
	if f.To != nil {
		add(` AND start_time < $%d`, *f.To)
	}

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + ` FROM appointment` + where +
		fmt.Sprintf(` ORDER BY start_time, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := conn(ctx, r.pool).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectAppointments(rows)
	return items, total, err
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `UPDATE appointment SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) BookedStarts(ctx context.Context, providerID uuid.UUID, window engine.Interval) ([]time.Time, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT start_time FROM appointment
		WHERE provider_id = $1 AND status <> 'cancelled'
			AND start_time >= $2 AND start_time < $3
		ORDER BY start_time`, providerID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[time.Time])
}

func (r *appointmentRepoPG) DueReminders(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE status = 'scheduled' AND reminder_sent_at IS NULL
			AND start_time >= $1 AND start_time < $2
		ORDER BY start_time, id`, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *appointmentRepoPG) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `UPDATE appointment SET reminder_sent_at = $2 WHERE id = $1`, id, at)
	return err
}

// =========== Availability Repository ===========

type availabilityRepoPG struct{ pool *pgxpool.Pool }

func NewAvailabilityRepoPG(pool *pgxpool.Pool) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool}
}

const availCols = `id, organization_id, provider_id, start_time, end_time, is_blocked, block_type,
	notes, frequency, recurrence_end_date, created_at, updated_at`

func scanAvailability(row pgx.Row) (*AvailabilityBlock, error) {
	var (
		b       AvailabilityBlock
		endDate *time.Time
	)
	err := row.Scan(&b.ID, &b.OrganizationID, &b.ProviderID, &b.StartTime, &b.EndTime, &b.IsBlocked,
		&b.BlockType, &b.Notes, &b.Frequency, &endDate, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.RecurrenceEndDate = dateFromColumn(endDate)
	return &b, nil
}

func collectAvailability(rows pgx.Rows) ([]*AvailabilityBlock, error) {
	defer rows.Close()
	var items []*AvailabilityBlock
	for rows.Next() {
		b, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

const availInsert = `
	INSERT INTO availability_block (id, organization_id, provider_id, start_time, end_time,
		is_blocked, block_type, notes, frequency, recurrence_end_date)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

func availArgs(b *AvailabilityBlock) []interface{} {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Frequency == "" {
		b.Frequency = engine.FrequencyNone
	}
	return []interface{}{b.ID, b.OrganizationID, b.ProviderID, b.StartTime, b.EndTime,
		b.IsBlocked, b.BlockType, b.Notes, b.Frequency, dateArg(b.RecurrenceEndDate)}
}

func (r *availabilityRepoPG) Create(ctx context.Context, b *AvailabilityBlock) error {
	err := conn(ctx, r.pool).QueryRow(ctx, availInsert+` RETURNING created_at, updated_at`, availArgs(b)...).
		Scan(&b.CreatedAt, &b.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrWindowTaken
	}
	return err
}

func (r *availabilityRepoPG) CreateIfAbsent(ctx context.Context, b *AvailabilityBlock) (bool, error) {
	err := conn(ctx, r.pool).QueryRow(ctx, availInsert+` ON CONFLICT DO NOTHING RETURNING created_at, updated_at`, availArgs(b)...).
		Scan(&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *availabilityRepoPG) Exists(ctx context.Context, id AvailabilityIdentity, window engine.Interval) (bool, error) {
	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM availability_block
			WHERE provider_id = $1 AND organization_id = $2 AND is_blocked = $3
				AND start_time = $4 AND end_time = $5)`,
		id.ProviderID, id.OrganizationID, id.IsBlocked, window.Start, window.End).Scan(&exists)
	return exists, err
}

func (r *availabilityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AvailabilityBlock, error) {
	return scanAvailability(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+availCols+` FROM availability_block WHERE id = $1`, id))
}

func (r *availabilityRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM availability_block WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *availabilityRepoPG) List(ctx context.Context, f AvailabilityFilter, limit, offset int) ([]*AvailabilityBlock, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where += fmt.Sprintf(clause, len(args))
	}
	if f.OrganizationID != uuid.Nil {
		add(` AND organization_id = $%d`, f.OrganizationID)
	}
	if f.ProviderID != uuid.Nil {
		add(` AND provider_id = $%d`, f.ProviderID)
	}
	if f.BlockedOnly {
		where += ` AND is_blocked`
	}
	if f.From != nil {
		add(` AND end_time > $%d`, *f.From)
	}
	if f.To != nil {
		add(` AND start_time < $%d`, *f.To)
	}

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM availability_block`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + availCols + ` FROM availability_block` + where +
		fmt.Sprintf(` ORDER BY start_time, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := conn(ctx, r.pool).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectAvailability(rows)
	return items, total, err
}

func (r *availabilityRepoPG) Overlapping(ctx context.Context, providerID uuid.UUID, window engine.Interval, blockedOnly bool) ([]*AvailabilityBlock, error) {
	query := `SELECT ` + availCols + ` FROM availability_block
		WHERE provider_id = $1 AND start_time < $3 AND end_time > $2`
	if blockedOnly {
		query += ` AND is_blocked`
	}
	rows, err := conn(ctx, r.pool).Query(ctx, query+` ORDER BY start_time`, providerID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	return collectAvailability(rows)
}

// =========== Provider lock ===========

type pgProviderLocker struct{ pool *pgxpool.Pool }

// NewProviderLockerPG serializes calendar writes per provider with a
// transaction-scoped advisory lock.
func NewProviderLockerPG(pool *pgxpool.Pool) ProviderLocker {
	return &pgProviderLocker{pool: pool}
}

func (l *pgProviderLocker) WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, l.pool, func(ctx context.Context) error {
		if err := db.LockKey(ctx, "provider:"+providerID.String()); err != nil {
			return err
		}
		return fn(ctx)
	})
}
