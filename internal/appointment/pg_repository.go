package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/appointment-scheduling-core/internal/calendar"
	"github.com/hackgods/appointment-scheduling-core/internal/schedule"
)

const (
	pgExclusionViolation = "23P01"
	pgLockNotAvailable   = "55P03"
)

const appointmentColumns = `id, patient_id, doctor_id, specialty, start_at, end_at, status, notes, auto_adjusted, created_at, updated_at`

type PgRepository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPgRepository returns a repository on pool. lockTimeout bounds how long a
// transaction waits for a doctor's advisory lock or a row lock.
func NewPgRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *PgRepository {
	return &PgRepository{pool: pool, lockTimeout: lockTimeout}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var notes *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Specialty,
		&a.Range.Start,
		&a.Range.End,
		&a.Status,
		&notes,
		&a.AutoAdjusted,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Notes = notes
	return &a, nil
}

func scanBookings(rows pgx.Rows) ([]calendar.Booking, error) {
	defer rows.Close()

	result := []calendar.Booking{}
	for rows.Next() {
		var b calendar.Booking
		if err := rows.Scan(&b.AppointmentID, &b.Range.Start, &b.Range.End); err != nil {
			return nil, err
		}
		result = append(result, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// translatePgErr maps constraint and lock failures onto the core's errors.
func translatePgErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgExclusionViolation:
		return ErrSlotConflict
	case pgLockNotAvailable:
		return fmt.Errorf("%w: %s", ErrBusy, pgErr.Message)
	}
	return err
}

const bookingsQuery = `
	SELECT id, start_at, end_at
	FROM appointments
	WHERE doctor_id = $1
	  AND status IN ('SCHEDULED', 'RESCHEDULED')
	  AND start_at < $3
	  AND end_at > $2
	ORDER BY start_at
`

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) BookedRanges(ctx context.Context, doctorID uuid.UUID, window schedule.TimeRange) ([]calendar.Booking, error) {
	rows, err := r.pool.Query(ctx, bookingsQuery, doctorID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

// InDoctorTx serialises writers of one doctor on a transaction-scoped advisory
// lock. The exclusion constraint on appointments backs the overlap check.
func (r *PgRepository) InDoctorTx(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx DoctorTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck

	if r.lockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", r.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, doctorID.String()); err != nil {
		return fmt.Errorf("doctor advisory lock: %w", translatePgErr(err))
	}

	if err := fn(ctx, &pgDoctorTx{tx: tx, doctorID: doctorID}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translatePgErr(err))
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *uuid.UUID
	if ev.AppointmentID != nil {
		appID = ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, appID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// EventsForAppointment returns the event log of one appointment, oldest first.
func (r *PgRepository) EventsForAppointment(ctx context.Context, id uuid.UUID) ([]EventLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, appointment_id, payload, created_at
		FROM event_logs
		WHERE appointment_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EventLog
	for rows.Next() {
		var ev EventLog
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type pgDoctorTx struct {
	tx       pgx.Tx
	doctorID uuid.UUID
}

func (t *pgDoctorTx) Bookings(ctx context.Context, window schedule.TimeRange) ([]calendar.Booking, error) {
	rows, err := t.tx.Query(ctx, bookingsQuery, t.doctorID, window.Start, window.End)
	if err != nil {
		return nil, translatePgErr(err)
	}
	return scanBookings(rows)
}

func (t *pgDoctorTx) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, translatePgErr(err)
	}
	return a, nil
}

func (t *pgDoctorTx) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.DoctorID != t.doctorID {
		return fmt.Errorf("appointment doctor %s outside transaction for %s", a.DoctorID, t.doctorID)
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.PatientID, a.DoctorID, a.Specialty, a.Range.Start, a.Range.End,
		a.Status, a.Notes, a.AutoAdjusted, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return translatePgErr(err)
	}
	return nil
}

func (t *pgDoctorTx) UpdateAppointment(ctx context.Context, a *Appointment) error {
	if a.DoctorID != t.doctorID {
		return fmt.Errorf("appointment doctor %s outside transaction for %s", a.DoctorID, t.doctorID)
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET start_at = $3,
		    end_at = $4,
		    status = $5,
		    notes = $6,
		    auto_adjusted = $7,
		    updated_at = $8
		WHERE id = $1
		  AND doctor_id = $2
	`, a.ID, a.DoctorID, a.Range.Start, a.Range.End, a.Status, a.Notes, a.AutoAdjusted, a.UpdatedAt)
	if err != nil {
		return translatePgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}
