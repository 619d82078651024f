package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medcare/medcare/internal/platform/db"
)

// activeSlotIndex is the partial unique index on
// (doctor_id, appt_date, appt_time) WHERE status IN ('pending','confirmed').
const activeSlotIndex = "appointments_active_slot_key"

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `id, patient_id, doctor_id, appt_date, to_char(appt_time, 'HH24:MI'),
	duration_minutes, status, reason, diagnosis, notes, cancellation_reason,
	created_by, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var day time.Time
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &day, &a.Time,
		&a.DurationMinutes, &a.Status, &a.Reason, &a.Diagnosis, &a.Notes, &a.CancellationReason,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Date = DateOf(day)
	return &a, nil
}

// Create relies on the partial unique index: a concurrent booking of the
// same active slot loses with a unique violation.
func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appt_date, appt_time,
			duration_minutes, status, reason, diagnosis, notes, cancellation_reason, created_by)
		VALUES ($1,$2,$3,$4::date,$5::time,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.Date.String(), a.Time,
		a.DurationMinutes, a.Status, a.Reason, a.Diagnosis, a.Notes, a.CancellationReason, a.CreatedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, activeSlotIndex) {
		return ErrSlotTaken
	}
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment, expectStatus string) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments SET appt_date=$3::date, appt_time=$4::time, duration_minutes=$5,
			status=$6, reason=$7, diagnosis=$8, notes=$9, cancellation_reason=$10, updated_at=NOW()
		WHERE id = $1 AND status = $2
		RETURNING created_by, created_at, updated_at`,
		a.ID, expectStatus, a.Date.String(), a.Time, a.DurationMinutes,
		a.Status, a.Reason, a.Diagnosis, a.Notes, a.CancellationReason,
	).Scan(&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err, activeSlotIndex):
		return ErrSlotTaken
	case db.IsNoRows(err):
		// Either the row is gone or its status moved under us.
		if _, getErr := r.GetByID(ctx, a.ID); getErr != nil {
			return getErr
		}
		return ErrConcurrentUpdate
	case err != nil:
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	conn := db.Conn(ctx, r.pool)

	where := ` WHERE ($1 = '00000000-0000-0000-0000-000000000000'::uuid OR patient_id = $1)
		AND ($2 = '00000000-0000-0000-0000-000000000000'::uuid OR doctor_id = $2)
		AND ($3 = '' OR status = $3)
		AND ($4 = '' OR appt_date = NULLIF($4, '')::date)`
	var dateArg string
	if !f.Date.IsZero() {
		dateArg = f.Date.String()
	}
	args := []interface{}{f.PatientID, f.DoctorID, f.Status, dateArg}

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT `+apptCols+` FROM appointments`+where+`
		ORDER BY appt_date, appt_time, id LIMIT $5 OFFSET $6`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) SlotHeld(ctx context.Context, doctorID uuid.UUID, date Date, clock string, exclude uuid.UUID) (bool, error) {
	var held bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND appt_date = $2::date AND appt_time = $3::time
			  AND status IN ('pending', 'confirmed') AND id <> $4
		)`, doctorID, date.String(), clock, exclude).Scan(&held)
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	return held, nil
}

func (r *appointmentRepoPG) BookedTimes(ctx context.Context, doctorID uuid.UUID, date Date) ([]string, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT to_char(appt_time, 'HH24:MI') FROM appointments
		WHERE doctor_id = $1 AND appt_date = $2::date AND status IN ('pending', 'confirmed')
		ORDER BY appt_time`, doctorID, date.String())
	if err != nil {
		return nil, fmt.Errorf("booked times: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
