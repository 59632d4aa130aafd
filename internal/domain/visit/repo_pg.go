package visit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinic/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Querier(ctx, r.pool)
}

const apptCols = `id, doctor_id, patient_id, reason, scheduled_at, visits, version, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var visits []byte
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.Reason, &a.ScheduledAt,
		&visits, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.Visits, err = decodeVisits(visits); err != nil {
		return nil, fmt.Errorf("decode visits of %s: %w", a.ID, err)
	}
	return &a, nil
}

func decodeVisits(raw []byte) ([]Visit, error) {
	visits := []Visit{}
	if len(raw) == 0 {
		return visits, nil
	}
	if err := json.Unmarshal(raw, &visits); err != nil {
		return nil, err
	}
	if visits == nil {
		visits = []Visit{}
	}
	return visits, nil
}

func encodeVisits(visits []Visit) ([]byte, error) {
	if visits == nil {
		visits = []Visit{}
	}
	return json.Marshal(visits)
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.Version = 1
	visits, err := encodeVisits(a.Visits)
	if err != nil {
		return err
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, reason, scheduled_at, visits, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		a.ID, a.DoctorID, a.PatientID, a.Reason, a.ScheduledAt, visits, a.Version,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *appointmentRepoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Appointment, int, error) {
	const where = `WHERE ($1::text = '' OR doctor_id = $1) AND ($2::text = '' OR patient_id = $2)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments `+where,
		filter.DoctorID, filter.PatientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointments `+where+`
		ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`,
		filter.DoctorID, filter.PatientID, limit, offset)
	if err != nil {
		return nil, 0, err
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

func (r *appointmentRepoPG) SaveVisits(ctx context.Context, id uuid.UUID, expectedVersion int, visits []Visit) (*Appointment, error) {
	raw, err := encodeVisits(visits)
	if err != nil {
		return nil, err
	}
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET visits = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING `+apptCols, id, expectedVersion, raw))
	if !errors.Is(err, ErrNotFound) {
		return a, err
	}

	var exists bool
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrVersionConflict
	}
	return nil, ErrNotFound
}

func (r *appointmentRepoPG) DoctorVisits(ctx context.Context, doctorID string) ([]Visit, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT visits FROM appointments WHERE doctor_id = $1`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []Visit
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		visits, err := decodeVisits(raw)
		if err != nil {
			return nil, err
		}
		all = append(all, visits...)
	}
	return all, rows.Err()
}

func (r *appointmentRepoPG) MaxInvoiceNumbers(ctx context.Context) (map[string]int64, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT a.doctor_id, MAX((v->>'invoice_number')::bigint)
		FROM appointments a, jsonb_array_elements(a.visits) v
		GROUP BY a.doctor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var doctorID string
		var n int64
		if err := rows.Scan(&doctorID, &n); err != nil {
			return nil, err
		}
		out[doctorID] = n
	}
	return out, rows.Err()
}
