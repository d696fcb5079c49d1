package appointment

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// Repository provides database operations for appointments
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new appointment repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const appointmentSelect = `
	SELECT a.id, a.patient_name, a.mrn, a.doctor_id, COALESCE(u.name, ''),
		a.specialty, a.scheduled_at, a.status, COALESCE(a.notes, ''),
		a.created_by, a.created_at, a.updated_at
	FROM appointments a
	LEFT JOIN users u ON u.id = a.doctor_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	a := &Appointment{}
	err := row.Scan(
		&a.ID, &a.PatientName, &a.MRN, &a.DoctorID, &a.DoctorName,
		&a.Specialty, &a.ScheduledAt, &a.Status, &a.Notes,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create creates an appointment
func (r *Repository) Create(ctx context.Context, a *Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_name, mrn, doctor_id, specialty,
			scheduled_at, status, notes, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		a.ID, a.PatientName, a.MRN, a.DoctorID, a.Specialty,
		a.ScheduledAt, a.Status, a.Notes, a.CreatedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)

	if err != nil {
		return errors.Storage(err, "failed to create appointment")
	}

	return nil
}

// Get retrieves an appointment by ID
func (r *Repository) Get(ctx context.Context, id types.ID) (*Appointment, error) {
	query := appointmentSelect + `
	WHERE a.id = $1`

	a, err := scanAppointment(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("appointment", id.String())
	}
	if err != nil {
		return nil, errors.Storage(err, "failed to get appointment")
	}

	return a, nil
}

// Update updates an appointment
func (r *Repository) Update(ctx context.Context, a *Appointment) error {
	query := `
		UPDATE appointments SET
			doctor_id = $2, scheduled_at = $3, status = $4, notes = NULLIF($5, '')
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query,
		a.ID, a.DoctorID, a.ScheduledAt, a.Status, a.Notes,
	)
	if err != nil {
		return errors.Storage(err, "failed to update appointment")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("appointment", a.ID.String())
	}

	return nil
}

// List lists appointments with optional filters
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Appointment, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}

	if filter.DoctorID != nil {
		conditions = append(conditions, fmt.Sprintf("a.doctor_id = $%d", argNum))
		args = append(args, *filter.DoctorID)
		argNum++
	}

	if filter.MRN != "" {
		conditions = append(conditions, fmt.Sprintf("a.mrn = $%d", argNum))
		args = append(args, filter.MRN)
		argNum++
	}

	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("a.scheduled_at >= $%d", argNum))
		args = append(args, *filter.From)
		argNum++
	}

	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("a.scheduled_at < $%d", argNum))
		args = append(args, *filter.To)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM appointments a %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Storage(err, "failed to count appointments")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`%s
	%s
	ORDER BY a.scheduled_at
	LIMIT $%d OFFSET $%d`, appointmentSelect, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Storage(err, "failed to list appointments")
	}
	defer rows.Close()

	var appointments []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, errors.Storage(err, "failed to scan appointment")
		}
		appointments = append(appointments, *a)
	}

	return appointments, total, nil
}
