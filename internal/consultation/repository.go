package consultation

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmas001/imd-v2.8/internal/shared/errors"
)

// Repository provides database operations for consultations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new consultation repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const consultationSelect = `
	SELECT c.id, c.patient_name, c.mrn, c.age, COALESCE(c.gender, ''),
		COALESCE(c.requesting_department, ''), c.specialty,
		COALESCE(c.requesting_doctor_name, ''), c.urgency,
		COALESCE(c.reason, ''), c.status,
		COALESCE(c.completion_note, ''), c.completed_by, COALESCE(u.name, ''),
		c.completed_at, c.created_at, c.updated_at
	FROM consultations c
	LEFT JOIN users u ON u.id = c.completed_by`

func scanConsultation(row pgx.Row) (*Consultation, error) {
	c := &Consultation{}
	err := row.Scan(
		&c.ID, &c.PatientName, &c.MRN, &c.Age, &c.Gender,
		&c.RequestingDepartment, &c.Specialty,
		&c.RequestingDoctorName, &c.Urgency,
		&c.Reason, &c.Status,
		&c.CompletionNote, &c.CompletedBy, &c.CompletedByName,
		&c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a consultation. The ID comes from the database
// sequence and is scanned back along with the timestamps.
func (r *Repository) Create(ctx context.Context, c *Consultation) error {
	query := `
		INSERT INTO consultations (
			patient_name, mrn, age, gender, requesting_department,
			specialty, requesting_doctor_name, urgency, reason, status
		) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''), $8, NULLIF($9, ''), $10)
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		c.PatientName, c.MRN, c.Age, c.Gender, c.RequestingDepartment,
		c.Specialty, c.RequestingDoctorName, c.Urgency, c.Reason, c.Status,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		return errors.Storage(err, "failed to create consultation")
	}

	return nil
}

// Get retrieves a consultation by ID
func (r *Repository) Get(ctx context.Context, id int64) (*Consultation, error) {
	query := consultationSelect + `
	WHERE c.id = $1`

	c, err := scanConsultation(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("consultation", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, errors.Storage(err, "failed to get consultation")
	}

	return c, nil
}

// Update updates the request fields of a consultation
func (r *Repository) Update(ctx context.Context, c *Consultation) error {
	query := `
		UPDATE consultations SET
			requesting_department = NULLIF($2, ''), specialty = $3,
			requesting_doctor_name = NULLIF($4, ''), urgency = $5,
			reason = NULLIF($6, '')
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query,
		c.ID, c.RequestingDepartment, c.Specialty,
		c.RequestingDoctorName, c.Urgency, c.Reason,
	)
	if err != nil {
		return errors.Storage(err, "failed to update consultation")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("consultation", fmt.Sprintf("%d", c.ID))
	}

	return nil
}

// List lists consultations with optional filters
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Consultation, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}

	if filter.Specialty != "" {
		conditions = append(conditions, fmt.Sprintf("c.specialty = $%d", argNum))
		args = append(args, filter.Specialty)
		argNum++
	}

	if filter.MRN != "" {
		conditions = append(conditions, fmt.Sprintf("c.mrn = $%d", argNum))
		args = append(args, filter.MRN)
		argNum++
	}

	if filter.Urgency != nil {
		conditions = append(conditions, fmt.Sprintf("c.urgency = $%d", argNum))
		args = append(args, *filter.Urgency)
		argNum++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(c.patient_name ILIKE $%d OR c.mrn ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("c.created_at >= $%d", argNum))
		args = append(args, *filter.From)
		argNum++
	}

	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("c.created_at < $%d", argNum))
		args = append(args, *filter.To)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM consultations c %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Storage(err, "failed to count consultations")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`%s
	%s
	ORDER BY c.created_at DESC
	LIMIT $%d OFFSET $%d`, consultationSelect, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Storage(err, "failed to list consultations")
	}
	defer rows.Close()

	var consultations []Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, 0, errors.Storage(err, "failed to scan consultation")
		}
		consultations = append(consultations, *c)
	}

	return consultations, total, nil
}

// FindActive is the roster query: every consultation still awaiting
// review, newest first.
func (r *Repository) FindActive(ctx context.Context) ([]Consultation, error) {
	query := consultationSelect + `
	WHERE c.status = 'active'
	ORDER BY c.created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Storage(err, "failed to find active consultations")
	}
	defer rows.Close()

	var consultations []Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, errors.Storage(err, "failed to scan consultation")
		}
		consultations = append(consultations, *c)
	}

	return consultations, nil
}

// CompleteWithNote persists the completion and, when the MRN belongs
// to a known patient, appends the consultation note to that patient's
// feed in the same transaction. Consultations for patients outside the
// ward complete without a feed entry. The status guard on the update
// makes the transition race-safe.
func (r *Repository) CompleteWithNote(ctx context.Context, c *Consultation, noteContent string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Storage(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE consultations SET
			status = $2, completion_note = NULLIF($3, ''),
			completed_by = $4, completed_at = $5
		WHERE id = $1 AND status = 'active'`

	result, err := tx.Exec(ctx, query,
		c.ID, c.Status, c.CompletionNote, c.CompletedBy, c.CompletedAt,
	)
	if err != nil {
		return errors.Storage(err, "failed to complete consultation")
	}
	if result.RowsAffected() == 0 {
		return errors.Precondition("consultation is not active")
	}

	if noteContent != "" {
		var patientID string
		err := tx.QueryRow(ctx, `SELECT id FROM patients WHERE mrn = $1`, c.MRN).Scan(&patientID)
		if err != nil && err != pgx.ErrNoRows {
			return errors.Storage(err, "failed to look up patient for consultation note")
		}

		if err == nil {
			noteQuery := `
				INSERT INTO long_stay_notes (patient_id, content, note_type, created_by)
				VALUES ($1, $2, 'Consultation Note', $3)`

			if _, err := tx.Exec(ctx, noteQuery, patientID, noteContent, c.CompletedBy); err != nil {
				return errors.Storage(err, "failed to append consultation note")
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Storage(err, "failed to commit transaction")
	}

	return nil
}
