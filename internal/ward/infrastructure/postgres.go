package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
	"github.com/drmas001/imd-v2.8/internal/ward/domain"
)

// PostgresRepository implements domain.Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var _ domain.Repository = (*PostgresRepository)(nil)

// admissionSelect is the shared projection for admission reads. Patient
// identity and doctor names are joined in so list and roster views need
// no follow-up queries.
const admissionSelect = `
	SELECT a.id, a.patient_id, p.name, p.mrn,
		a.visit_number, a.department, COALESCE(a.diagnosis, ''), a.status,
		a.admission_date, a.discharge_date,
		a.shift_type, a.is_weekend, COALESCE(a.safety_type, ''),
		a.admitting_doctor_id, COALESCE(ua.name, ''),
		a.discharge_doctor_id, COALESCE(ud.name, ''),
		a.discharge_type, a.follow_up_required, a.follow_up_date,
		COALESCE(a.discharge_note, ''),
		a.created_at, a.updated_at
	FROM admissions a
	JOIN patients p ON p.id = a.patient_id
	LEFT JOIN users ua ON ua.id = a.admitting_doctor_id
	LEFT JOIN users ud ON ud.id = a.discharge_doctor_id`

func scanAdmission(row pgx.Row) (*domain.Admission, error) {
	a := &domain.Admission{}
	err := row.Scan(
		&a.ID, &a.PatientID, &a.PatientName, &a.PatientMRN,
		&a.VisitNumber, &a.Department, &a.Diagnosis, &a.Status,
		&a.AdmissionDate, &a.DischargeDate,
		&a.ShiftType, &a.IsWeekend, &a.SafetyType,
		&a.AdmittingDoctorID, &a.AdmittingDoctorName,
		&a.DischargeDoctorID, &a.DischargeDoctorName,
		&a.DischargeType, &a.FollowUpRequired, &a.FollowUpDate,
		&a.DischargeNote,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreatePatientWithAdmission writes the patient and the initial
// admission in a single transaction
func (r *PostgresRepository) CreatePatientWithAdmission(ctx context.Context, p *domain.Patient, a *domain.Admission) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Storage(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO patients (id, mrn, name, date_of_birth, gender, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`

	_, err = tx.Exec(ctx, query,
		p.ID, p.MRN, p.Name, p.DateOfBirth, string(p.Gender), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("patient with this MRN already exists")
		}
		return errors.Storage(err, "failed to save patient")
	}

	a.PatientID = p.ID
	a.VisitNumber = 1
	if err := r.insertAdmission(ctx, tx, a); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Storage(err, "failed to commit transaction")
	}

	return nil
}

// CreateAdmission writes a readmission for an existing patient. The
// visit number is assigned from MAX+1 inside the insert; the unique
// constraint on (patient_id, visit_number) turns a concurrent
// readmission into a conflict instead of a duplicate visit.
func (r *PostgresRepository) CreateAdmission(ctx context.Context, a *domain.Admission) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Storage(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := r.insertAdmission(ctx, tx, a); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Storage(err, "failed to commit transaction")
	}

	return nil
}

func (r *PostgresRepository) insertAdmission(ctx context.Context, tx pgx.Tx, a *domain.Admission) error {
	query := `
		INSERT INTO admissions (
			id, patient_id, visit_number, department, diagnosis, status,
			admission_date, shift_type, is_weekend, safety_type,
			admitting_doctor_id, created_at, updated_at
		) VALUES (
			$1, $2,
			(SELECT COALESCE(MAX(visit_number), 0) + 1 FROM admissions WHERE patient_id = $2),
			$3, NULLIF($4, ''), $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12
		)
		RETURNING visit_number`

	err := tx.QueryRow(ctx, query,
		a.ID, a.PatientID,
		a.Department, a.Diagnosis, a.Status,
		a.AdmissionDate, a.ShiftType, a.IsWeekend, string(a.SafetyType),
		a.AdmittingDoctorID, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.VisitNumber)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("concurrent admission for this patient, retry")
		}
		if strings.Contains(err.Error(), "foreign key") {
			return errors.NotFound("patient", a.PatientID.String())
		}
		return errors.Storage(err, "failed to save admission")
	}

	return nil
}

// FindPatientByID finds a patient with the full admission history
func (r *PostgresRepository) FindPatientByID(ctx context.Context, id types.ID) (*domain.Patient, error) {
	query := `
		SELECT id, mrn, name, date_of_birth, COALESCE(gender, ''), created_at, updated_at
		FROM patients
		WHERE id = $1`

	p := &domain.Patient{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.MRN, &p.Name, &p.DateOfBirth, &p.Gender, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("patient", id.String())
	}
	if err != nil {
		return nil, errors.Storage(err, "failed to find patient")
	}

	if err := r.loadAdmissions(ctx, []*domain.Patient{p}); err != nil {
		return nil, err
	}

	return p, nil
}

// FindPatientByMRN finds a patient by medical record number
func (r *PostgresRepository) FindPatientByMRN(ctx context.Context, mrn types.MRN) (*domain.Patient, error) {
	var id types.ID
	err := r.pool.QueryRow(ctx, `SELECT id FROM patients WHERE mrn = $1`, mrn).Scan(&id)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("patient", mrn.String())
	}
	if err != nil {
		return nil, errors.Storage(err, "failed to find patient by MRN")
	}

	return r.FindPatientByID(ctx, id)
}

// UpdatePatient updates patient identity fields
func (r *PostgresRepository) UpdatePatient(ctx context.Context, p *domain.Patient) error {
	query := `
		UPDATE patients SET
			name = $2, date_of_birth = $3, gender = NULLIF($4, ''), updated_at = NOW()
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, p.ID, p.Name, p.DateOfBirth, string(p.Gender))
	if err != nil {
		return errors.Storage(err, "failed to update patient")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("patient", p.ID.String())
	}

	return nil
}

// ListPatients lists patients with admissions joined in. By default the
// result is restricted to patients with an active admission or one
// discharged within the recent window; discharged rows are never
// deleted, only aged out of this view.
func (r *PostgresRepository) ListPatients(ctx context.Context, filter domain.PatientFilter) ([]*domain.Patient, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	var admissionConds []string
	if !filter.IncludeDischarged {
		admissionConds = append(admissionConds,
			fmt.Sprintf("(a.status = 'active' OR (a.status = 'discharged' AND a.discharge_date > $%d))", argNum))
		args = append(args, time.Now().Add(-domain.RecentDischargeWindow))
		argNum++
	}
	if filter.Department != "" {
		admissionConds = append(admissionConds, fmt.Sprintf("a.department = $%d", argNum))
		args = append(args, filter.Department)
		argNum++
	}
	if len(admissionConds) > 0 {
		conditions = append(conditions,
			fmt.Sprintf("EXISTS (SELECT 1 FROM admissions a WHERE a.patient_id = p.id AND %s)",
				strings.Join(admissionConds, " AND ")))
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(p.name ILIKE $%d OR p.mrn ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM patients p %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Storage(err, "failed to count patients")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT p.id, p.mrn, p.name, p.date_of_birth, COALESCE(p.gender, ''), p.created_at, p.updated_at
		FROM patients p
		%s
		ORDER BY (SELECT MAX(a.admission_date) FROM admissions a WHERE a.patient_id = p.id) DESC NULLS LAST
		LIMIT $%d OFFSET $%d`, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Storage(err, "failed to list patients")
	}
	defer rows.Close()

	var patients []*domain.Patient
	for rows.Next() {
		p := &domain.Patient{}
		err := rows.Scan(
			&p.ID, &p.MRN, &p.Name, &p.DateOfBirth, &p.Gender, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, 0, errors.Storage(err, "failed to scan patient")
		}
		patients = append(patients, p)
	}
	rows.Close()

	if err := r.loadAdmissions(ctx, patients); err != nil {
		return nil, 0, err
	}

	return patients, total, nil
}

// loadAdmissions fetches the admission history for a page of patients
// in one query and distributes the rows onto the aggregates.
func (r *PostgresRepository) loadAdmissions(ctx context.Context, patients []*domain.Patient) error {
	if len(patients) == 0 {
		return nil
	}

	ids := make([]string, len(patients))
	byID := make(map[types.ID]*domain.Patient, len(patients))
	for i, p := range patients {
		ids[i] = p.ID.String()
		byID[p.ID] = p
		p.Admissions = []domain.Admission{}
	}

	query := admissionSelect + `
	WHERE a.patient_id = ANY($1)
	ORDER BY a.admission_date DESC`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return errors.Storage(err, "failed to load admissions")
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAdmission(rows)
		if err != nil {
			return errors.Storage(err, "failed to scan admission")
		}
		if p, ok := byID[a.PatientID]; ok {
			p.Admissions = append(p.Admissions, *a)
		}
	}

	return nil
}

// FindAdmissionByID finds a single admission
func (r *PostgresRepository) FindAdmissionByID(ctx context.Context, id types.ID) (*domain.Admission, error) {
	query := admissionSelect + `
	WHERE a.id = $1`

	a, err := scanAdmission(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("admission", id.String())
	}
	if err != nil {
		return nil, errors.Storage(err, "failed to find admission")
	}

	return a, nil
}

// UpdateAdmission updates a single admission row
func (r *PostgresRepository) UpdateAdmission(ctx context.Context, a *domain.Admission) error {
	query := `
		UPDATE admissions SET
			department = $2, diagnosis = NULLIF($3, ''), status = $4,
			admission_date = $5, discharge_date = $6,
			shift_type = $7, is_weekend = $8, safety_type = NULLIF($9, ''),
			discharge_doctor_id = $10,
			discharge_type = $11, follow_up_required = $12, follow_up_date = $13,
			discharge_note = NULLIF($14, ''),
			updated_at = NOW()
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query,
		a.ID, a.Department, a.Diagnosis, a.Status,
		a.AdmissionDate, a.DischargeDate,
		a.ShiftType, a.IsWeekend, string(a.SafetyType),
		a.DischargeDoctorID,
		a.DischargeType, a.FollowUpRequired, a.FollowUpDate,
		a.DischargeNote,
	)
	if err != nil {
		return errors.Storage(err, "failed to update admission")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("admission", a.ID.String())
	}

	return nil
}

// ListAdmissions lists admissions with filters
func (r *PostgresRepository) ListAdmissions(ctx context.Context, filter domain.AdmissionFilter) ([]*domain.Admission, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}

	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("a.department = $%d", argNum))
		args = append(args, filter.Department)
		argNum++
	}

	if filter.PatientID != nil {
		conditions = append(conditions, fmt.Sprintf("a.patient_id = $%d", argNum))
		args = append(args, *filter.PatientID)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM admissions a
		%s`, whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Storage(err, "failed to count admissions")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`%s
	%s
	ORDER BY a.admission_date DESC
	LIMIT $%d OFFSET $%d`, admissionSelect, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Storage(err, "failed to list admissions")
	}
	defer rows.Close()

	var admissions []*domain.Admission
	for rows.Next() {
		a, err := scanAdmission(rows)
		if err != nil {
			return nil, 0, errors.Storage(err, "failed to scan admission")
		}
		admissions = append(admissions, a)
	}

	return admissions, total, nil
}

// FindActiveAdmissions is the roster query: every active admission with
// patient identity and doctor names joined in, newest first.
func (r *PostgresRepository) FindActiveAdmissions(ctx context.Context) ([]*domain.Admission, error) {
	query := admissionSelect + `
	WHERE a.status = 'active'
	ORDER BY a.admission_date DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Storage(err, "failed to find active admissions")
	}
	defer rows.Close()

	var admissions []*domain.Admission
	for rows.Next() {
		a, err := scanAdmission(rows)
		if err != nil {
			return nil, errors.Storage(err, "failed to scan admission")
		}
		admissions = append(admissions, a)
	}

	return admissions, nil
}

// DischargeWithNote persists the discharge fields and appends the
// discharge summary to the patient's note feed in one transaction. The
// status guard on the update makes the transition race-safe: a
// concurrent discharge sees zero rows and fails the precondition.
func (r *PostgresRepository) DischargeWithNote(ctx context.Context, a *domain.Admission, noteContent string, authorID types.ID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Storage(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE admissions SET
			status = $2, discharge_date = $3, discharge_type = $4,
			follow_up_required = $5, follow_up_date = $6,
			discharge_note = NULLIF($7, ''), discharge_doctor_id = $8,
			updated_at = NOW()
		WHERE id = $1 AND status = 'active'`

	result, err := tx.Exec(ctx, query,
		a.ID, a.Status, a.DischargeDate, a.DischargeType,
		a.FollowUpRequired, a.FollowUpDate,
		a.DischargeNote, a.DischargeDoctorID,
	)
	if err != nil {
		return errors.Storage(err, "failed to discharge admission")
	}
	if result.RowsAffected() == 0 {
		return errors.Precondition("admission is not active")
	}

	if noteContent != "" {
		noteQuery := `
			INSERT INTO long_stay_notes (patient_id, content, note_type, created_by)
			VALUES ($1, $2, 'Discharge Summary', $3)`

		if _, err := tx.Exec(ctx, noteQuery, a.PatientID, noteContent, authorID); err != nil {
			return errors.Storage(err, "failed to append discharge summary")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Storage(err, "failed to commit transaction")
	}

	return nil
}
