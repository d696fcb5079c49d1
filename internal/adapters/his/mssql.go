package his

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver

	"github.com/drmas001/imd-v2.8/internal/shared/config"
)

const (
	patientTable   = "dbo.Patients"
	admissionTable = "dbo.Admissions"
	dischargeTable = "dbo.Discharges"
)

// MSSQLSource reads from the legacy HIS SQL Server database
type MSSQLSource struct {
	cfg config.HISConfig
	db  *sql.DB
}

func NewMSSQLSource(cfg config.HISConfig) *MSSQLSource {
	return &MSSQLSource{cfg: cfg}
}

func (s *MSSQLSource) Open(ctx context.Context) error {
	db, err := sql.Open("sqlserver", s.cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open HIS database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping HIS database: %w", err)
	}

	s.db = db
	return nil
}

func (s *MSSQLSource) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *MSSQLSource) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("HIS source not open")
	}
	return s.db.PingContext(ctx)
}

func (s *MSSQLSource) FetchAdmissions(ctx context.Context, since time.Time) ([]AdmissionRow, error) {
	query := fmt.Sprintf(`
		SELECT
			a.AdmissionID,
			p.MRN,
			p.FullName,
			p.DateOfBirth,
			p.Gender,
			a.Ward,
			a.AdmissionDiagnosis,
			a.AttendingPhysician,
			a.AdmittedAt,
			a.RecordedAt
		FROM %s a
		INNER JOIN %s p ON a.PatientID = p.PatientID
		WHERE a.Facility = @facility
		  AND a.RecordedAt > @since
		ORDER BY a.RecordedAt ASC
	`, admissionTable, patientTable)

	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("facility", s.cfg.Facility),
		sql.Named("since", since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query HIS admissions: %w", err)
	}
	defer rows.Close()

	var result []AdmissionRow
	for rows.Next() {
		var row AdmissionRow
		var dob sql.NullTime
		var gender, diagnosis, doctor sql.NullString

		err := rows.Scan(
			&row.ExternalID,
			&row.MRN,
			&row.PatientName,
			&dob,
			&gender,
			&row.Department,
			&diagnosis,
			&doctor,
			&row.AdmittedAt,
			&row.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan HIS admission: %w", err)
		}

		if dob.Valid {
			row.DateOfBirth = &dob.Time
		}
		if gender.Valid {
			row.GenderCode = gender.String
		}
		if diagnosis.Valid {
			row.Diagnosis = diagnosis.String
		}
		if doctor.Valid {
			row.DoctorName = doctor.String
		}

		result = append(result, row)
	}

	return result, rows.Err()
}

func (s *MSSQLSource) FetchDischarges(ctx context.Context, since time.Time) ([]DischargeRow, error) {
	query := fmt.Sprintf(`
		SELECT
			d.DischargeID,
			p.MRN,
			d.Disposition,
			d.FollowUpRequired,
			d.FollowUpDate,
			d.Summary,
			d.DischargedAt,
			d.RecordedAt
		FROM %s d
		INNER JOIN %s p ON d.PatientID = p.PatientID
		WHERE d.Facility = @facility
		  AND d.RecordedAt > @since
		ORDER BY d.RecordedAt ASC
	`, dischargeTable, patientTable)

	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("facility", s.cfg.Facility),
		sql.Named("since", since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query HIS discharges: %w", err)
	}
	defer rows.Close()

	var result []DischargeRow
	for rows.Next() {
		var row DischargeRow
		var disposition, summary sql.NullString
		var followUp sql.NullBool
		var followUpDate sql.NullTime

		err := rows.Scan(
			&row.ExternalID,
			&row.MRN,
			&disposition,
			&followUp,
			&followUpDate,
			&summary,
			&row.DischargedAt,
			&row.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan HIS discharge: %w", err)
		}

		if disposition.Valid {
			row.DischargeCode = disposition.String
		}
		if followUp.Valid {
			row.FollowUpRequired = followUp.Bool
		}
		if followUpDate.Valid {
			row.FollowUpDate = &followUpDate.Time
		}
		if summary.Valid {
			row.Summary = summary.String
		}

		result = append(result, row)
	}

	return result, rows.Err()
}

// Verify interface implementation
var _ Source = (*MSSQLSource)(nil)
