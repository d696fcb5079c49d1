package notes

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// Repository provides database operations for the note feed
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new notes repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts a note. The ID comes from the database sequence and
// is scanned back along with the timestamps.
func (r *Repository) Append(ctx context.Context, n *Note) error {
	query := `
		INSERT INTO long_stay_notes (patient_id, content, note_type, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		n.PatientID, n.Content, n.Type, n.CreatedBy,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)

	if err != nil {
		if strings.Contains(err.Error(), "foreign key") {
			return errors.NotFound("patient", n.PatientID.String())
		}
		return errors.Storage(err, "failed to append note")
	}

	return nil
}

// ListByPatient returns a patient's note feed, newest first
func (r *Repository) ListByPatient(ctx context.Context, patientID types.ID, limit, offset int) ([]Note, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM long_stay_notes WHERE patient_id = $1`, patientID,
	).Scan(&total)
	if err != nil {
		return nil, 0, errors.Storage(err, "failed to count notes")
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT n.id, n.patient_id, n.content, n.note_type,
			n.created_by, COALESCE(u.name, ''),
			n.created_at, n.updated_at
		FROM long_stay_notes n
		LEFT JOIN users u ON u.id = n.created_by
		WHERE n.patient_id = $1
		ORDER BY n.created_at DESC, n.id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, patientID, limit, offset)
	if err != nil {
		return nil, 0, errors.Storage(err, "failed to list notes")
	}
	defer rows.Close()

	var result []Note
	for rows.Next() {
		var n Note
		err := rows.Scan(
			&n.ID, &n.PatientID, &n.Content, &n.Type,
			&n.CreatedBy, &n.CreatedByName,
			&n.CreatedAt, &n.UpdatedAt,
		)
		if err != nil {
			return nil, 0, errors.Storage(err, "failed to scan note")
		}
		result = append(result, n)
	}

	return result, total, nil
}
