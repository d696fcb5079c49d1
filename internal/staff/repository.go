package staff

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// Repository provides database operations for staff accounts
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new staff repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create creates a staff member
func (r *Repository) Create(ctx context.Context, m *Member) error {
	query := `
		INSERT INTO users (id, name, email, role, department, specialty, is_active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		m.ID, m.Name, m.Email, m.Role, m.Department, m.Specialty, m.IsActive,
	).Scan(&m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("staff member with this email already exists")
		}
		return errors.Storage(err, "failed to create staff member")
	}

	return nil
}

// Get retrieves a staff member by ID
func (r *Repository) Get(ctx context.Context, id types.ID) (*Member, error) {
	query := `
		SELECT id, name, email, role, COALESCE(department, ''), COALESCE(specialty, ''),
			is_active, created_at, updated_at
		FROM users
		WHERE id = $1`

	m := &Member{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.Name, &m.Email, &m.Role, &m.Department, &m.Specialty,
		&m.IsActive, &m.CreatedAt, &m.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("staff member", id.String())
	}
	if err != nil {
		return nil, errors.Storage(err, "failed to get staff member")
	}

	return m, nil
}

// Update updates a staff member
func (r *Repository) Update(ctx context.Context, m *Member) error {
	query := `
		UPDATE users SET
			name = $2, email = $3, role = $4,
			department = NULLIF($5, ''), specialty = NULLIF($6, ''), is_active = $7
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query,
		m.ID, m.Name, m.Email, m.Role, m.Department, m.Specialty, m.IsActive,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("staff member with this email already exists")
		}
		return errors.Storage(err, "failed to update staff member")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("staff member", m.ID.String())
	}

	return nil
}

// Deactivate marks a staff member inactive
func (r *Repository) Deactivate(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx, `UPDATE users SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return errors.Storage(err, "failed to deactivate staff member")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("staff member", id.String())
	}

	return nil
}

// List lists staff members with optional filters
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Member, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argNum))
		args = append(args, *filter.Role)
		argNum++
	}

	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("department = $%d", argNum))
		args = append(args, filter.Department)
		argNum++
	}

	if filter.ActiveOnly {
		conditions = append(conditions, "is_active = true")
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM users %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Storage(err, "failed to count staff")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT id, name, email, role, COALESCE(department, ''), COALESCE(specialty, ''),
			is_active, created_at, updated_at
		FROM users
		%s
		ORDER BY name
		LIMIT $%d OFFSET $%d`, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Storage(err, "failed to list staff")
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		err := rows.Scan(
			&m.ID, &m.Name, &m.Email, &m.Role, &m.Department, &m.Specialty,
			&m.IsActive, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, 0, errors.Storage(err, "failed to scan staff member")
		}
		members = append(members, m)
	}

	return members, total, nil
}
