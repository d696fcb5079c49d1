package staff

import (
	"fmt"
	"strings"
	"time"

	"github.com/drmas001/imd-v2.8/internal/auth"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// Member is a staff account. Accounts are deactivated rather than
// deleted because admissions, consultations, and notes reference them.
type Member struct {
	ID         types.ID  `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       auth.Role `json:"role"`
	Department string    `json:"department,omitempty"`
	Specialty  string    `json:"specialty,omitempty"`
	IsActive   bool      `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an active staff member
func New(name, email string, role auth.Role) (*Member, error) {
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid email is required")
	}
	if !auth.IsValidRole(string(role)) {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	return &Member{
		ID:       types.NewID(),
		Name:     name,
		Email:    email,
		Role:     role,
		IsActive: true,
	}, nil
}

// CreateRequest is the request to create a staff member
type CreateRequest struct {
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       auth.Role `json:"role"`
	Department string    `json:"department,omitempty"`
	Specialty  string    `json:"specialty,omitempty"`
}

// UpdateRequest is the request to update a staff member
type UpdateRequest struct {
	Name       *string    `json:"name,omitempty"`
	Email      *string    `json:"email,omitempty"`
	Role       *auth.Role `json:"role,omitempty"`
	Department *string    `json:"department,omitempty"`
	Specialty  *string    `json:"specialty,omitempty"`
	IsActive   *bool      `json:"is_active,omitempty"`
}

// ListFilter defines filters for listing staff
type ListFilter struct {
	Role       *auth.Role `json:"role,omitempty"`
	Department string     `json:"department,omitempty"`
	ActiveOnly bool       `json:"active_only,omitempty"`
	Search     string     `json:"search,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Offset     int        `json:"offset,omitempty"`
}
