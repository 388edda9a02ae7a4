// Package assignment defines the Assignment entity, a time-bounded binding
// of a user to a role.
package assignment

import (
	"time"

	"github.com/xraph/aegis/id"
)

// Assignment binds a user to a role. There is at most one assignment per
// (user, role) pair. An assignment past its expiry is ignored by evaluation
// without having to be deleted.
type Assignment struct {
	ID         id.AssignmentID `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	RoleID     id.RoleID       `json:"role_id" db:"role_id"`
	AssignedAt time.Time       `json:"assigned_at" db:"assigned_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	AssignedBy string          `json:"assigned_by,omitempty" db:"assigned_by"`
	Notes      string          `json:"notes,omitempty" db:"notes"`
	Metadata   map[string]any  `json:"metadata,omitempty" db:"metadata"`
}

// Active reports whether the assignment is in force at now.
func (a *Assignment) Active(now time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// ListFilter contains filters for listing assignments.
type ListFilter struct {
	UserID string     `json:"user_id,omitempty"`
	RoleID *id.RoleID `json:"role_id,omitempty"`
	// ActiveAt, when set, keeps only assignments in force at that instant.
	ActiveAt *time.Time `json:"active_at,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}
