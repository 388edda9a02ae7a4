package assignment

import (
	"context"
	"time"

	"github.com/xraph/aegis/id"
)

// Store defines persistence operations for role assignments.
type Store interface {
	// UpsertAssignment creates the assignment for (UserID, RoleID), or
	// refreshes AssignedAt, ExpiresAt, AssignedBy, Notes and Metadata on the
	// existing one. The stored ID is copied back into a.
	UpsertAssignment(ctx context.Context, a *Assignment) error

	// GetAssignment retrieves an assignment by ID.
	GetAssignment(ctx context.Context, assID id.AssignmentID) (*Assignment, error)

	// FindAssignment retrieves the assignment binding userID to roleID.
	FindAssignment(ctx context.Context, userID string, roleID id.RoleID) (*Assignment, error)

	// DeleteAssignment removes an assignment by ID.
	DeleteAssignment(ctx context.Context, assID id.AssignmentID) error

	// ListAssignments returns assignments matching the filter, oldest first.
	ListAssignments(ctx context.Context, filter *ListFilter) ([]*Assignment, error)

	// CountAssignments returns the number of assignments matching the filter.
	CountAssignments(ctx context.Context, filter *ListFilter) (int64, error)

	// ListRolesForUser returns the IDs of roles assigned to userID that have
	// not expired at now.
	ListRolesForUser(ctx context.Context, userID string, now time.Time) ([]id.RoleID, error)

	// DeleteExpiredAssignments removes assignments that expired at or before
	// now and returns how many were removed.
	DeleteExpiredAssignments(ctx context.Context, now time.Time) (int64, error)

	// DeleteAssignmentsByRole removes all assignments for a role.
	DeleteAssignmentsByRole(ctx context.Context, roleID id.RoleID) error

	// DeleteAssignmentsByUser removes all assignments for a user.
	DeleteAssignmentsByUser(ctx context.Context, userID string) error
}
