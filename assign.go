package aegis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/aegis/assignment"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/role"
	"github.com/xraph/aegis/store"
)

// AssignRequest binds a user to a role.
type AssignRequest struct {
	UserID     string         `json:"user_id"`
	RoleID     id.RoleID      `json:"role_id"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
	AssignedBy string         `json:"assigned_by,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// AssignRole binds a user to an assignable role. Assigning a role the user
// already holds refreshes the existing assignment.
func (e *Engine) AssignRole(ctx context.Context, req AssignRequest) (*assignment.Assignment, error) {
	return e.assign(ctx, req, false)
}

// ElevateRole is the privileged assignment path. It may bind super_admin,
// which AssignRole refuses. The role must still be active.
func (e *Engine) ElevateRole(ctx context.Context, req AssignRequest) (*assignment.Assignment, error) {
	return e.assign(ctx, req, true)
}

func (e *Engine) assign(ctx context.Context, req AssignRequest, elevated bool) (*assignment.Assignment, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("aegis: assign role: user id is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.GetRole(ctx, req.RoleID)
	if err != nil {
		return nil, err
	}
	if !r.Active || (!elevated && !role.IsAssignable(r)) {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotAssignable, r.Slug)
	}

	now := e.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidExpiry, req.ExpiresAt.Format(time.RFC3339))
	}

	if r.MaxMembers > 0 {
		if err := e.checkCapacity(ctx, r, req.UserID, now); err != nil {
			return nil, err
		}
	}

	a := &assignment.Assignment{
		ID:         id.NewAssignmentID(),
		UserID:     req.UserID,
		RoleID:     r.ID,
		AssignedAt: now,
		ExpiresAt:  req.ExpiresAt,
		AssignedBy: req.AssignedBy,
		Notes:      req.Notes,
		Metadata:   req.Metadata,
	}
	if err := e.store.UpsertAssignment(ctx, a); err != nil {
		return nil, fmt.Errorf("aegis: assign role %s to %s: %w", r.Slug, req.UserID, err)
	}

	e.logger.Info("aegis: role assigned",
		slog.String("user", req.UserID),
		slog.String("role", r.Slug),
		slog.Bool("elevated", elevated),
	)
	e.invalidateUser(ctx, req.UserID)
	if e.plugins != nil {
		e.plugins.EmitRoleAssigned(ctx, a)
	}
	return a, nil
}

// checkCapacity counts assignments in force, ignoring the user's own so a
// refresh never trips the limit.
func (e *Engine) checkCapacity(ctx context.Context, r *role.Role, userID string, now time.Time) error {
	roleID := r.ID
	current, err := e.store.ListAssignments(ctx, &assignment.ListFilter{
		RoleID:   &roleID,
		ActiveAt: &now,
	})
	if err != nil {
		return fmt.Errorf("aegis: count members of %s: %w", r.Slug, err)
	}
	members := 0
	for _, a := range current {
		if a.UserID != userID {
			members++
		}
	}
	if members >= r.MaxMembers {
		return fmt.Errorf("%w: %s allows %d", ErrMaxMembersExceeded, r.Slug, r.MaxMembers)
	}
	return nil
}

// RevokeRole removes the assignment binding userID to roleID.
func (e *Engine) RevokeRole(ctx context.Context, userID string, roleID id.RoleID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.store.FindAssignment(ctx, userID, roleID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s/%s", ErrAssignmentNotFound, userID, roleID)
	}
	if err != nil {
		return fmt.Errorf("aegis: find assignment: %w", err)
	}
	if err := e.store.DeleteAssignment(ctx, a.ID); err != nil {
		return fmt.Errorf("aegis: revoke role %s from %s: %w", roleID, userID, err)
	}

	e.logger.Info("aegis: role unassigned",
		slog.String("user", userID),
		slog.String("role", roleID.String()),
	)
	e.invalidateUser(ctx, userID)
	if e.plugins != nil {
		e.plugins.EmitRoleUnassigned(ctx, a)
	}
	return nil
}

// ListAssignments returns assignments matching the filter, expired ones
// included unless the filter sets ActiveAt.
func (e *Engine) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	return e.store.ListAssignments(ctx, filter)
}

// PurgeExpiredAssignments deletes assignments that have expired. Evaluation
// already ignores them, so purging only reclaims storage.
func (e *Engine) PurgeExpiredAssignments(ctx context.Context) (int64, error) {
	n, err := e.store.DeleteExpiredAssignments(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("aegis: purge expired assignments: %w", err)
	}
	if n > 0 {
		e.logger.Info("aegis: expired assignments purged", slog.Int64("count", n))
	}
	return n, nil
}
