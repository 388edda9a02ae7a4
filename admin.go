package aegis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xraph/aegis/constraint"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/role"
	"github.com/xraph/aegis/store"
)

// CreateRole validates and persists a new role together with any overrides
// it carries. A nil ID is filled in.
func (e *Engine) CreateRole(ctx context.Context, r *role.Role) error {
	if err := validateRole(r); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for slug, ov := range r.Overrides {
		if err := e.checkOverride(ctx, slug, ov.Constraints); err != nil {
			return fmt.Errorf("aegis: role %s: %w", r.Slug, err)
		}
	}

	if r.ID.IsNil() {
		r.ID = id.NewRoleID()
	}
	now := e.now()
	r.CreatedAt, r.UpdatedAt = now, now

	if err := e.store.CreateRole(ctx, r); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("%w: %s", ErrDuplicateRole, r.Slug)
		}
		return fmt.Errorf("aegis: create role %s: %w", r.Slug, err)
	}

	e.logger.Info("aegis: role created",
		slog.String("role", r.Slug),
		slog.String("type", r.Type.String()),
	)
	if e.plugins != nil {
		e.plugins.EmitRoleCreated(ctx, r)
	}
	return nil
}

// GetRole returns a role with its overrides.
func (e *Engine) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	r, err := e.store.GetRole(ctx, roleID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("aegis: get role %s: %w", roleID, err)
	}
	return r, nil
}

// GetRoleBySlug returns a role by its slug.
func (e *Engine) GetRoleBySlug(ctx context.Context, slug string) (*role.Role, error) {
	r, err := e.store.GetRoleBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("aegis: get role %s: %w", slug, err)
	}
	return r, nil
}

// ListRoles returns roles matching the filter. A nil filter lists all.
func (e *Engine) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	return e.store.ListRoles(ctx, filter)
}

// UpdateRole persists changes to a role's own fields. Overrides are changed
// through GrantPermission, DenyPermission and RevokePermission.
func (e *Engine) UpdateRole(ctx context.Context, r *role.Role) error {
	if err := validateRole(r); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateRole(ctx, r)
}

func (e *Engine) updateRole(ctx context.Context, r *role.Role) error {
	r.UpdatedAt = e.now()
	if err := e.store.UpdateRole(ctx, r); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("%w: %s", ErrRoleNotFound, r.ID)
		case errors.Is(err, store.ErrDuplicate):
			return fmt.Errorf("%w: %s", ErrDuplicateRole, r.Slug)
		}
		return fmt.Errorf("aegis: update role %s: %w", r.Slug, err)
	}

	e.logger.Info("aegis: role updated",
		slog.String("role", r.Slug),
		slog.Bool("active", r.Active),
	)
	e.invalidateAll(ctx)
	if e.plugins != nil {
		e.plugins.EmitRoleUpdated(ctx, r)
	}
	return nil
}

// ActivateRole makes a role eligible for evaluation and assignment.
func (e *Engine) ActivateRole(ctx context.Context, roleID id.RoleID) error {
	return e.setRoleActive(ctx, roleID, true)
}

// DeactivateRole removes a role from evaluation without touching its
// assignments.
func (e *Engine) DeactivateRole(ctx context.Context, roleID id.RoleID) error {
	return e.setRoleActive(ctx, roleID, false)
}

func (e *Engine) setRoleActive(ctx context.Context, roleID id.RoleID, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if r.Active == active {
		return nil
	}
	r.Active = active
	return e.updateRole(ctx, r)
}

// DeleteRole removes a role, its overrides and every assignment to it.
func (e *Engine) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := e.store.DeleteAssignmentsByRole(ctx, roleID); err != nil {
		return fmt.Errorf("aegis: delete assignments for role %s: %w", r.Slug, err)
	}
	if err := e.store.DeleteRole(ctx, roleID); err != nil {
		return fmt.Errorf("aegis: delete role %s: %w", r.Slug, err)
	}

	e.logger.Info("aegis: role deleted", slog.String("role", r.Slug))
	e.invalidateAll(ctx)
	if e.plugins != nil {
		e.plugins.EmitRoleDeleted(ctx, roleID)
	}
	return nil
}

// GrantPermission records an explicit grant of slug on a role, replacing
// any earlier override. With constraints the grant applies only when all of
// them hold.
func (e *Engine) GrantPermission(ctx context.Context, roleID id.RoleID, slug permission.Slug, constraints ...constraint.Expr) error {
	return e.setOverride(ctx, roleID, slug, role.Override{Granted: true, Constraints: constraints})
}

// DenyPermission records an explicit denial of slug on a role, replacing
// any earlier override. With constraints the denial applies only when all
// of them hold.
func (e *Engine) DenyPermission(ctx context.Context, roleID id.RoleID, slug permission.Slug, constraints ...constraint.Expr) error {
	return e.setOverride(ctx, roleID, slug, role.Override{Granted: false, Constraints: constraints})
}

func (e *Engine) setOverride(ctx context.Context, roleID id.RoleID, slug permission.Slug, ov role.Override) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkOverride(ctx, slug, ov.Constraints); err != nil {
		return err
	}
	r, err := e.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := e.store.SetOverride(ctx, roleID, slug, ov); err != nil {
		return fmt.Errorf("aegis: set override %s on role %s: %w", slug, r.Slug, err)
	}

	e.logger.Info("aegis: permission override set",
		slog.String("role", r.Slug),
		slog.String("permission", slug.String()),
		slog.Bool("granted", ov.Granted),
		slog.Int("constraints", len(ov.Constraints)),
	)
	e.invalidateAll(ctx)
	if e.plugins != nil {
		if ov.Granted {
			e.plugins.EmitPermissionGranted(ctx, roleID, slug, ov.Constraints)
		} else {
			e.plugins.EmitPermissionDenied(ctx, roleID, slug, ov.Constraints)
		}
	}
	return nil
}

// RevokePermission removes the override for slug so the role type's
// default applies again. Revoking an absent override is not an error.
func (e *Engine) RevokePermission(ctx context.Context, roleID id.RoleID, slug permission.Slug) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if _, ok := r.OverrideFor(slug); !ok {
		return nil
	}
	if err := e.store.RemoveOverride(ctx, roleID, slug); err != nil {
		return fmt.Errorf("aegis: remove override %s on role %s: %w", slug, r.Slug, err)
	}

	e.logger.Info("aegis: permission override removed",
		slog.String("role", r.Slug),
		slog.String("permission", slug.String()),
	)
	e.invalidateAll(ctx)
	if e.plugins != nil {
		e.plugins.EmitPermissionRevoked(ctx, roleID, slug)
	}
	return nil
}

// checkOverride rejects overrides on slugs outside the catalog and
// malformed constraints.
func (e *Engine) checkOverride(ctx context.Context, slug permission.Slug, constraints []constraint.Expr) error {
	if err := e.requirePermission(ctx, slug); err != nil {
		return err
	}
	return constraint.ValidateAll(constraints)
}

func validateRole(r *role.Role) error {
	if r == nil {
		return fmt.Errorf("%w: nil role", ErrInvalidRole)
	}
	r.Slug = strings.TrimSpace(r.Slug)
	if r.Slug == "" {
		return fmt.Errorf("%w: slug is required", ErrInvalidRole)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidRole, role.ErrUnknownType, r.Type)
	}
	if r.MaxMembers < 0 {
		return fmt.Errorf("%w: max members must not be negative", ErrInvalidRole)
	}
	if r.Name == "" {
		r.Name = r.Slug
	}
	return nil
}
