// Package plugin defines the plugin system for Aegis.
// Plugins are notified of lifecycle events (check performed, role created,
// permission granted, and so on) and can react with audit trails, metrics
// or notifications.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/xraph/aegis/assignment"
	"github.com/xraph/aegis/constraint"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/role"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Check lifecycle hooks
// ──────────────────────────────────────────────────

// BeforeCheck is called before an authorization check is evaluated.
// The req parameter is *aegis.CheckRequest (passed as any to avoid import cycle).
type BeforeCheck interface {
	OnBeforeCheck(ctx context.Context, req any) error
}

// AfterCheck is called after an authorization check completes.
// The req parameter is *aegis.CheckRequest; result is *aegis.CheckResult.
type AfterCheck interface {
	OnAfterCheck(ctx context.Context, req, result any) error
}

// ──────────────────────────────────────────────────
// Role lifecycle hooks
// ──────────────────────────────────────────────────

// RoleCreated is called after a role is created.
type RoleCreated interface {
	OnRoleCreated(ctx context.Context, r *role.Role) error
}

// RoleUpdated is called after a role's own fields change, including
// activation and deactivation.
type RoleUpdated interface {
	OnRoleUpdated(ctx context.Context, r *role.Role) error
}

// RoleDeleted is called after a role is deleted.
type RoleDeleted interface {
	OnRoleDeleted(ctx context.Context, roleID id.RoleID) error
}

// ──────────────────────────────────────────────────
// Catalog lifecycle hooks
// ──────────────────────────────────────────────────

// PermissionRegistered is called after a permission is registered or
// re-registered in the catalog.
type PermissionRegistered interface {
	OnPermissionRegistered(ctx context.Context, p *permission.Permission) error
}

// PermissionDeleted is called after a permission is removed from the catalog.
type PermissionDeleted interface {
	OnPermissionDeleted(ctx context.Context, slug permission.Slug) error
}

// ──────────────────────────────────────────────────
// Override lifecycle hooks
// ──────────────────────────────────────────────────

// PermissionGranted is called after an explicit grant is set on a role.
type PermissionGranted interface {
	OnPermissionGranted(ctx context.Context, roleID id.RoleID, slug permission.Slug, constraints []constraint.Expr) error
}

// PermissionDenied is called after an explicit denial is set on a role.
type PermissionDenied interface {
	OnPermissionDenied(ctx context.Context, roleID id.RoleID, slug permission.Slug, constraints []constraint.Expr) error
}

// PermissionRevoked is called after an override is removed from a role.
type PermissionRevoked interface {
	OnPermissionRevoked(ctx context.Context, roleID id.RoleID, slug permission.Slug) error
}

// ──────────────────────────────────────────────────
// Assignment lifecycle hooks
// ──────────────────────────────────────────────────

// RoleAssigned is called after a role is assigned to a user.
type RoleAssigned interface {
	OnRoleAssigned(ctx context.Context, a *assignment.Assignment) error
}

// RoleUnassigned is called after a role is unassigned from a user.
type RoleUnassigned interface {
	OnRoleUnassigned(ctx context.Context, a *assignment.Assignment) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
