package role

import (
	"context"

	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/permission"
)

// Store defines persistence operations for roles and their overrides.
type Store interface {
	// CreateRole persists a new role together with its overrides.
	CreateRole(ctx context.Context, r *Role) error

	// GetRole retrieves a role by ID with its overrides materialized.
	GetRole(ctx context.Context, roleID id.RoleID) (*Role, error)

	// GetRoleBySlug retrieves a role by slug with its overrides materialized.
	GetRoleBySlug(ctx context.Context, slug string) (*Role, error)

	// UpdateRole persists changes to a role's own fields. Overrides are
	// changed through SetOverride and RemoveOverride.
	UpdateRole(ctx context.Context, r *Role) error

	// DeleteRole removes a role and its overrides.
	DeleteRole(ctx context.Context, roleID id.RoleID) error

	// ListRoles returns roles matching the filter, ordered by creation time.
	ListRoles(ctx context.Context, filter *ListFilter) ([]*Role, error)

	// CountRoles returns the number of roles matching the filter.
	CountRoles(ctx context.Context, filter *ListFilter) (int64, error)

	// SetOverride creates or replaces the override for one slug on a role.
	SetOverride(ctx context.Context, roleID id.RoleID, slug permission.Slug, ov Override) error

	// RemoveOverride deletes the override for one slug. Removing an absent
	// override is not an error.
	RemoveOverride(ctx context.Context, roleID id.RoleID, slug permission.Slug) error

	// RemoveOverridesForPermission deletes every override on slug across
	// all roles.
	RemoveOverridesForPermission(ctx context.Context, slug permission.Slug) error
}
