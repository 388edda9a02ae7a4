package permission

import (
	"context"

	"github.com/xraph/aegis/id"
)

// Store defines persistence operations for the permission catalog.
type Store interface {
	// UpsertPermission registers a permission by slug. An existing entry with
	// the same slug is overwritten and keeps its ID, which is copied back
	// into p.
	UpsertPermission(ctx context.Context, p *Permission) error

	// GetPermission retrieves a permission by ID.
	GetPermission(ctx context.Context, permID id.PermissionID) (*Permission, error)

	// GetPermissionBySlug retrieves a permission by slug.
	GetPermissionBySlug(ctx context.Context, slug Slug) (*Permission, error)

	// UpdatePermission persists changes to a permission.
	UpdatePermission(ctx context.Context, p *Permission) error

	// DeletePermission removes a permission by ID.
	DeletePermission(ctx context.Context, permID id.PermissionID) error

	// ListPermissions returns permissions matching the filter, ordered by
	// module, then action, then slug.
	ListPermissions(ctx context.Context, filter *ListFilter) ([]*Permission, error)

	// CountPermissions returns the number of permissions matching the filter.
	CountPermissions(ctx context.Context, filter *ListFilter) (int64, error)
}
