// Package role defines the Role entity, its fixed default permission table,
// and the per-role decision rules: the three-way override resolution,
// constraint gating and scoped-action matching.
package role

import (
	"maps"
	"time"

	"github.com/xraph/aegis/constraint"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/permission"
)

// Override is an explicit grant or denial of one permission on one role,
// optionally gated by constraints that must all hold.
type Override struct {
	Granted     bool              `json:"granted" yaml:"granted"`
	Constraints []constraint.Expr `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// Role is a named policy unit. Its type supplies the default grants and the
// hierarchy level. Overrides hold at most one entry per permission slug.
type Role struct {
	ID          id.RoleID                    `json:"id" db:"id"`
	Slug        string                       `json:"slug" db:"slug"`
	Name        string                       `json:"name" db:"name"`
	Description string                       `json:"description,omitempty" db:"description"`
	Type        Type                         `json:"type" db:"type"`
	Active      bool                         `json:"active" db:"active"`
	MaxMembers  int                          `json:"max_members,omitempty" db:"max_members"`
	Overrides   map[permission.Slug]Override `json:"overrides,omitempty" db:"-"`
	Metadata    map[string]any               `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time                    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time                    `json:"updated_at" db:"updated_at"`
}

// SetOverride records an override for slug, replacing any previous entry.
func (r *Role) SetOverride(slug permission.Slug, ov Override) {
	if r.Overrides == nil {
		r.Overrides = make(map[permission.Slug]Override)
	}
	ov.Constraints = constraint.Clone(ov.Constraints)
	r.Overrides[slug] = ov
}

// RemoveOverride drops the override for slug so the default applies again.
func (r *Role) RemoveOverride(slug permission.Slug) {
	delete(r.Overrides, slug)
}

// OverrideFor returns the override recorded for slug, if any.
func (r *Role) OverrideFor(slug permission.Slug) (Override, bool) {
	ov, ok := r.Overrides[slug]
	return ov, ok
}

// Clone returns a deep copy of r.
func (r *Role) Clone() *Role {
	c := *r
	if r.Overrides != nil {
		c.Overrides = make(map[permission.Slug]Override, len(r.Overrides))
		for s, ov := range r.Overrides {
			ov.Constraints = constraint.Clone(ov.Constraints)
			c.Overrides[s] = ov
		}
	}
	if r.Metadata != nil {
		c.Metadata = maps.Clone(r.Metadata)
	}
	return &c
}

// CanManage reports whether acting outranks target in the fixed hierarchy.
// It is advisory and never consulted by Can.
func CanManage(acting, target *Role) bool {
	if acting == nil || target == nil {
		return false
	}
	return acting.Type.Level() > target.Type.Level()
}

// IsAssignable reports whether r may be assigned through the regular flow.
// super_admin is only granted through an elevated path.
func IsAssignable(r *Role) bool {
	return r != nil && r.Active && r.Type != TypeSuperAdmin
}

// ListFilter contains filters for listing roles.
type ListFilter struct {
	Type   Type   `json:"type,omitempty"`
	Active *bool  `json:"active,omitempty"`
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}
