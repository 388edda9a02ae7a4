package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/aegis/assignment"
	"github.com/xraph/aegis/checklog"
	"github.com/xraph/aegis/constraint"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/role"
)

// ──────────────────────────────────────────────────
// Role model
// ──────────────────────────────────────────────────

type roleModel struct {
	grove.BaseModel `grove:"table:aegis_roles"`
	ID              string         `grove:"id,pk"`
	Slug            string         `grove:"slug,notnull"`
	Name            string         `grove:"name,notnull"`
	Description     string         `grove:"description"`
	Type            string         `grove:"type,notnull"`
	Active          bool           `grove:"active,notnull"`
	MaxMembers      int            `grove:"max_members,notnull"`
	Metadata        map[string]any `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time      `grove:"created_at,notnull"`
	UpdatedAt       time.Time      `grove:"updated_at,notnull"`
}

func roleToModel(r *role.Role) *roleModel {
	return &roleModel{
		ID:          r.ID.String(),
		Slug:        r.Slug,
		Name:        r.Name,
		Description: r.Description,
		Type:        string(r.Type),
		Active:      r.Active,
		MaxMembers:  r.MaxMembers,
		Metadata:    r.Metadata,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func roleFromModel(m *roleModel) *role.Role {
	rid, _ := id.ParseRoleID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &role.Role{
		ID:          rid,
		Slug:        m.Slug,
		Name:        m.Name,
		Description: m.Description,
		Type:        role.Type(m.Type),
		Active:      m.Active,
		MaxMembers:  m.MaxMembers,
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Role override model
// ──────────────────────────────────────────────────

type overrideModel struct {
	grove.BaseModel `grove:"table:aegis_role_overrides"`
	RoleID          string            `grove:"role_id,pk"`
	PermissionSlug  string            `grove:"permission_slug,pk"`
	Granted         bool              `grove:"granted,notnull"`
	Constraints     []constraint.Expr `grove:"constraints,type:jsonb"`
	UpdatedAt       time.Time         `grove:"updated_at,notnull"`
}

func overrideToModel(roleID id.RoleID, slug permission.Slug, ov role.Override, now time.Time) overrideModel {
	return overrideModel{
		RoleID:         roleID.String(),
		PermissionSlug: string(slug),
		Granted:        ov.Granted,
		Constraints:    ov.Constraints,
		UpdatedAt:      now,
	}
}

// attachOverrides materializes override rows onto their roles.
func attachOverrides(roles []*role.Role, rows []overrideModel) {
	byID := make(map[string]*role.Role, len(roles))
	for _, r := range roles {
		byID[r.ID.String()] = r
	}
	for _, o := range rows {
		if r, ok := byID[o.RoleID]; ok {
			r.SetOverride(permission.Slug(o.PermissionSlug), role.Override{
				Granted:     o.Granted,
				Constraints: o.Constraints,
			})
		}
	}
}

// ──────────────────────────────────────────────────
// Permission model
// ──────────────────────────────────────────────────

type permissionModel struct {
	grove.BaseModel `grove:"table:aegis_permissions"`
	ID              string         `grove:"id,pk"`
	Slug            string         `grove:"slug,notnull"`
	Module          string         `grove:"module,notnull"`
	Action          string         `grove:"action,notnull"`
	Label           string         `grove:"label,notnull"`
	Description     string         `grove:"description"`
	Active          bool           `grove:"active,notnull"`
	Metadata        map[string]any `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time      `grove:"created_at,notnull"`
	UpdatedAt       time.Time      `grove:"updated_at,notnull"`
}

func permissionToModel(p *permission.Permission) *permissionModel {
	return &permissionModel{
		ID:          p.ID.String(),
		Slug:        string(p.Slug),
		Module:      p.Module,
		Action:      p.Action,
		Label:       p.Label,
		Description: p.Description,
		Active:      p.Active,
		Metadata:    p.Metadata,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func permissionFromModel(m *permissionModel) *permission.Permission {
	pid, _ := id.ParsePermissionID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &permission.Permission{
		ID:          pid,
		Slug:        permission.Slug(m.Slug),
		Module:      m.Module,
		Action:      m.Action,
		Label:       m.Label,
		Description: m.Description,
		Active:      m.Active,
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Assignment model
// ──────────────────────────────────────────────────

type assignmentModel struct {
	grove.BaseModel `grove:"table:aegis_assignments"`
	ID              string         `grove:"id,pk"`
	UserID          string         `grove:"user_id,notnull"`
	RoleID          string         `grove:"role_id,notnull"`
	AssignedAt      time.Time      `grove:"assigned_at,notnull"`
	ExpiresAt       *time.Time     `grove:"expires_at"`
	AssignedBy      string         `grove:"assigned_by"`
	Notes           string         `grove:"notes"`
	Metadata        map[string]any `grove:"metadata,type:jsonb"`
}

func assignmentToModel(a *assignment.Assignment) *assignmentModel {
	return &assignmentModel{
		ID:         a.ID.String(),
		UserID:     a.UserID,
		RoleID:     a.RoleID.String(),
		AssignedAt: a.AssignedAt,
		ExpiresAt:  a.ExpiresAt,
		AssignedBy: a.AssignedBy,
		Notes:      a.Notes,
		Metadata:   a.Metadata,
	}
}

func assignmentFromModel(m *assignmentModel) *assignment.Assignment {
	aid, _ := id.ParseAssignmentID(m.ID) //nolint:errcheck // stored IDs are always valid
	rid, _ := id.ParseRoleID(m.RoleID)   //nolint:errcheck // stored IDs are always valid
	return &assignment.Assignment{
		ID:         aid,
		UserID:     m.UserID,
		RoleID:     rid,
		AssignedAt: m.AssignedAt,
		ExpiresAt:  m.ExpiresAt,
		AssignedBy: m.AssignedBy,
		Notes:      m.Notes,
		Metadata:   m.Metadata,
	}
}

// ──────────────────────────────────────────────────
// Check log model
// ──────────────────────────────────────────────────

type checkLogModel struct {
	grove.BaseModel `grove:"table:aegis_check_logs"`
	ID              string         `grove:"id,pk"`
	UserID          string         `grove:"user_id,notnull"`
	Action          string         `grove:"action,notnull"`
	Resource        string         `grove:"resource"`
	Permission      string         `grove:"permission"`
	Allowed         bool           `grove:"allowed,notnull"`
	Decision        string         `grove:"decision,notnull"`
	Reason          string         `grove:"reason"`
	RoleID          string         `grove:"role_id"`
	RoleSlug        string         `grove:"role_slug"`
	EvalTimeNs      int64          `grove:"eval_time_ns,notnull"`
	Context         map[string]any `grove:"context,type:jsonb"`
	CreatedAt       time.Time      `grove:"created_at,notnull"`
}

func checkLogToModel(e *checklog.Entry) *checkLogModel {
	return &checkLogModel{
		ID:         e.ID.String(),
		UserID:     e.UserID,
		Action:     e.Action,
		Resource:   e.Resource,
		Permission: e.Permission,
		Allowed:    e.Allowed,
		Decision:   e.Decision,
		Reason:     e.Reason,
		RoleID:     e.RoleID,
		RoleSlug:   e.RoleSlug,
		EvalTimeNs: e.EvalTimeNs,
		Context:    e.Context,
		CreatedAt:  e.CreatedAt,
	}
}

func checkLogFromModel(m *checkLogModel) *checklog.Entry {
	lid, _ := id.ParseCheckLogID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &checklog.Entry{
		ID:         lid,
		UserID:     m.UserID,
		Action:     m.Action,
		Resource:   m.Resource,
		Permission: m.Permission,
		Allowed:    m.Allowed,
		Decision:   m.Decision,
		Reason:     m.Reason,
		RoleID:     m.RoleID,
		RoleSlug:   m.RoleSlug,
		EvalTimeNs: m.EvalTimeNs,
		Context:    m.Context,
		CreatedAt:  m.CreatedAt,
	}
}
