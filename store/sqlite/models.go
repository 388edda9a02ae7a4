package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/aegis/assignment"
	"github.com/xraph/aegis/checklog"
	"github.com/xraph/aegis/constraint"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/role"
)

// encodeJSON renders v as JSON text for a TEXT column.
func encodeJSON(field string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", field, err)
	}
	return string(b), nil
}

// decodeJSON parses a TEXT column into dst. Empty text leaves dst untouched.
func decodeJSON(field, text string, dst any) error {
	if text == "" || text == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(text), dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", field, err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Role model
// ──────────────────────────────────────────────────

type roleModel struct {
	grove.BaseModel `grove:"table:aegis_roles"`
	ID              string    `grove:"id,pk"`
	Slug            string    `grove:"slug,notnull"`
	Name            string    `grove:"name,notnull"`
	Description     string    `grove:"description"`
	Type            string    `grove:"type,notnull"`
	Active          bool      `grove:"active,notnull"`
	MaxMembers      int       `grove:"max_members,notnull"`
	Metadata        string    `grove:"metadata"` // JSON text
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func roleToModel(r *role.Role) (*roleModel, error) {
	metadata, err := encodeJSON("role metadata", r.Metadata)
	if err != nil {
		return nil, err
	}
	return &roleModel{
		ID:          r.ID.String(),
		Slug:        r.Slug,
		Name:        r.Name,
		Description: r.Description,
		Type:        string(r.Type),
		Active:      r.Active,
		MaxMembers:  r.MaxMembers,
		Metadata:    metadata,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func roleFromModel(m *roleModel) (*role.Role, error) {
	rid, _ := id.ParseRoleID(m.ID) //nolint:errcheck // stored IDs are always valid
	r := &role.Role{
		ID:          rid,
		Slug:        m.Slug,
		Name:        m.Name,
		Description: m.Description,
		Type:        role.Type(m.Type),
		Active:      m.Active,
		MaxMembers:  m.MaxMembers,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if err := decodeJSON("role metadata", m.Metadata, &r.Metadata); err != nil {
		return nil, err
	}
	return r, nil
}

// ──────────────────────────────────────────────────
// Role override model
// ──────────────────────────────────────────────────

type overrideModel struct {
	grove.BaseModel `grove:"table:aegis_role_overrides"`
	RoleID          string    `grove:"role_id,pk"`
	PermissionSlug  string    `grove:"permission_slug,pk"`
	Granted         bool      `grove:"granted,notnull"`
	Constraints     string    `grove:"constraints"` // JSON text
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func overrideToModel(roleID id.RoleID, slug permission.Slug, ov role.Override, now time.Time) (overrideModel, error) {
	constraints, err := encodeJSON("override constraints", ov.Constraints)
	if err != nil {
		return overrideModel{}, err
	}
	return overrideModel{
		RoleID:         roleID.String(),
		PermissionSlug: string(slug),
		Granted:        ov.Granted,
		Constraints:    constraints,
		UpdatedAt:      now,
	}, nil
}

// attachOverrides materializes override rows onto their roles.
func attachOverrides(roles []*role.Role, rows []overrideModel) error {
	byID := make(map[string]*role.Role, len(roles))
	for _, r := range roles {
		byID[r.ID.String()] = r
	}
	for _, o := range rows {
		r, ok := byID[o.RoleID]
		if !ok {
			continue
		}
		var exprs []constraint.Expr
		if err := decodeJSON("override constraints", o.Constraints, &exprs); err != nil {
			return err
		}
		r.SetOverride(permission.Slug(o.PermissionSlug), role.Override{
			Granted:     o.Granted,
			Constraints: exprs,
		})
	}
	return nil
}

// ──────────────────────────────────────────────────
// Permission model
// ──────────────────────────────────────────────────

type permissionModel struct {
	grove.BaseModel `grove:"table:aegis_permissions"`
	ID              string    `grove:"id,pk"`
	Slug            string    `grove:"slug,notnull"`
	Module          string    `grove:"module,notnull"`
	Action          string    `grove:"action,notnull"`
	Label           string    `grove:"label,notnull"`
	Description     string    `grove:"description"`
	Active          bool      `grove:"active,notnull"`
	Metadata        string    `grove:"metadata"` // JSON text
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func permissionToModel(p *permission.Permission) (*permissionModel, error) {
	metadata, err := encodeJSON("permission metadata", p.Metadata)
	if err != nil {
		return nil, err
	}
	return &permissionModel{
		ID:          p.ID.String(),
		Slug:        string(p.Slug),
		Module:      p.Module,
		Action:      p.Action,
		Label:       p.Label,
		Description: p.Description,
		Active:      p.Active,
		Metadata:    metadata,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

func permissionFromModel(m *permissionModel) (*permission.Permission, error) {
	pid, _ := id.ParsePermissionID(m.ID) //nolint:errcheck // stored IDs are always valid
	p := &permission.Permission{
		ID:          pid,
		Slug:        permission.Slug(m.Slug),
		Module:      m.Module,
		Action:      m.Action,
		Label:       m.Label,
		Description: m.Description,
		Active:      m.Active,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if err := decodeJSON("permission metadata", m.Metadata, &p.Metadata); err != nil {
		return nil, err
	}
	return p, nil
}

// ──────────────────────────────────────────────────
// Assignment model
// ──────────────────────────────────────────────────

type assignmentModel struct {
	grove.BaseModel `grove:"table:aegis_assignments"`
	ID              string     `grove:"id,pk"`
	UserID          string     `grove:"user_id,notnull"`
	RoleID          string     `grove:"role_id,notnull"`
	AssignedAt      time.Time  `grove:"assigned_at,notnull"`
	ExpiresAt       *time.Time `grove:"expires_at"`
	AssignedBy      string     `grove:"assigned_by"`
	Notes           string     `grove:"notes"`
	Metadata        string     `grove:"metadata"` // JSON text
}

func assignmentToModel(a *assignment.Assignment) (*assignmentModel, error) {
	metadata, err := encodeJSON("assignment metadata", a.Metadata)
	if err != nil {
		return nil, err
	}
	return &assignmentModel{
		ID:         a.ID.String(),
		UserID:     a.UserID,
		RoleID:     a.RoleID.String(),
		AssignedAt: a.AssignedAt,
		ExpiresAt:  a.ExpiresAt,
		AssignedBy: a.AssignedBy,
		Notes:      a.Notes,
		Metadata:   metadata,
	}, nil
}

func assignmentFromModel(m *assignmentModel) (*assignment.Assignment, error) {
	aid, _ := id.ParseAssignmentID(m.ID) //nolint:errcheck // stored IDs are always valid
	rid, _ := id.ParseRoleID(m.RoleID)   //nolint:errcheck // stored IDs are always valid
	a := &assignment.Assignment{
		ID:         aid,
		UserID:     m.UserID,
		RoleID:     rid,
		AssignedAt: m.AssignedAt,
		ExpiresAt:  m.ExpiresAt,
		AssignedBy: m.AssignedBy,
		Notes:      m.Notes,
	}
	if err := decodeJSON("assignment metadata", m.Metadata, &a.Metadata); err != nil {
		return nil, err
	}
	return a, nil
}

// ──────────────────────────────────────────────────
// Check log model
// ──────────────────────────────────────────────────

type checkLogModel struct {
	grove.BaseModel `grove:"table:aegis_check_logs"`
	ID              string    `grove:"id,pk"`
	UserID          string    `grove:"user_id,notnull"`
	Action          string    `grove:"action,notnull"`
	Resource        string    `grove:"resource"`
	Permission      string    `grove:"permission"`
	Allowed         bool      `grove:"allowed,notnull"`
	Decision        string    `grove:"decision,notnull"`
	Reason          string    `grove:"reason"`
	RoleID          string    `grove:"role_id"`
	RoleSlug        string    `grove:"role_slug"`
	EvalTimeNs      int64     `grove:"eval_time_ns,notnull"`
	Context         string    `grove:"context"` // JSON text
	CreatedAt       time.Time `grove:"created_at,notnull"`
}

func checkLogToModel(e *checklog.Entry) (*checkLogModel, error) {
	ctxText, err := encodeJSON("check log context", e.Context)
	if err != nil {
		return nil, err
	}
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
		Context:    ctxText,
		CreatedAt:  e.CreatedAt,
	}, nil
}

func checkLogFromModel(m *checkLogModel) (*checklog.Entry, error) {
	lid, _ := id.ParseCheckLogID(m.ID) //nolint:errcheck // stored IDs are always valid
	e := &checklog.Entry{
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
		CreatedAt:  m.CreatedAt,
	}
	if err := decodeJSON("check log context", m.Context, &e.Context); err != nil {
		return nil, err
	}
	return e, nil
}
