package policyfile

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/role"
)

// Result summarises what Apply changed.
type Result struct {
	Permissions  int `json:"permissions"`
	RolesCreated int `json:"roles_created"`
	RolesUpdated int `json:"roles_updated"`
	Overrides    int `json:"overrides"`
	Assignments  int `json:"assignments"`
}

// Apply runs f through eng's admin API, so catalog and constraint checks
// apply exactly as for direct calls. It is additive: roles are created or
// updated by slug, declared overrides replace earlier ones on the same
// permission, and nothing absent from the file is removed. Apply stops at
// the first error.
func Apply(ctx context.Context, eng *aegis.Engine, f *File) (*Result, error) {
	res := &Result{}

	if f.SeedDefaults {
		if err := eng.SeedDefaults(ctx); err != nil {
			return res, err
		}
	}

	for _, p := range f.Permissions {
		slug := permission.Slug(p.Slug)
		if _, err := eng.RegisterPermission(ctx, slug, p.Description); err != nil {
			return res, err
		}
		setActive := eng.ActivatePermission
		if p.Inactive {
			setActive = eng.DeactivatePermission
		}
		if err := setActive(ctx, slug); err != nil {
			return res, err
		}
		res.Permissions++
	}

	for _, decl := range f.Roles {
		r, created, err := upsertRole(ctx, eng, decl)
		if err != nil {
			return res, err
		}
		if created {
			res.RolesCreated++
		} else {
			res.RolesUpdated++
		}
		for _, ov := range decl.Grant {
			if err := eng.GrantPermission(ctx, r.ID, permission.Slug(ov.Permission), ov.Constraints...); err != nil {
				return res, fmt.Errorf("role %s: grant %s: %w", decl.Slug, ov.Permission, err)
			}
			res.Overrides++
		}
		for _, ov := range decl.Deny {
			if err := eng.DenyPermission(ctx, r.ID, permission.Slug(ov.Permission), ov.Constraints...); err != nil {
				return res, fmt.Errorf("role %s: deny %s: %w", decl.Slug, ov.Permission, err)
			}
			res.Overrides++
		}
	}

	for _, a := range f.Assignments {
		r, err := eng.GetRoleBySlug(ctx, a.Role)
		if err != nil {
			return res, fmt.Errorf("assignment %s: %w", a.User, err)
		}
		req := aegis.AssignRequest{
			UserID:     a.User,
			RoleID:     r.ID,
			ExpiresAt:  a.ExpiresAt,
			AssignedBy: "policyfile",
			Notes:      a.Notes,
		}
		if a.Elevated {
			_, err = eng.ElevateRole(ctx, req)
		} else {
			_, err = eng.AssignRole(ctx, req)
		}
		if err != nil {
			return res, fmt.Errorf("assignment %s: %w", a.User, err)
		}
		res.Assignments++
	}

	return res, nil
}

func upsertRole(ctx context.Context, eng *aegis.Engine, decl Role) (*role.Role, bool, error) {
	typ, err := role.ParseType(decl.Type)
	if err != nil {
		return nil, false, err
	}

	existing, err := eng.GetRoleBySlug(ctx, decl.Slug)
	switch {
	case errors.Is(err, aegis.ErrRoleNotFound):
		r := &role.Role{
			Slug:        decl.Slug,
			Name:        decl.Name,
			Description: decl.Description,
			Type:        typ,
			Active:      !decl.Inactive,
			MaxMembers:  decl.MaxMembers,
			Metadata:    decl.Metadata,
		}
		if err := eng.CreateRole(ctx, r); err != nil {
			return nil, false, err
		}
		return r, true, nil
	case err != nil:
		return nil, false, err
	}

	existing.Name = decl.Name
	existing.Description = decl.Description
	existing.Type = typ
	existing.Active = !decl.Inactive
	existing.MaxMembers = decl.MaxMembers
	existing.Metadata = decl.Metadata
	if err := eng.UpdateRole(ctx, existing); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}
