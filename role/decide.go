package role

import (
	"fmt"
	"slices"
	"strings"

	"github.com/xraph/aegis/constraint"
	"github.com/xraph/aegis/permission"
)

// Reason explains a per-role decision.
type Reason string

const (
	ReasonGrantedByDefault  Reason = "granted_by_default"
	ReasonGrantedByOverride Reason = "granted_by_override"
	ReasonDeniedByRole      Reason = "denied_by_role"
	ReasonConstraintFailed  Reason = "constraint_failed"
	ReasonNoSuchPermission  Reason = "no_such_permission"
)

// Rank orders denial reasons by how much they tell an auditor. When nothing
// allows, the highest ranked denial is reported.
func (r Reason) Rank() int {
	switch r {
	case ReasonConstraintFailed:
		return 3
	case ReasonDeniedByRole:
		return 2
	case ReasonNoSuchPermission:
		return 1
	default:
		return 0
	}
}

// Allowed reports whether r is a granting reason.
func (r Reason) Allowed() bool {
	return r == ReasonGrantedByDefault || r == ReasonGrantedByOverride
}

// Resolution is the outcome of the override precedence rule for one slug,
// before constraints are considered.
type Resolution int

const (
	// NotGranted: no override and not a default.
	NotGranted Resolution = iota
	// DeniedByOverride: an explicit deny.
	DeniedByOverride
	// GrantedByOverride: an explicit grant.
	GrantedByOverride
	// GrantedByDefault: no override, and the role type grants it.
	GrantedByDefault
)

// Allowed reports whether the resolution grants access.
func (r Resolution) Allowed() bool {
	return r == GrantedByOverride || r == GrantedByDefault
}

// Resolve applies the precedence rule: override deny, then override grant,
// then default grant, then deny.
func Resolve(inDefaults bool, ov *Override) Resolution {
	switch {
	case ov != nil && !ov.Granted:
		return DeniedByOverride
	case ov != nil && ov.Granted:
		return GrantedByOverride
	case inDefaults:
		return GrantedByDefault
	default:
		return NotGranted
	}
}

// Visibility reports whether a slug is a live catalog entry. A nil
// Visibility treats every slug as live.
type Visibility func(permission.Slug) bool

func (v Visibility) sees(s permission.Slug) bool {
	return v == nil || v(s)
}

// HasPermission reports whether r grants slug, ignoring constraints. Can
// and Decide never allow a slug HasPermission refuses.
func (r *Role) HasPermission(slug permission.Slug) bool {
	return r.HasPermissionIn(nil, slug)
}

// HasPermissionIn is HasPermission restricted to slugs visible in the
// catalog.
func (r *Role) HasPermissionIn(visible Visibility, slug permission.Slug) bool {
	if !visible.sees(slug) {
		return false
	}
	var ov *Override
	if o, ok := r.Overrides[slug]; ok {
		ov = &o
	}
	return Resolve(r.Type.Grants(slug), ov).Allowed()
}

// Granted returns the slugs r grants before constraints and denials are
// considered: the type defaults plus every granted override, sorted.
func (r *Role) Granted(visible Visibility) []permission.Slug {
	set := make(map[permission.Slug]struct{})
	for _, s := range r.Type.DefaultPermissions() {
		if visible.sees(s) {
			set[s] = struct{}{}
		}
	}
	for s, ov := range r.Overrides {
		if ov.Granted && visible.sees(s) {
			set[s] = struct{}{}
		}
	}
	out := make([]permission.Slug, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Outcome is a per-role decision for one request.
type Outcome struct {
	Allowed    bool
	Reason     Reason
	Permission permission.Slug
}

// Requested builds the permission asked for: "resource.action", or the
// action alone when resource is empty.
func Requested(action, resource string) permission.Slug {
	if resource == "" {
		return permission.Slug(action)
	}
	return permission.Slug(resource + "." + action)
}

// Can reports whether r allows action on resource given ctx.
func (r *Role) Can(action, resource string, ctx map[string]any) (bool, error) {
	out, err := r.Decide(action, resource, ctx)
	return out.Allowed, err
}

// Decide is Can with the reason and the slug that produced it.
func (r *Role) Decide(action, resource string, ctx map[string]any) (Outcome, error) {
	return r.DecideIn(nil, action, resource, ctx)
}

// DecideIn evaluates the request against every candidate slug: the exact
// permission and its scoped variants (view is satisfied by view_own or
// view_all). Any allowed candidate allows. Otherwise the most informative
// denial is returned.
func (r *Role) DecideIn(visible Visibility, action, resource string, ctx map[string]any) (Outcome, error) {
	requested := Requested(action, resource)
	best := Outcome{Reason: ReasonNoSuchPermission, Permission: requested}

	for _, slug := range r.candidates(requested) {
		if !visible.sees(slug) {
			continue
		}
		reason, err := r.decideSlug(slug, ctx)
		if err != nil {
			return Outcome{Reason: ReasonConstraintFailed, Permission: slug}, fmt.Errorf("role %s: %s: %w", r.Slug, slug, err)
		}
		if reason.Allowed() {
			return Outcome{Allowed: true, Reason: reason, Permission: slug}, nil
		}
		if reason.Rank() > best.Reason.Rank() {
			best = Outcome{Reason: reason, Permission: slug}
		}
	}
	return best, nil
}

// decideSlug resolves a single slug. A denied override always vetoes,
// whatever its constraints. A granted override applies only when its
// constraints hold.
func (r *Role) decideSlug(slug permission.Slug, ctx map[string]any) (Reason, error) {
	var ov *Override
	if o, ok := r.Overrides[slug]; ok {
		ov = &o
	}

	switch Resolve(r.Type.Grants(slug), ov) {
	case DeniedByOverride:
		return ReasonDeniedByRole, nil
	case GrantedByOverride:
		holds, err := constraint.All(ov.Constraints, ctx)
		if err != nil {
			return "", err
		}
		if holds {
			return ReasonGrantedByOverride, nil
		}
		return ReasonConstraintFailed, nil
	case GrantedByDefault:
		return ReasonGrantedByDefault, nil
	default:
		return ReasonNoSuchPermission, nil
	}
}

// candidates lists the exact slug first, then scoped variants from the
// defaults and overrides in sorted order.
func (r *Role) candidates(requested permission.Slug) []permission.Slug {
	out := []permission.Slug{requested}
	prefix := string(requested) + "_"
	seen := map[permission.Slug]bool{requested: true}

	add := func(s permission.Slug) {
		if !seen[s] && strings.HasPrefix(string(s), prefix) {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range r.Type.DefaultPermissions() {
		add(s)
	}
	for s := range r.Overrides {
		add(s)
	}
	slices.Sort(out[1:])
	return out
}
