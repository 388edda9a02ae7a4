package aegis

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xraph/aegis/assignment"
	"github.com/xraph/aegis/constraint"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/role"
	"github.com/xraph/aegis/store"
	"github.com/xraph/aegis/store/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store, *testClock) {
	t.Helper()
	s := memory.New()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithStore(s), WithClock(clock.Now)}, opts...)
	eng, err := NewEngine(opts...)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.SeedDefaults(context.Background()); err != nil {
		t.Fatal(err)
	}
	return eng, s, clock
}

func mustCreateRole(t *testing.T, eng *Engine, slug string, typ role.Type) *role.Role {
	t.Helper()
	r := &role.Role{Slug: slug, Type: typ, Active: true}
	if err := eng.CreateRole(context.Background(), r); err != nil {
		t.Fatalf("create role %s: %v", slug, err)
	}
	return r
}

func mustAssign(t *testing.T, eng *Engine, userID string, r *role.Role) *assignment.Assignment {
	t.Helper()
	a, err := eng.AssignRole(context.Background(), AssignRequest{UserID: userID, RoleID: r.ID})
	if err != nil {
		t.Fatalf("assign %s to %s: %v", r.Slug, userID, err)
	}
	return a
}

func mustCheck(t *testing.T, eng *Engine, req *CheckRequest) *CheckResult {
	t.Helper()
	res, err := eng.Check(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestNewEngine_RequiresStore(t *testing.T) {
	_, err := NewEngine()
	if !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
}

func TestCheck_DefaultGrant(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	mustAssign(t, eng, "u1", mustCreateRole(t, eng, "member", role.TypeUser))

	res := mustCheck(t, eng, &CheckRequest{UserID: "u1", Action: "view", Resource: "cards"})
	if !res.Allowed {
		t.Fatalf("expected allowed, got %s: %s", res.Decision, res.Reason)
	}
	if res.Decision != DecisionGrantedByDefault {
		t.Fatalf("expected granted_by_default, got %s", res.Decision)
	}
	if res.Permission != "cards.view_own" {
		t.Fatalf("expected cards.view_own, got %s", res.Permission)
	}
	if len(res.MatchedBy) != 1 || res.MatchedBy[0].RoleSlug != "member" {
		t.Fatalf("unexpected matched by: %+v", res.MatchedBy)
	}
}

func TestCheck_OverrideDenyBlocksDefault(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	r := mustCreateRole(t, eng, "member", role.TypeUser)
	mustAssign(t, eng, "u1", r)

	if err := eng.DenyPermission(ctx, r.ID, "cards.view_own"); err != nil {
		t.Fatal(err)
	}

	res := mustCheck(t, eng, &CheckRequest{UserID: "u1", Action: "view", Resource: "cards"})
	if res.Allowed {
		t.Fatal("expected denied")
	}
	if res.Decision != DecisionDeniedByRole {
		t.Fatalf("expected denied_by_role, got %s", res.Decision)
	}
}

func TestCheck_ConstrainedDenyAlwaysVetoes(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	r := mustCreateRole(t, eng, "member", role.TypeUser)
	mustAssign(t, eng, "u1", r)

	err := eng.DenyPermission(ctx, r.ID, "cards.delete_own", constraint.Expr{
		Field: "status", Operator: constraint.OpEquals, Value: "published",
	})
	if err != nil {
		t.Fatal(err)
	}

	has, err := eng.HasAnyPermission(ctx, "u1", "cards.delete_own")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Fatal("expected HasAnyPermission to refuse a denied slug")
	}

	for _, status := range []string{"published", "draft"} {
		res := mustCheck(t, eng, &CheckRequest{
			UserID: "u1", Action: "delete_own", Resource: "cards",
			Context: map[string]any{"status": status},
		})
		if res.Allowed || res.Decision != DecisionDeniedByRole {
			t.Fatalf("status %s: got allowed=%v decision=%s, want denied_by_role", status, res.Allowed, res.Decision)
		}
	}
}

func TestCheck_ConstrainedGrant(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	r := mustCreateRole(t, eng, "ops", role.TypeAdmin)
	mustAssign(t, eng, "u1", r)

	err := eng.GrantPermission(ctx, r.ID, "cards.view_all", constraint.Expr{
		Field: "region", Operator: constraint.OpIn, Value: []any{"EU", "US"},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		attrs    map[string]any
		allowed  bool
		decision Decision
	}{
		{"matching region", map[string]any{"region": "EU"}, true, DecisionGrantedByOverride},
		{"other region", map[string]any{"region": "APAC"}, false, DecisionConstraintFailed},
		{"missing field", map[string]any{}, true, DecisionGrantedByOverride},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustCheck(t, eng, &CheckRequest{UserID: "u1", Action: "view", Resource: "cards", Context: tt.attrs})
			if res.Allowed != tt.allowed || res.Decision != tt.decision {
				t.Fatalf("got allowed=%v decision=%s, want %v %s", res.Allowed, res.Decision, tt.allowed, tt.decision)
			}
		})
	}
}

func TestCheck_OwnerConstraint(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	r := mustCreateRole(t, eng, "member", role.TypeUser)
	mustAssign(t, eng, "u1", r)

	err := eng.GrantPermission(ctx, r.ID, "cards.publish", constraint.Expr{
		Field: "owner_id", Operator: constraint.OpEquals, Value: 42,
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		attrs map[string]any
		want  bool
	}{
		{map[string]any{"owner_id": 42}, true},
		{map[string]any{"owner_id": "42"}, true},
		{map[string]any{"owner_id": 7}, false},
		{nil, true},
	} {
		ok, err := eng.Can(ctx, "u1", "publish", "cards", tt.attrs)
		if err != nil {
			t.Fatal(err)
		}
		if ok != tt.want {
			t.Fatalf("attrs %v: got %v, want %v", tt.attrs, ok, tt.want)
		}
	}
}

func TestCheck_OrAcrossRoles(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	denier := mustCreateRole(t, eng, "restricted", role.TypeUser)
	granter := mustCreateRole(t, eng, "editor", role.TypeUser)
	mustAssign(t, eng, "u1", denier)
	mustAssign(t, eng, "u1", granter)

	if err := eng.DenyPermission(ctx, denier.ID, "cards.publish"); err != nil {
		t.Fatal(err)
	}
	if err := eng.GrantPermission(ctx, granter.ID, "cards.publish"); err != nil {
		t.Fatal(err)
	}

	res := mustCheck(t, eng, &CheckRequest{UserID: "u1", Action: "publish", Resource: "cards"})
	if !res.Allowed {
		t.Fatalf("expected a grant from either role to allow, got %s", res.Decision)
	}
	if res.MatchedBy[0].RoleSlug != "editor" {
		t.Fatalf("expected editor to match, got %s", res.MatchedBy[0].RoleSlug)
	}
}

func TestCheck_MostInformativeDenial(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	plain := mustCreateRole(t, eng, "plain", role.TypeUser)
	denier := mustCreateRole(t, eng, "denier", role.TypeUser)
	gated := mustCreateRole(t, eng, "gated", role.TypeUser)
	for _, r := range []*role.Role{plain, denier, gated} {
		mustAssign(t, eng, "u1", r)
	}

	if err := eng.DenyPermission(ctx, denier.ID, "billing.manage"); err != nil {
		t.Fatal(err)
	}
	err := eng.GrantPermission(ctx, gated.ID, "billing.manage", constraint.Expr{
		Field: "tier", Operator: constraint.OpEquals, Value: "gold",
	})
	if err != nil {
		t.Fatal(err)
	}

	res := mustCheck(t, eng, &CheckRequest{
		UserID: "u1", Action: "manage", Resource: "billing",
		Context: map[string]any{"tier": "silver"},
	})
	if res.Allowed || res.Decision != DecisionConstraintFailed {
		t.Fatalf("expected constraint_failed, got %s", res.Decision)
	}
	if res.MatchedBy[0].RoleSlug != "gated" {
		t.Fatalf("expected gated role in matched by, got %+v", res.MatchedBy)
	}
}

func TestCheck_NoRoles(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	for _, user := range []string{"", "nobody"} {
		res := mustCheck(t, eng, &CheckRequest{UserID: user, Action: "view", Resource: "cards"})
		if res.Allowed || res.Decision != DecisionNoRoles {
			t.Fatalf("user %q: expected no_roles, got %s", user, res.Decision)
		}
	}
}

func TestCheck_NoSuchPermission(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	mustAssign(t, eng, "u1", mustCreateRole(t, eng, "member", role.TypeUser))

	res := mustCheck(t, eng, &CheckRequest{UserID: "u1", Action: "delete", Resource: "users"})
	if res.Allowed || res.Decision != DecisionNoSuchPermission {
		t.Fatalf("expected no_such_permission, got %s", res.Decision)
	}
	if len(res.MatchedBy) != 0 {
		t.Fatalf("expected no matches, got %+v", res.MatchedBy)
	}
}

func TestCheck_ExpiredAssignmentIgnored(t *testing.T) {
	ctx := context.Background()
	eng, _, clock := newTestEngine(t)
	r := mustCreateRole(t, eng, "temp", role.TypeAdmin)

	expires := clock.Now().Add(time.Hour)
	if _, err := eng.AssignRole(ctx, AssignRequest{UserID: "u1", RoleID: r.ID, ExpiresAt: &expires}); err != nil {
		t.Fatal(err)
	}

	ok, err := eng.Can(ctx, "u1", "delete", "users", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected allowed before expiry")
	}

	clock.Advance(2 * time.Hour)

	res := mustCheck(t, eng, &CheckRequest{UserID: "u1", Action: "delete", Resource: "users"})
	if res.Allowed || res.Decision != DecisionNoRoles {
		t.Fatalf("expected no_roles after expiry, got %s", res.Decision)
	}

	n, err := eng.PurgeExpiredAssignments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}
}

func TestCheck_InactiveRoleIgnored(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	r := mustCreateRole(t, eng, "member", role.TypeUser)
	mustAssign(t, eng, "u1", r)

	if err := eng.DeactivateRole(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	ok, err := eng.Can(ctx, "u1", "view", "cards", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected inactive role to grant nothing")
	}

	if err := eng.ActivateRole(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	ok, err = eng.Can(ctx, "u1", "view", "cards", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected reactivated role to grant")
	}
}

func TestCheck_CatalogVisibility(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	mustAssign(t, eng, "u1", mustCreateRole(t, eng, "member", role.TypeUser))

	if err := eng.DeactivatePermission(ctx, "cards.create"); err != nil {
		t.Fatal(err)
	}
	ok, err := eng.Can(ctx, "u1", "create", "cards", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected inactive permission to be invisible")
	}

	if err := eng.ActivatePermission(ctx, "cards.create"); err != nil {
		t.Fatal(err)
	}
	if ok, _ = eng.Can(ctx, "u1", "create", "cards", nil); !ok {
		t.Fatal("expected reactivated permission to grant")
	}

	if err := eng.DeletePermission(ctx, "cards.create"); err != nil {
		t.Fatal(err)
	}
	if ok, _ = eng.Can(ctx, "u1", "create", "cards", nil); ok {
		t.Fatal("expected deleted permission to be invisible")
	}
	if _, err := eng.FindPermission(ctx, "cards.create"); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}
}

func TestSeedDefaults_KeepsAdminChanges(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	mustAssign(t, eng, "u1", mustCreateRole(t, eng, "member", role.TypeUser))

	if err := eng.DeactivatePermission(ctx, "cards.view_own"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := eng.Can(ctx, "u1", "view", "cards", nil); ok {
		t.Fatal("expected deactivated permission to deny")
	}

	// A restart seeds again.
	if err := eng.SeedDefaults(ctx); err != nil {
		t.Fatal(err)
	}
	p, err := eng.FindPermission(ctx, "cards.view_own")
	if err != nil {
		t.Fatal(err)
	}
	if p.Active {
		t.Fatal("expected seeding to keep the entry inactive")
	}
	if ok, _ := eng.Can(ctx, "u1", "view", "cards", nil); ok {
		t.Fatal("expected reseeded catalog to keep denying")
	}

	// Re-registering refreshes the description only.
	id := p.ID
	p, err = eng.RegisterPermission(ctx, "cards.view_own", "See your own cards")
	if err != nil {
		t.Fatal(err)
	}
	if p.Active || p.ID != id || p.Description != "See your own cards" {
		t.Fatalf("unexpected re-registered entry: %+v", p)
	}
}

func TestDeletePermission_DropsOverrides(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	r := mustCreateRole(t, eng, "member", role.TypeUser)
	if err := eng.GrantPermission(ctx, r.ID, "system.view"); err != nil {
		t.Fatal(err)
	}
	if err := eng.DeletePermission(ctx, "system.view"); err != nil {
		t.Fatal(err)
	}

	got, err := eng.GetRole(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.OverrideFor("system.view"); ok {
		t.Fatal("expected override to be removed with its permission")
	}
}

func TestCheck_HierarchyIsInert(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	admin := mustCreateRole(t, eng, "admin", role.TypeAdmin)
	member := mustCreateRole(t, eng, "member", role.TypeUser)
	mustAssign(t, eng, "u1", admin)

	before, err := eng.Can(ctx, "u1", "edit_own", "cards", nil)
	if err != nil {
		t.Fatal(err)
	}

	manage, err := eng.CanManage(ctx, admin.ID, member.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !manage {
		t.Fatal("expected admin to outrank user")
	}
	if manage, _ = eng.CanManage(ctx, member.ID, admin.ID); manage {
		t.Fatal("expected user not to outrank admin")
	}

	after, err := eng.Can(ctx, "u1", "edit_own", "cards", nil)
	if err != nil {
		t.Fatal(err)
	}
	if before || after {
		t.Fatal("admin defaults lack cards.edit_own regardless of rank")
	}
}

func TestCheck_MalformedStoredConstraint(t *testing.T) {
	ctx := context.Background()
	eng, s, _ := newTestEngine(t)
	r := mustCreateRole(t, eng, "member", role.TypeUser)
	mustAssign(t, eng, "u1", r)

	// Bypass engine validation to simulate a corrupt row.
	err := s.SetOverride(ctx, r.ID, "cards.publish", role.Override{
		Granted:     true,
		Constraints: []constraint.Expr{{Field: "title", Operator: constraint.OpRegex, Value: "("}},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = eng.Check(ctx, &CheckRequest{
		UserID: "u1", Action: "publish", Resource: "cards",
		Context: map[string]any{"title": "x"},
	})
	if !errors.Is(err, ErrInvalidConstraint) {
		t.Fatalf("expected ErrInvalidConstraint, got %v", err)
	}
}

func TestEnforce(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	mustAssign(t, eng, "u1", mustCreateRole(t, eng, "member", role.TypeUser))

	if err := eng.Enforce(ctx, &CheckRequest{UserID: "u1", Action: "view", Resource: "cards"}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	err := eng.Enforce(ctx, &CheckRequest{UserID: "u1", Action: "manage", Resource: "system"})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestCheckRoles(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)

	inactive := &role.Role{ID: id.NewRoleID(), Slug: "off", Type: role.TypeAdmin}
	active := &role.Role{ID: id.NewRoleID(), Slug: "on", Type: role.TypeUser, Active: true}

	res, err := eng.CheckRoles(ctx, []*role.Role{inactive}, &CheckRequest{Action: "view", Resource: "users"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != DecisionNoRoles {
		t.Fatalf("expected no_roles, got %s", res.Decision)
	}

	res, err = eng.CheckRoles(ctx, []*role.Role{inactive, active}, &CheckRequest{Action: "create", Resource: "links"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed {
		t.Fatalf("expected allowed, got %s", res.Decision)
	}
}

func TestHasAnyAndAllPermissions(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	mustAssign(t, eng, "u1", mustCreateRole(t, eng, "member", role.TypeUser))
	mustAssign(t, eng, "u1", mustCreateRole(t, eng, "analyst", role.TypeAnalyst))

	tests := []struct {
		name  string
		fn    func(context.Context, string, ...permission.Slug) (bool, error)
		slugs []permission.Slug
		want  bool
	}{
		{"any empty", eng.HasAnyPermission, nil, false},
		{"all empty", eng.HasAllPermissions, nil, false},
		{"any one granted", eng.HasAnyPermission, []permission.Slug{"system.manage", "analytics.export"}, true},
		{"any none granted", eng.HasAnyPermission, []permission.Slug{"system.manage"}, false},
		{"all in one role", eng.HasAllPermissions, []permission.Slug{"analytics.export", "users.view"}, true},
		{"all split across roles", eng.HasAllPermissions, []permission.Slug{"analytics.export", "cards.create"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(ctx, "u1", tt.slugs...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEffectivePermissions(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	r := mustCreateRole(t, eng, "member", role.TypeUser)
	mustAssign(t, eng, "u1", r)

	if err := eng.GrantPermission(ctx, r.ID, "system.view", constraint.Expr{Field: "ip", Operator: constraint.OpContains, Value: "10."}); err != nil {
		t.Fatal(err)
	}
	if err := eng.DenyPermission(ctx, r.ID, "cards.create"); err != nil {
		t.Fatal(err)
	}
	if err := eng.DeactivatePermission(ctx, "billing.view_own"); err != nil {
		t.Fatal(err)
	}

	perms, err := eng.EffectivePermissions(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.IsSorted(perms) {
		t.Fatalf("expected sorted output, got %v", perms)
	}
	if !slices.Contains(perms, "system.view") {
		t.Fatal("expected constrained grant to be listed")
	}
	if !slices.Contains(perms, "cards.create") {
		t.Fatal("denials are not subtracted from the union")
	}
	if slices.Contains(perms, "billing.view_own") {
		t.Fatal("expected inactive permission to be hidden")
	}
}

func TestAdminValidation(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	r := mustCreateRole(t, eng, "member", role.TypeUser)

	if err := eng.CreateRole(ctx, &role.Role{Slug: "member", Type: role.TypeUser}); !errors.Is(err, ErrDuplicateRole) {
		t.Fatalf("expected ErrDuplicateRole, got %v", err)
	}
	if err := eng.CreateRole(ctx, &role.Role{Slug: "x", Type: "wizard"}); !errors.Is(err, role.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if err := eng.GrantPermission(ctx, r.ID, "cards.teleport"); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}
	err := eng.GrantPermission(ctx, r.ID, "cards.publish", constraint.Expr{Field: "", Operator: constraint.OpEquals, Value: 1})
	if !errors.Is(err, ErrInvalidConstraint) {
		t.Fatalf("expected ErrInvalidConstraint, got %v", err)
	}
	if err := eng.GrantPermission(ctx, id.NewRoleID(), "cards.publish"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}

	got, err := eng.GetRole(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Overrides) != 0 {
		t.Fatalf("rejected overrides must not be stored, got %v", got.Overrides)
	}
}

func TestRevokePermission_RestoresDefault(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	r := mustCreateRole(t, eng, "member", role.TypeUser)
	mustAssign(t, eng, "u1", r)

	if err := eng.DenyPermission(ctx, r.ID, "links.create"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := eng.Can(ctx, "u1", "create", "links", nil); ok {
		t.Fatal("expected denied")
	}
	if err := eng.RevokePermission(ctx, r.ID, "links.create"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := eng.Can(ctx, "u1", "create", "links", nil); !ok {
		t.Fatal("expected default to apply again")
	}
	if err := eng.RevokePermission(ctx, r.ID, "links.create"); err != nil {
		t.Fatalf("revoking an absent override should succeed, got %v", err)
	}
}

func TestAssignRole_Rules(t *testing.T) {
	ctx := context.Background()
	eng, _, clock := newTestEngine(t)

	root := mustCreateRole(t, eng, "root", role.TypeSuperAdmin)
	if _, err := eng.AssignRole(ctx, AssignRequest{UserID: "u1", RoleID: root.ID}); !errors.Is(err, ErrRoleNotAssignable) {
		t.Fatalf("expected ErrRoleNotAssignable, got %v", err)
	}
	if _, err := eng.ElevateRole(ctx, AssignRequest{UserID: "u1", RoleID: root.ID}); err != nil {
		t.Fatalf("elevate: %v", err)
	}

	if _, err := eng.AssignRole(ctx, AssignRequest{UserID: "u1", RoleID: id.NewRoleID()}); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}

	member := mustCreateRole(t, eng, "member", role.TypeUser)
	past := clock.Now().Add(-time.Minute)
	if _, err := eng.AssignRole(ctx, AssignRequest{UserID: "u1", RoleID: member.ID, ExpiresAt: &past}); !errors.Is(err, ErrInvalidExpiry) {
		t.Fatalf("expected ErrInvalidExpiry, got %v", err)
	}

	first := mustAssign(t, eng, "u1", member)
	again, err := eng.AssignRole(ctx, AssignRequest{UserID: "u1", RoleID: member.ID, Notes: "refreshed"})
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID {
		t.Fatal("expected reassignment to keep the assignment id")
	}

	if err := eng.RevokeRole(ctx, "u1", member.ID); err != nil {
		t.Fatal(err)
	}
	if err := eng.RevokeRole(ctx, "u1", member.ID); !errors.Is(err, ErrAssignmentNotFound) {
		t.Fatalf("expected ErrAssignmentNotFound, got %v", err)
	}
}

func TestAssignRole_MaxMembers(t *testing.T) {
	ctx := context.Background()
	eng, _, clock := newTestEngine(t)

	r := &role.Role{Slug: "seat", Type: role.TypeSupport, Active: true, MaxMembers: 1}
	if err := eng.CreateRole(ctx, r); err != nil {
		t.Fatal(err)
	}

	soon := clock.Now().Add(time.Minute)
	if _, err := eng.AssignRole(ctx, AssignRequest{UserID: "u1", RoleID: r.ID, ExpiresAt: &soon}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AssignRole(ctx, AssignRequest{UserID: "u1", RoleID: r.ID}); err != nil {
		t.Fatalf("refreshing an existing member should not count twice: %v", err)
	}
	if _, err := eng.AssignRole(ctx, AssignRequest{UserID: "u2", RoleID: r.ID}); !errors.Is(err, ErrMaxMembersExceeded) {
		t.Fatalf("expected ErrMaxMembersExceeded, got %v", err)
	}
}

func TestDeleteRole_RemovesAssignments(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	r := mustCreateRole(t, eng, "member", role.TypeUser)
	mustAssign(t, eng, "u1", r)

	if err := eng.DeleteRole(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	list, err := eng.ListAssignments(ctx, &assignment.ListFilter{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("expected assignments to be removed, got %d", len(list))
	}
	if _, err := eng.GetRole(ctx, r.ID); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestActiveRoles_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)
	mustAssign(t, eng, "u1", mustCreateRole(t, eng, "member", role.TypeUser))

	roles, err := eng.ActiveRoles(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 1 {
		t.Fatalf("expected 1 role, got %d", len(roles))
	}
	roles[0].SetOverride("cards.view_own", role.Override{Granted: false})

	if ok, _ := eng.Can(ctx, "u1", "view", "cards", nil); !ok {
		t.Fatal("mutating a returned role must not affect evaluation")
	}
}

func TestCheck_Tracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	eng, _, _ := newTestEngine(t, WithTracer(tp.Tracer("test")))
	mustAssign(t, eng, "u1", mustCreateRole(t, eng, "member", role.TypeUser))
	mustCheck(t, eng, &CheckRequest{UserID: "u1", Action: "view", Resource: "cards"})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "aegis.Check" {
		t.Fatalf("unexpected span name %q", spans[0].Name)
	}
	found := false
	for _, kv := range spans[0].Attributes {
		if kv.Key == "aegis.decision" && kv.Value.AsString() == string(DecisionGrantedByDefault) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected decision attribute, got %v", spans[0].Attributes)
	}
}

type recordingPlugin struct {
	mu       sync.Mutex
	checks   int
	assigned []string
	revoked  []permission.Slug
	shutdown bool
}

func (p *recordingPlugin) Name() string { return "recording" }

func (p *recordingPlugin) OnAfterCheck(_ context.Context, _, result any) error {
	if _, ok := result.(*CheckResult); !ok {
		return errors.New("unexpected result type")
	}
	p.mu.Lock()
	p.checks++
	p.mu.Unlock()
	return nil
}

func (p *recordingPlugin) OnRoleAssigned(_ context.Context, a *assignment.Assignment) error {
	p.mu.Lock()
	p.assigned = append(p.assigned, a.UserID)
	p.mu.Unlock()
	return nil
}

func (p *recordingPlugin) OnPermissionRevoked(_ context.Context, _ id.RoleID, slug permission.Slug) error {
	p.mu.Lock()
	p.revoked = append(p.revoked, slug)
	p.mu.Unlock()
	return nil
}

func (p *recordingPlugin) OnShutdown(_ context.Context) error {
	p.shutdown = true
	return nil
}

func TestPluginHooks(t *testing.T) {
	ctx := context.Background()
	rec := &recordingPlugin{}
	eng, _, _ := newTestEngine(t, WithPlugin(rec))
	r := mustCreateRole(t, eng, "member", role.TypeUser)
	mustAssign(t, eng, "u1", r)

	if err := eng.GrantPermission(ctx, r.ID, "users.view"); err != nil {
		t.Fatal(err)
	}
	if err := eng.RevokePermission(ctx, r.ID, "users.view"); err != nil {
		t.Fatal(err)
	}
	mustCheck(t, eng, &CheckRequest{UserID: "u1", Action: "view", Resource: "cards"})
	if err := eng.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	if rec.checks != 1 {
		t.Fatalf("expected 1 check hook, got %d", rec.checks)
	}
	if !slices.Equal(rec.assigned, []string{"u1"}) {
		t.Fatalf("unexpected assigned hooks %v", rec.assigned)
	}
	if !slices.Equal(rec.revoked, []permission.Slug{"users.view"}) {
		t.Fatalf("unexpected revoked hooks %v", rec.revoked)
	}
	if !rec.shutdown {
		t.Fatal("expected shutdown hook")
	}
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]CheckResult
	users   []string
	all     int
}

func (c *mapCache) key(req *CheckRequest) string {
	return req.UserID + "|" + req.Resource + "|" + req.Action
}

func (c *mapCache) Get(_ context.Context, req *CheckRequest) (*CheckResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[c.key(req)]
	if !ok {
		return nil, false
	}
	return &res, true
}

func (c *mapCache) Set(_ context.Context, req *CheckRequest, result *CheckResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(req)] = *result
}

func (c *mapCache) InvalidateUser(_ context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = append(c.users, userID)
	for k := range c.entries {
		delete(c.entries, k)
	}
}

func (c *mapCache) InvalidateAll(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all++
	c.entries = make(map[string]CheckResult)
}

func TestCheck_CacheInvalidation(t *testing.T) {
	ctx := context.Background()
	c := &mapCache{entries: make(map[string]CheckResult)}
	eng, _, _ := newTestEngine(t, WithCache(c))
	r := mustCreateRole(t, eng, "member", role.TypeUser)
	mustAssign(t, eng, "u1", r)

	if ok, _ := eng.Can(ctx, "u1", "view", "cards", nil); !ok {
		t.Fatal("expected allowed")
	}
	if len(c.entries) != 1 {
		t.Fatalf("expected result to be cached, got %d entries", len(c.entries))
	}

	before := c.all
	if err := eng.DenyPermission(ctx, r.ID, "cards.view_own"); err != nil {
		t.Fatal(err)
	}
	if c.all != before+1 {
		t.Fatal("expected override change to invalidate the whole cache")
	}
	if ok, _ := eng.Can(ctx, "u1", "view", "cards", nil); ok {
		t.Fatal("expected stale grant to be gone")
	}

	if err := eng.RevokeRole(ctx, "u1", r.ID); err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(c.users, "u1") {
		t.Fatal("expected assignment change to invalidate the user")
	}
}

// hookStore wraps a store to pause role lookups and count catalog loads.
type hookStore struct {
	store.Store
	afterListRoles func(ctx context.Context) error
	catalogLoads   atomic.Int32
}

func (s *hookStore) ListRolesForUser(ctx context.Context, userID string, now time.Time) ([]id.RoleID, error) {
	ids, err := s.Store.ListRolesForUser(ctx, userID, now)
	if err != nil || s.afterListRoles == nil {
		return ids, err
	}
	if err := s.afterListRoles(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *hookStore) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	s.catalogLoads.Add(1)
	return s.Store.ListPermissions(ctx, filter)
}

// pauseOnce makes the first role lookup signal entered and wait for release
// or the lookup context.
func pauseOnce(entered chan<- struct{}, release <-chan struct{}) func(context.Context) error {
	var armed atomic.Bool
	armed.Store(true)
	return func(ctx context.Context) error {
		if !armed.CompareAndSwap(true, false) {
			return nil
		}
		entered <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestCheck_RevokeDuringCheckIsNotCached(t *testing.T) {
	ctx := context.Background()
	entered, release := make(chan struct{}, 1), make(chan struct{})
	hs := &hookStore{Store: memory.New(), afterListRoles: pauseOnce(entered, release)}
	c := &mapCache{entries: make(map[string]CheckResult)}
	eng, _, _ := newTestEngine(t, WithStore(hs), WithCache(c))
	r := mustCreateRole(t, eng, "member", role.TypeUser)
	mustAssign(t, eng, "u1", r)

	done := make(chan bool, 1)
	go func() {
		ok, err := eng.Can(ctx, "u1", "view", "cards", nil)
		if err != nil {
			t.Error(err)
		}
		done <- ok
	}()

	<-entered
	if err := eng.RevokeRole(ctx, "u1", r.ID); err != nil {
		t.Fatal(err)
	}
	close(release)

	if !<-done {
		t.Fatal("expected the check that read roles before revocation to allow")
	}
	c.mu.Lock()
	cached := len(c.entries)
	c.mu.Unlock()
	if cached != 0 {
		t.Fatalf("expected no result cached across the revocation, got %d", cached)
	}
	if ok, _ := eng.Can(ctx, "u1", "view", "cards", nil); ok {
		t.Fatal("expected denied after revocation")
	}
}

func TestCheck_SharedLookupIgnoresCallerCancel(t *testing.T) {
	entered, release := make(chan struct{}, 1), make(chan struct{})
	hs := &hookStore{Store: memory.New(), afterListRoles: pauseOnce(entered, release)}
	eng, _, _ := newTestEngine(t, WithStore(hs))
	mustAssign(t, eng, "u1", mustCreateRole(t, eng, "member", role.TypeUser))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := eng.Check(ctx, &CheckRequest{UserID: "u1", Action: "view", Resource: "cards"})
		done <- err
	}()

	<-entered
	cancel()
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("expected the shared lookup to finish after the caller cancelled, got %v", err)
	}
}

func TestCheck_ReusesCatalogSnapshot(t *testing.T) {
	ctx := context.Background()
	hs := &hookStore{Store: memory.New()}
	eng, _, clock := newTestEngine(t, WithStore(hs))
	mustAssign(t, eng, "u1", mustCreateRole(t, eng, "member", role.TypeUser))

	hs.catalogLoads.Store(0)
	for range 3 {
		if ok, _ := eng.Can(ctx, "u1", "view", "cards", nil); !ok {
			t.Fatal("expected allowed")
		}
	}
	if n := hs.catalogLoads.Load(); n != 1 {
		t.Fatalf("expected one catalog load for repeated checks, got %d", n)
	}

	if err := eng.DeactivatePermission(ctx, "cards.view_own"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := eng.Can(ctx, "u1", "view", "cards", nil); ok {
		t.Fatal("expected the deactivation to be seen at once")
	}
	if n := hs.catalogLoads.Load(); n != 2 {
		t.Fatalf("expected a reload after the catalog changed, got %d", n)
	}

	clock.Advance(DefaultConfig().CatalogRefresh)
	_, _ = eng.Can(ctx, "u1", "view", "cards", nil)
	if n := hs.catalogLoads.Load(); n != 3 {
		t.Fatalf("expected a reload once the snapshot aged out, got %d", n)
	}
}

func TestCheck_ZeroCatalogRefreshReloads(t *testing.T) {
	ctx := context.Background()
	hs := &hookStore{Store: memory.New()}
	eng, _, _ := newTestEngine(t, WithStore(hs), WithConfig(Config{}))
	mustAssign(t, eng, "u1", mustCreateRole(t, eng, "member", role.TypeUser))

	hs.catalogLoads.Store(0)
	_, _ = eng.Can(ctx, "u1", "view", "cards", nil)
	_, _ = eng.Can(ctx, "u1", "view", "cards", nil)
	if n := hs.catalogLoads.Load(); n != 2 {
		t.Fatalf("expected a catalog load per check, got %d", n)
	}
}
