package role_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/aegis/constraint"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/role"
)

func newRole(t role.Type) *role.Role {
	return &role.Role{ID: id.NewRoleID(), Slug: string(t), Name: string(t), Type: t, Active: true}
}

func TestParseType(t *testing.T) {
	for _, typ := range role.Types() {
		got, err := role.ParseType(string(typ))
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := role.ParseType("owner")
	require.ErrorIs(t, err, role.ErrUnknownType)
}

func TestLevels(t *testing.T) {
	want := map[role.Type]int{
		role.TypeUser: 1, role.TypeModerator: 2, role.TypeSupport: 3,
		role.TypeAnalyst: 4, role.TypeAdmin: 5, role.TypeSuperAdmin: 6,
	}
	for typ, level := range want {
		assert.Equal(t, level, typ.Level(), typ)
	}
	assert.Equal(t, 0, role.Type("ghost").Level())
}

func TestDefaultPermissionsStable(t *testing.T) {
	catalog := make(map[permission.Slug]bool)
	for _, p := range permission.DefaultCatalog() {
		catalog[p.Slug] = true
	}

	for _, typ := range role.Types() {
		a := typ.DefaultPermissions()
		b := typ.DefaultPermissions()
		require.NotEmpty(t, a, typ)
		assert.Equal(t, a, b, "defaults for %s must be identical across calls", typ)
		assert.True(t, slices.IsSorted(a))

		a[0] = "mutated.slug"
		assert.NotEqual(t, permission.Slug("mutated.slug"), typ.DefaultPermissions()[0])

		for _, s := range typ.DefaultPermissions() {
			assert.True(t, catalog[s], "%s default %s missing from catalog", typ, s)
		}
	}
}

func TestResolve(t *testing.T) {
	grant := &role.Override{Granted: true}
	deny := &role.Override{Granted: false}

	assert.Equal(t, role.NotGranted, role.Resolve(false, nil))
	assert.Equal(t, role.GrantedByDefault, role.Resolve(true, nil))
	assert.Equal(t, role.GrantedByOverride, role.Resolve(false, grant))
	assert.Equal(t, role.GrantedByOverride, role.Resolve(true, grant))
	assert.Equal(t, role.DeniedByOverride, role.Resolve(true, deny))
	assert.Equal(t, role.DeniedByOverride, role.Resolve(false, deny))

	assert.False(t, role.NotGranted.Allowed())
	assert.False(t, role.DeniedByOverride.Allowed())
	assert.True(t, role.GrantedByOverride.Allowed())
	assert.True(t, role.GrantedByDefault.Allowed())
}

func TestDenyByDefault(t *testing.T) {
	r := newRole(role.TypeUser)
	assert.False(t, r.HasPermission("billing.manage"))
	assert.False(t, r.HasPermission("unknown.thing"))
}

func TestExplicitDenyWinsOverDefault(t *testing.T) {
	r := newRole(role.TypeUser)
	require.True(t, r.Type.Grants("cards.delete_own"))
	require.True(t, r.HasPermission("cards.delete_own"))

	r.SetOverride("cards.delete_own", role.Override{Granted: false})
	assert.False(t, r.HasPermission("cards.delete_own"))
}

func TestExplicitGrantExtendsDefaults(t *testing.T) {
	r := newRole(role.TypeUser)
	require.False(t, r.Type.Grants("analytics.export"))

	r.SetOverride("analytics.export", role.Override{Granted: true})
	assert.True(t, r.HasPermission("analytics.export"))
}

func TestRevokeRestoresDefault(t *testing.T) {
	r := newRole(role.TypeUser)
	r.SetOverride("cards.create", role.Override{Granted: false})
	require.False(t, r.HasPermission("cards.create"))

	r.RemoveOverride("cards.create")
	assert.True(t, r.HasPermission("cards.create"))
	_, ok := r.OverrideFor("cards.create")
	assert.False(t, ok)
}

func TestSetOverrideLastWriteWins(t *testing.T) {
	r := newRole(role.TypeUser)
	r.SetOverride("billing.manage", role.Override{Granted: true})
	r.SetOverride("billing.manage", role.Override{Granted: false})

	assert.Len(t, r.Overrides, 1)
	assert.False(t, r.HasPermission("billing.manage"))
}

func TestHasPermissionInHidesInvisible(t *testing.T) {
	r := newRole(role.TypeUser)
	hidden := func(s permission.Slug) bool { return s != "cards.create" }

	assert.True(t, r.HasPermission("cards.create"))
	assert.False(t, r.HasPermissionIn(hidden, "cards.create"))
	assert.True(t, r.HasPermissionIn(hidden, "cards.edit_own"))
}

func TestDecideScopedViewUsesOwnDefault(t *testing.T) {
	r := newRole(role.TypeUser)

	out, err := r.Decide("view", "cards", map[string]any{})
	require.NoError(t, err)
	assert.True(t, out.Allowed)
	assert.Equal(t, role.ReasonGrantedByDefault, out.Reason)
	assert.Equal(t, permission.Slug("cards.view_own"), out.Permission)
}

func TestDecideExplicitDenyOverridesDefault(t *testing.T) {
	r := newRole(role.TypeUser)
	r.SetOverride("cards.view_own", role.Override{Granted: false})

	out, err := r.Decide("view", "cards", map[string]any{})
	require.NoError(t, err)
	assert.False(t, out.Allowed)
	assert.Equal(t, role.ReasonDeniedByRole, out.Reason)
}

func TestDecideRegionConstrainedGrant(t *testing.T) {
	r := newRole(role.TypeAdmin)
	require.True(t, r.Type.Grants("cards.view_all"))
	r.SetOverride("cards.view_all", role.Override{
		Granted: true,
		Constraints: []constraint.Expr{
			{Field: "region", Operator: constraint.OpIn, Value: []any{"EU", "US"}},
		},
	})

	ok, err := r.Can("view", "cards", map[string]any{"region": "EU"})
	require.NoError(t, err)
	assert.True(t, ok)

	out, err := r.Decide("view", "cards", map[string]any{"region": "APAC"})
	require.NoError(t, err)
	assert.False(t, out.Allowed)
	assert.Equal(t, role.ReasonConstraintFailed, out.Reason)

	ok, err = r.Can("view", "cards", map[string]any{})
	require.NoError(t, err)
	assert.True(t, ok, "missing field passes")
}

func TestConstraintGating(t *testing.T) {
	r := newRole(role.TypeUser)
	r.SetOverride("cards.publish", role.Override{
		Granted: true,
		Constraints: []constraint.Expr{
			{Field: "owner_id", Operator: constraint.OpEquals, Value: 42},
		},
	})

	ok, err := r.Can("publish", "cards", map[string]any{"owner_id": 42})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Can("publish", "cards", map[string]any{"owner_id": 7})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.Can("publish", "cards", map[string]any{"card_id": "c1"})
	require.NoError(t, err)
	assert.True(t, ok, "absent owner_id passes")
}

func TestConstrainedDenyAlwaysVetoes(t *testing.T) {
	r := newRole(role.TypeUser)
	r.SetOverride("cards.delete_own", role.Override{
		Granted: false,
		Constraints: []constraint.Expr{
			{Field: "status", Operator: constraint.OpEquals, Value: "published"},
		},
	})
	require.False(t, r.HasPermission("cards.delete_own"))

	for _, status := range []string{"published", "draft"} {
		out, err := r.Decide("delete_own", "cards", map[string]any{"status": status})
		require.NoError(t, err)
		assert.False(t, out.Allowed, status)
		assert.Equal(t, role.ReasonDeniedByRole, out.Reason, status)
	}

	ok, err := r.Can("delete", "cards", map[string]any{"status": "draft"})
	require.NoError(t, err)
	assert.False(t, ok, "scoped lookup still vetoed")
}

func TestDecideNeverExceedsHasPermission(t *testing.T) {
	r := newRole(role.TypeAdmin)
	r.SetOverride("cards.view_all", role.Override{Granted: false, Constraints: []constraint.Expr{
		{Field: "region", Operator: constraint.OpEquals, Value: "EU"},
	}})
	r.SetOverride("cards.publish", role.Override{Granted: true, Constraints: []constraint.Expr{
		{Field: "region", Operator: constraint.OpEquals, Value: "EU"},
	}})

	for _, slug := range []permission.Slug{"cards.view_all", "cards.publish", "cards.create", "billing.manage", "system.manage"} {
		for _, region := range []string{"EU", "US"} {
			out, err := r.Decide(slug.Action(), slug.Module(), map[string]any{"region": region})
			require.NoError(t, err)
			if out.Allowed && out.Permission == slug {
				assert.True(t, r.HasPermission(slug), "%s in %s", slug, region)
			}
		}
	}
}

func TestDecideWithoutResource(t *testing.T) {
	r := newRole(role.TypeUser)

	ok, err := r.Can("cards.create", "", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	out, err := r.Decide("billing.manage", "", nil)
	require.NoError(t, err)
	assert.False(t, out.Allowed)
	assert.Equal(t, role.ReasonNoSuchPermission, out.Reason)
	assert.Equal(t, permission.Slug("billing.manage"), out.Permission)
}

func TestDecideInHidesInvisible(t *testing.T) {
	r := newRole(role.TypeUser)
	none := func(permission.Slug) bool { return false }

	out, err := r.DecideIn(none, "view", "cards", nil)
	require.NoError(t, err)
	assert.False(t, out.Allowed)
	assert.Equal(t, role.ReasonNoSuchPermission, out.Reason)
}

func TestDecideMalformedConstraint(t *testing.T) {
	r := newRole(role.TypeUser)
	r.Overrides = map[permission.Slug]role.Override{
		"cards.publish": {Granted: true, Constraints: []constraint.Expr{
			{Field: "email", Operator: constraint.OpRegex, Value: "("},
		}},
	}

	_, err := r.Can("publish", "cards", map[string]any{"email": "x"})
	require.ErrorIs(t, err, constraint.ErrInvalidConstraint)
}

func TestCanManage(t *testing.T) {
	admin := newRole(role.TypeAdmin)
	user := newRole(role.TypeUser)
	super := newRole(role.TypeSuperAdmin)

	assert.True(t, role.CanManage(admin, user))
	assert.False(t, role.CanManage(user, admin))
	assert.False(t, role.CanManage(admin, newRole(role.TypeAdmin)))
	assert.True(t, role.CanManage(super, admin))
	assert.False(t, role.CanManage(nil, user))
}

func TestHierarchyDoesNotAffectDecisions(t *testing.T) {
	user := newRole(role.TypeUser)
	admin := newRole(role.TypeAdmin)
	ctx := map[string]any{"owner_id": "u1"}

	before, err := user.Decide("view", "cards", ctx)
	require.NoError(t, err)
	beforeAdmin, err := admin.Decide("delete_own", "cards", ctx)
	require.NoError(t, err)

	_ = role.CanManage(admin, user)
	_ = role.CanManage(user, admin)

	after, err := user.Decide("view", "cards", ctx)
	require.NoError(t, err)
	afterAdmin, err := admin.Decide("delete_own", "cards", ctx)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, beforeAdmin, afterAdmin)
	assert.False(t, afterAdmin.Allowed, "a higher level grants nothing by itself")
}

func TestIsAssignable(t *testing.T) {
	assert.True(t, role.IsAssignable(newRole(role.TypeAdmin)))
	assert.False(t, role.IsAssignable(newRole(role.TypeSuperAdmin)))

	inactive := newRole(role.TypeUser)
	inactive.Active = false
	assert.False(t, role.IsAssignable(inactive))
	assert.False(t, role.IsAssignable(nil))
}

func TestGranted(t *testing.T) {
	r := newRole(role.TypeUser)
	r.SetOverride("analytics.export", role.Override{Granted: true})
	r.SetOverride("cards.create", role.Override{Granted: false})

	got := r.Granted(nil)
	assert.Contains(t, got, permission.Slug("analytics.export"))
	assert.Contains(t, got, permission.Slug("cards.create"), "denials are not subtracted")
	assert.True(t, slices.IsSorted(got))
}

func TestClone(t *testing.T) {
	r := newRole(role.TypeUser)
	r.SetOverride("cards.publish", role.Override{Granted: true, Constraints: []constraint.Expr{
		{Field: "a", Operator: constraint.OpEquals, Value: 1},
	}})

	c := r.Clone()
	c.SetOverride("billing.manage", role.Override{Granted: true})
	c.Overrides["cards.publish"].Constraints[0].Field = "b"

	assert.Len(t, r.Overrides, 1)
	assert.Equal(t, "a", r.Overrides["cards.publish"].Constraints[0].Field)
}
