package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/aegis/assignment"
	"github.com/xraph/aegis/constraint"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/role"
)

// newTestStore opens a migrated store on a file in a temporary directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	drv := sqlitedriver.New()
	require.NoError(t, drv.Open(ctx, filepath.Join(t.TempDir(), "aegis.db")))
	db, err := grove.Open(drv)
	require.NoError(t, err)

	s := New(db)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func createRole(t *testing.T, s *Store, slug string) *role.Role {
	t.Helper()
	r := &role.Role{ID: id.NewRoleID(), Slug: slug, Name: slug, Type: role.TypeUser, Active: true}
	require.NoError(t, s.CreateRole(context.Background(), r))
	return r
}

func TestListRolesForUserSkipsExpired(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Hour), now.Add(time.Hour)

	open := createRole(t, s, "open")
	expired := createRole(t, s, "expired")
	pending := createRole(t, s, "pending")

	for _, a := range []*assignment.Assignment{
		{ID: id.NewAssignmentID(), UserID: "u1", RoleID: open.ID, AssignedAt: now},
		{ID: id.NewAssignmentID(), UserID: "u1", RoleID: expired.ID, AssignedAt: now, ExpiresAt: &past},
		{ID: id.NewAssignmentID(), UserID: "u1", RoleID: pending.ID, AssignedAt: now, ExpiresAt: &future},
		{ID: id.NewAssignmentID(), UserID: "u2", RoleID: open.ID, AssignedAt: now},
	} {
		require.NoError(t, s.UpsertAssignment(ctx, a))
	}

	roles, err := s.ListRolesForUser(ctx, "u1", now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []id.RoleID{open.ID, pending.ID}, roles)

	later, err := s.ListRolesForUser(ctx, "u1", future.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []id.RoleID{open.ID}, later)
}

func TestListPermissionsOrdersByModuleThenAction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	catalog := permission.DefaultCatalog()
	for i := len(catalog) - 1; i >= 0; i-- {
		require.NoError(t, s.UpsertPermission(ctx, catalog[i]))
	}

	all, err := s.ListPermissions(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, len(catalog))
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		ordered := prev.Module < cur.Module || (prev.Module == cur.Module && prev.Action <= cur.Action)
		assert.True(t, ordered, "%s listed before %s", prev.Slug, cur.Slug)
	}

	active := true
	cards, err := s.ListPermissions(ctx, &permission.ListFilter{Module: "cards", Active: &active})
	require.NoError(t, err)
	for _, p := range cards {
		assert.Equal(t, "cards", p.Module)
	}
}

func TestOverrideConstraintsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := createRole(t, s, "member")

	ov := role.Override{Granted: true, Constraints: []constraint.Expr{
		{Field: "owner_id", Operator: constraint.OpEquals, Value: "u1"},
		{Field: "region", Operator: constraint.OpIn, Value: []any{"eu", "us"}},
	}}
	require.NoError(t, s.SetOverride(ctx, r.ID, "cards.publish", ov))
	require.NoError(t, s.SetOverride(ctx, r.ID, "cards.delete_own", role.Override{Granted: false}))

	got, err := s.GetRole(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got.Overrides, 2)

	publish, ok := got.OverrideFor("cards.publish")
	require.True(t, ok)
	assert.True(t, publish.Granted)
	require.Len(t, publish.Constraints, 2)
	assert.Equal(t, "owner_id", publish.Constraints[0].Field)
	assert.Equal(t, constraint.OpEquals, publish.Constraints[0].Operator)
	assert.Equal(t, "u1", publish.Constraints[0].Value)
	assert.Equal(t, constraint.OpIn, publish.Constraints[1].Operator)
	assert.Equal(t, []any{"eu", "us"}, publish.Constraints[1].Value)

	deny, ok := got.OverrideFor("cards.delete_own")
	require.True(t, ok)
	assert.False(t, deny.Granted)
	assert.Empty(t, deny.Constraints)

	// Setting again replaces the override.
	require.NoError(t, s.SetOverride(ctx, r.ID, "cards.publish", role.Override{Granted: false}))
	got, err = s.GetRole(ctx, r.ID)
	require.NoError(t, err)
	publish, _ = got.OverrideFor("cards.publish")
	assert.False(t, publish.Granted)
	assert.Empty(t, publish.Constraints)
}

func TestUpsertKeepsExistingIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := permission.New("cards.view_own", "first")
	require.NoError(t, s.UpsertPermission(ctx, p))
	again := permission.New("cards.view_own", "second")
	require.NoError(t, s.UpsertPermission(ctx, again))
	assert.Equal(t, p.ID, again.ID)

	stored, err := s.GetPermissionBySlug(ctx, "cards.view_own")
	require.NoError(t, err)
	assert.Equal(t, p.ID, stored.ID)
	assert.Equal(t, "second", stored.Description)
	n, err := s.CountPermissions(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	r := createRole(t, s, "member")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := &assignment.Assignment{ID: id.NewAssignmentID(), UserID: "u1", RoleID: r.ID, AssignedAt: now}
	require.NoError(t, s.UpsertAssignment(ctx, first))
	renewed := &assignment.Assignment{ID: id.NewAssignmentID(), UserID: "u1", RoleID: r.ID, AssignedAt: now.Add(time.Hour), Notes: "renewed"}
	require.NoError(t, s.UpsertAssignment(ctx, renewed))
	assert.Equal(t, first.ID, renewed.ID)

	got, err := s.FindAssignment(ctx, "u1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "renewed", got.Notes)
}
