package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/role"
	"github.com/xraph/aegis/store"
	"github.com/xraph/aegis/store/memory"
)

var errStoreDown = errors.New("store down")

// downStore fails every role lookup.
type downStore struct {
	store.Store
}

func (downStore) ListRolesForUser(context.Context, string, time.Time) ([]id.RoleID, error) {
	return nil, errStoreDown
}

func newEngine(t *testing.T, s store.Store) *aegis.Engine {
	t.Helper()
	ctx := context.Background()
	eng, err := aegis.NewEngine(aegis.WithStore(s))
	require.NoError(t, err)
	require.NoError(t, eng.SeedDefaults(ctx))
	r := &role.Role{Slug: "member", Type: role.TypeUser, Active: true}
	require.NoError(t, eng.CreateRole(ctx, r))
	_, err = eng.AssignRole(ctx, aegis.AssignRequest{UserID: "u1", RoleID: r.ID})
	require.NoError(t, err)
	return eng
}

func TestCheckAnyAllowsWhenOneCheckPasses(t *testing.T) {
	eng := newEngine(t, memory.New())
	checks := []aegis.CheckRequest{
		{Action: "launch", Resource: "rockets"},
		{Action: "view", Resource: "cards"},
	}
	assert.NoError(t, checkAny(context.Background(), eng, checks, "u1", nil))
}

func TestCheckAnyDeniesWhenNoneAllow(t *testing.T) {
	eng := newEngine(t, memory.New())
	checks := []aegis.CheckRequest{{Action: "launch", Resource: "rockets"}}
	err := checkAny(context.Background(), eng, checks, "u1", nil)
	assert.ErrorIs(t, err, aegis.ErrAccessDenied)
}

func TestCheckAnyReportsEngineErrors(t *testing.T) {
	mem := memory.New()
	newEngine(t, mem)
	failing, err := aegis.NewEngine(aegis.WithStore(downStore{Store: mem}))
	require.NoError(t, err)

	checks := []aegis.CheckRequest{{Action: "view", Resource: "cards"}}
	err = checkAny(context.Background(), failing, checks, "u1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errStoreDown)
	assert.NotErrorIs(t, err, aegis.ErrAccessDenied)
}
