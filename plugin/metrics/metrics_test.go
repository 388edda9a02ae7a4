package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/plugin/metrics"
	"github.com/xraph/aegis/role"
	"github.com/xraph/aegis/store/memory"
)

func TestCollectorCountsChecksAndAdminOps(t *testing.T) {
	ctx := context.Background()
	col := metrics.New()
	eng, err := aegis.NewEngine(aegis.WithStore(memory.New()), aegis.WithPlugin(col))
	require.NoError(t, err)
	require.NoError(t, eng.SeedDefaults(ctx))

	r := &role.Role{Slug: "member", Type: role.TypeUser, Active: true}
	require.NoError(t, eng.CreateRole(ctx, r))
	_, err = eng.AssignRole(ctx, aegis.AssignRequest{UserID: "u1", RoleID: r.ID})
	require.NoError(t, err)
	require.NoError(t, eng.GrantPermission(ctx, r.ID, "users.view"))

	for range 3 {
		_, err = eng.Can(ctx, "u1", "view", "cards", nil)
		require.NoError(t, err)
	}
	_, err = eng.Can(ctx, "u1", "manage", "system", nil)
	require.NoError(t, err)

	assert.InDelta(t, 3, testutil.ToFloat64(col.Checks.WithLabelValues("granted_by_default", "true")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(col.Checks.WithLabelValues("no_such_permission", "false")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(col.AdminOps.WithLabelValues("role_created")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(col.AdminOps.WithLabelValues("role_assigned")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(col.AdminOps.WithLabelValues("permission_granted")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(col.CheckDuration))
}

func TestCollectorHandler(t *testing.T) {
	col := metrics.NewWithConfig(metrics.Config{Namespace: "test"})
	col.Checks.WithLabelValues("no_roles", "false").Inc()

	rec := httptest.NewRecorder()
	col.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_checks_total"))
}
