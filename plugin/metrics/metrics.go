// Package metrics exports Prometheus metrics for authorization decisions and
// administrative changes.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/assignment"
	"github.com/xraph/aegis/constraint"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/plugin"
	"github.com/xraph/aegis/role"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Collector)(nil)
	_ plugin.AfterCheck        = (*Collector)(nil)
	_ plugin.RoleCreated       = (*Collector)(nil)
	_ plugin.RoleUpdated       = (*Collector)(nil)
	_ plugin.RoleDeleted       = (*Collector)(nil)
	_ plugin.PermissionGranted = (*Collector)(nil)
	_ plugin.PermissionDenied  = (*Collector)(nil)
	_ plugin.PermissionRevoked = (*Collector)(nil)
	_ plugin.RoleAssigned      = (*Collector)(nil)
	_ plugin.RoleUnassigned    = (*Collector)(nil)
)

// Config holds configuration for the Collector.
type Config struct {
	Namespace string `yaml:"namespace" json:"namespace"`
	Subsystem string `yaml:"subsystem" json:"subsystem"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Namespace: "aegis"}
}

// Collector is a plugin that counts decisions and admin operations. It
// owns its Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	Checks        *prometheus.CounterVec
	CheckDuration *prometheus.HistogramVec
	AdminOps      *prometheus.CounterVec
}

// New creates a Collector with the default configuration.
func New() *Collector {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Collector with its own Prometheus registry.
func NewWithConfig(cfg Config) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		Checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "checks_total",
			Help:      "Total number of authorization checks",
		}, []string{"decision", "allowed"}),
		CheckDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "check_duration_seconds",
			Help:      "Evaluation time of authorization checks in seconds",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}, []string{"allowed"}),
		AdminOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "admin_operations_total",
			Help:      "Total number of role, override and assignment changes",
		}, []string{"operation"}),
	}
	reg.MustRegister(c.Checks, c.CheckDuration, c.AdminOps)
	return c
}

// Registry returns the Prometheus registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler returns an HTTP handler that serves the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Name implements plugin.Plugin.
func (c *Collector) Name() string { return "metrics" }

// OnAfterCheck implements plugin.AfterCheck.
func (c *Collector) OnAfterCheck(_ context.Context, _, result any) error {
	res, ok := result.(*aegis.CheckResult)
	if !ok {
		return nil
	}
	allowed := strconv.FormatBool(res.Allowed)
	c.Checks.WithLabelValues(string(res.Decision), allowed).Inc()
	c.CheckDuration.WithLabelValues(allowed).Observe(time.Duration(res.EvalTimeNs).Seconds())
	return nil
}

func (c *Collector) admin(op string) error {
	c.AdminOps.WithLabelValues(op).Inc()
	return nil
}

// OnRoleCreated implements plugin.RoleCreated.
func (c *Collector) OnRoleCreated(context.Context, *role.Role) error { return c.admin("role_created") }

// OnRoleUpdated implements plugin.RoleUpdated.
func (c *Collector) OnRoleUpdated(context.Context, *role.Role) error { return c.admin("role_updated") }

// OnRoleDeleted implements plugin.RoleDeleted.
func (c *Collector) OnRoleDeleted(context.Context, id.RoleID) error { return c.admin("role_deleted") }

// OnPermissionGranted implements plugin.PermissionGranted.
func (c *Collector) OnPermissionGranted(context.Context, id.RoleID, permission.Slug, []constraint.Expr) error {
	return c.admin("permission_granted")
}

// OnPermissionDenied implements plugin.PermissionDenied.
func (c *Collector) OnPermissionDenied(context.Context, id.RoleID, permission.Slug, []constraint.Expr) error {
	return c.admin("permission_denied")
}

// OnPermissionRevoked implements plugin.PermissionRevoked.
func (c *Collector) OnPermissionRevoked(context.Context, id.RoleID, permission.Slug) error {
	return c.admin("permission_revoked")
}

// OnRoleAssigned implements plugin.RoleAssigned.
func (c *Collector) OnRoleAssigned(context.Context, *assignment.Assignment) error {
	return c.admin("role_assigned")
}

// OnRoleUnassigned implements plugin.RoleUnassigned.
func (c *Collector) OnRoleUnassigned(context.Context, *assignment.Assignment) error {
	return c.admin("role_unassigned")
}
