package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/aegis/assignment"
	"github.com/xraph/aegis/constraint"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/role"
)

// Named entry types pair a hook with the plugin name for logging.

type beforeCheckEntry struct {
	name string
	hook BeforeCheck
}
type afterCheckEntry struct {
	name string
	hook AfterCheck
}
type roleCreatedEntry struct {
	name string
	hook RoleCreated
}
type roleUpdatedEntry struct {
	name string
	hook RoleUpdated
}
type roleDeletedEntry struct {
	name string
	hook RoleDeleted
}
type permissionRegisteredEntry struct {
	name string
	hook PermissionRegistered
}
type permissionDeletedEntry struct {
	name string
	hook PermissionDeleted
}
type permissionGrantedEntry struct {
	name string
	hook PermissionGranted
}
type permissionDeniedEntry struct {
	name string
	hook PermissionDenied
}
type permissionRevokedEntry struct {
	name string
	hook PermissionRevoked
}
type roleAssignedEntry struct {
	name string
	hook RoleAssigned
}
type roleUnassignedEntry struct {
	name string
	hook RoleUnassigned
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	beforeCheck          []beforeCheckEntry
	afterCheck           []afterCheckEntry
	roleCreated          []roleCreatedEntry
	roleUpdated          []roleUpdatedEntry
	roleDeleted          []roleDeletedEntry
	permissionRegistered []permissionRegisteredEntry
	permissionDeleted    []permissionDeletedEntry
	permissionGranted    []permissionGrantedEntry
	permissionDenied     []permissionDeniedEntry
	permissionRevoked    []permissionRevokedEntry
	roleAssigned         []roleAssignedEntry
	roleUnassigned       []roleUnassignedEntry
	shutdown             []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(BeforeCheck); ok {
		r.beforeCheck = append(r.beforeCheck, beforeCheckEntry{name, h})
	}
	if h, ok := p.(AfterCheck); ok {
		r.afterCheck = append(r.afterCheck, afterCheckEntry{name, h})
	}
	if h, ok := p.(RoleCreated); ok {
		r.roleCreated = append(r.roleCreated, roleCreatedEntry{name, h})
	}
	if h, ok := p.(RoleUpdated); ok {
		r.roleUpdated = append(r.roleUpdated, roleUpdatedEntry{name, h})
	}
	if h, ok := p.(RoleDeleted); ok {
		r.roleDeleted = append(r.roleDeleted, roleDeletedEntry{name, h})
	}
	if h, ok := p.(PermissionRegistered); ok {
		r.permissionRegistered = append(r.permissionRegistered, permissionRegisteredEntry{name, h})
	}
	if h, ok := p.(PermissionDeleted); ok {
		r.permissionDeleted = append(r.permissionDeleted, permissionDeletedEntry{name, h})
	}
	if h, ok := p.(PermissionGranted); ok {
		r.permissionGranted = append(r.permissionGranted, permissionGrantedEntry{name, h})
	}
	if h, ok := p.(PermissionDenied); ok {
		r.permissionDenied = append(r.permissionDenied, permissionDeniedEntry{name, h})
	}
	if h, ok := p.(PermissionRevoked); ok {
		r.permissionRevoked = append(r.permissionRevoked, permissionRevokedEntry{name, h})
	}
	if h, ok := p.(RoleAssigned); ok {
		r.roleAssigned = append(r.roleAssigned, roleAssignedEntry{name, h})
	}
	if h, ok := p.(RoleUnassigned); ok {
		r.roleUnassigned = append(r.roleUnassigned, roleUnassignedEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// ──────────────────────────────────────────────────
// Check event emitters
// ──────────────────────────────────────────────────

// EmitBeforeCheck notifies all plugins that implement BeforeCheck.
func (r *Registry) EmitBeforeCheck(ctx context.Context, req any) {
	for _, e := range r.beforeCheck {
		if err := e.hook.OnBeforeCheck(ctx, req); err != nil {
			r.logHookError("OnBeforeCheck", e.name, err)
		}
	}
}

// EmitAfterCheck notifies all plugins that implement AfterCheck.
func (r *Registry) EmitAfterCheck(ctx context.Context, req, result any) {
	for _, e := range r.afterCheck {
		if err := e.hook.OnAfterCheck(ctx, req, result); err != nil {
			r.logHookError("OnAfterCheck", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Role event emitters
// ──────────────────────────────────────────────────

// EmitRoleCreated notifies all plugins that implement RoleCreated.
func (r *Registry) EmitRoleCreated(ctx context.Context, rl *role.Role) {
	for _, e := range r.roleCreated {
		if err := e.hook.OnRoleCreated(ctx, rl); err != nil {
			r.logHookError("OnRoleCreated", e.name, err)
		}
	}
}

// EmitRoleUpdated notifies all plugins that implement RoleUpdated.
func (r *Registry) EmitRoleUpdated(ctx context.Context, rl *role.Role) {
	for _, e := range r.roleUpdated {
		if err := e.hook.OnRoleUpdated(ctx, rl); err != nil {
			r.logHookError("OnRoleUpdated", e.name, err)
		}
	}
}

// EmitRoleDeleted notifies all plugins that implement RoleDeleted.
func (r *Registry) EmitRoleDeleted(ctx context.Context, roleID id.RoleID) {
	for _, e := range r.roleDeleted {
		if err := e.hook.OnRoleDeleted(ctx, roleID); err != nil {
			r.logHookError("OnRoleDeleted", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Catalog event emitters
// ──────────────────────────────────────────────────

// EmitPermissionRegistered notifies all plugins that implement PermissionRegistered.
func (r *Registry) EmitPermissionRegistered(ctx context.Context, p *permission.Permission) {
	for _, e := range r.permissionRegistered {
		if err := e.hook.OnPermissionRegistered(ctx, p); err != nil {
			r.logHookError("OnPermissionRegistered", e.name, err)
		}
	}
}

// EmitPermissionDeleted notifies all plugins that implement PermissionDeleted.
func (r *Registry) EmitPermissionDeleted(ctx context.Context, slug permission.Slug) {
	for _, e := range r.permissionDeleted {
		if err := e.hook.OnPermissionDeleted(ctx, slug); err != nil {
			r.logHookError("OnPermissionDeleted", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Override event emitters
// ──────────────────────────────────────────────────

// EmitPermissionGranted notifies all plugins that implement PermissionGranted.
func (r *Registry) EmitPermissionGranted(ctx context.Context, roleID id.RoleID, slug permission.Slug, constraints []constraint.Expr) {
	for _, e := range r.permissionGranted {
		if err := e.hook.OnPermissionGranted(ctx, roleID, slug, constraints); err != nil {
			r.logHookError("OnPermissionGranted", e.name, err)
		}
	}
}

// EmitPermissionDenied notifies all plugins that implement PermissionDenied.
func (r *Registry) EmitPermissionDenied(ctx context.Context, roleID id.RoleID, slug permission.Slug, constraints []constraint.Expr) {
	for _, e := range r.permissionDenied {
		if err := e.hook.OnPermissionDenied(ctx, roleID, slug, constraints); err != nil {
			r.logHookError("OnPermissionDenied", e.name, err)
		}
	}
}

// EmitPermissionRevoked notifies all plugins that implement PermissionRevoked.
func (r *Registry) EmitPermissionRevoked(ctx context.Context, roleID id.RoleID, slug permission.Slug) {
	for _, e := range r.permissionRevoked {
		if err := e.hook.OnPermissionRevoked(ctx, roleID, slug); err != nil {
			r.logHookError("OnPermissionRevoked", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Assignment event emitters
// ──────────────────────────────────────────────────

// EmitRoleAssigned notifies all plugins that implement RoleAssigned.
func (r *Registry) EmitRoleAssigned(ctx context.Context, a *assignment.Assignment) {
	for _, e := range r.roleAssigned {
		if err := e.hook.OnRoleAssigned(ctx, a); err != nil {
			r.logHookError("OnRoleAssigned", e.name, err)
		}
	}
}

// EmitRoleUnassigned notifies all plugins that implement RoleUnassigned.
func (r *Registry) EmitRoleUnassigned(ctx context.Context, a *assignment.Assignment) {
	for _, e := range r.roleUnassigned {
		if err := e.hook.OnRoleUnassigned(ctx, a); err != nil {
			r.logHookError("OnRoleUnassigned", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Shutdown emitter
// ──────────────────────────────────────────────────

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block the pipeline.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
