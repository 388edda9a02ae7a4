package aegis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/plugin"
	"github.com/xraph/aegis/role"
	"github.com/xraph/aegis/store"
)

const tracerName = "github.com/xraph/aegis"

// Engine is the central authorization engine. It resolves a user's roles,
// evaluates them against the permission catalog, manages the store, and
// fires plugin hooks.
type Engine struct {
	store   store.Store
	cache   Cache
	plugins *plugin.Registry
	logger  *slog.Logger
	config  Config
	clock   func() time.Time
	tracer  trace.Tracer

	// mu serialises administrative mutations. Checks never take it.
	mu      sync.Mutex
	lookups singleflight.Group

	// gen counts invalidations. A result resolved under an older gen is
	// never cached. cacheMu makes the gen comparison and the cache write
	// atomic with respect to invalidation.
	gen     atomic.Uint64
	cacheMu sync.RWMutex

	catalogGen atomic.Uint64
	catalog    atomic.Pointer[catalogSnapshot]
}

// catalogSnapshot is the active catalog as loaded under catalogGen gen.
type catalogSnapshot struct {
	gen    uint64
	loaded time.Time
	set    map[permission.Slug]struct{}
}

// NewEngine creates a new Aegis engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		config: DefaultConfig(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, ErrStoreRequired
	}
	if e.tracer == nil {
		e.tracer = otel.GetTracerProvider().Tracer(tracerName)
	}
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry (may be nil).
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start performs any startup initialization.
func (e *Engine) Start(_ context.Context) error { return nil }

// Stop notifies plugins of shutdown.
func (e *Engine) Stop(ctx context.Context) error {
	if e.plugins != nil {
		e.plugins.EmitShutdown(ctx)
	}
	return nil
}

func (e *Engine) now() time.Time { return e.clock() }

// Check performs an authorization check. This is the hot path.
//
// The user's roles are those with an assignment in force at the engine
// clock's now. Inactive and missing roles are skipped. Any allowing role
// allows. Without one, the most informative denial is reported.
func (e *Engine) Check(ctx context.Context, req *CheckRequest) (*CheckResult, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "aegis.Check",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("aegis.user_id", req.UserID),
			attribute.String("aegis.action", req.Action),
			attribute.String("aegis.resource", req.Resource),
		),
	)
	defer span.End()

	// 1. Cache hit?
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, req); ok {
			cached.EvalTimeNs = time.Since(start).Nanoseconds()
			span.SetAttributes(
				attribute.Bool("aegis.cache_hit", true),
				attribute.Bool("aegis.allowed", cached.Allowed),
				attribute.String("aegis.decision", string(cached.Decision)),
			)
			return cached, nil
		}
	}

	// 2. Plugin hook: before check.
	if e.plugins != nil {
		e.plugins.EmitBeforeCheck(ctx, req)
	}

	// 3. Resolve the user's eligible roles and the live catalog.
	gen := e.gen.Load()
	var (
		shared   GenerationCache
		snapshot string
	)
	if gc, ok := e.cache.(GenerationCache); ok {
		if g, ok := gc.Generation(ctx, req.UserID); ok {
			shared, snapshot = gc, g
		}
	}
	roles, err := e.activeRoles(ctx, req.UserID)
	if err != nil {
		return nil, e.failSpan(span, fmt.Errorf("aegis: resolve roles: %w", err))
	}
	visible, err := e.visibility(ctx)
	if err != nil {
		return nil, e.failSpan(span, fmt.Errorf("aegis: load catalog: %w", err))
	}

	// 4. Evaluate.
	result, err := evaluate(roles, visible, req)
	if err != nil {
		return nil, e.failSpan(span, err)
	}
	result.EvalTimeNs = time.Since(start).Nanoseconds()

	span.SetAttributes(
		attribute.Bool("aegis.cache_hit", false),
		attribute.Bool("aegis.allowed", result.Allowed),
		attribute.String("aegis.decision", string(result.Decision)),
		attribute.String("aegis.permission", result.Permission.String()),
	)

	// 5. Cache the result, unless something was invalidated meanwhile.
	if e.cache != nil {
		e.storeResult(ctx, gen, shared, snapshot, req, result)
	}

	// 6. Plugin hook: after check.
	if e.plugins != nil {
		e.plugins.EmitAfterCheck(ctx, req, result)
	}

	if e.config.LogDecisions {
		e.logger.Debug("aegis: decision",
			slog.String("user", req.UserID),
			slog.String("permission", result.Permission.String()),
			slog.String("decision", string(result.Decision)),
			slog.Bool("allowed", result.Allowed),
		)
	}

	return result, nil
}

func (e *Engine) storeResult(ctx context.Context, gen uint64, shared GenerationCache, snapshot string, req *CheckRequest, result *CheckResult) {
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()
	if e.gen.Load() != gen {
		return
	}
	if shared != nil {
		shared.SetAt(ctx, snapshot, req, result)
		return
	}
	e.cache.Set(ctx, req, result)
}

func (e *Engine) failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Enforce returns an error wrapping ErrAccessDenied if the check denies.
func (e *Engine) Enforce(ctx context.Context, req *CheckRequest) error {
	result, err := e.Check(ctx, req)
	if err != nil {
		return fmt.Errorf("aegis check: %w", err)
	}
	if !result.Allowed {
		return fmt.Errorf("%w: %s: %s", ErrAccessDenied, result.Decision, result.Reason)
	}
	return nil
}

// Can is a shorthand for a simple authorization check.
func (e *Engine) Can(ctx context.Context, userID, action, resource string, attrs map[string]any) (bool, error) {
	result, err := e.Check(ctx, &CheckRequest{
		UserID:   userID,
		Action:   action,
		Resource: resource,
		Context:  attrs,
	})
	if err != nil {
		return false, err
	}
	return result.Allowed, nil
}

// CheckRoles evaluates req against already resolved roles with the same
// rules as Check. Assignments are not consulted and nothing is cached, but
// inactive roles and the catalog still apply.
func (e *Engine) CheckRoles(ctx context.Context, roles []*role.Role, req *CheckRequest) (*CheckResult, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}
	start := time.Now()
	visible, err := e.visibility(ctx)
	if err != nil {
		return nil, fmt.Errorf("aegis: load catalog: %w", err)
	}
	eligible := make([]*role.Role, 0, len(roles))
	for _, r := range roles {
		if r != nil && r.Active {
			eligible = append(eligible, r)
		}
	}
	result, err := evaluate(eligible, visible, req)
	if err != nil {
		return nil, err
	}
	result.EvalTimeNs = time.Since(start).Nanoseconds()
	return result, nil
}

// HasAnyPermission reports whether any of the user's roles grants any of
// slugs. Constraints are ignored. An empty slug list is false.
func (e *Engine) HasAnyPermission(ctx context.Context, userID string, slugs ...permission.Slug) (bool, error) {
	if len(slugs) == 0 {
		return false, nil
	}
	roles, visible, err := e.rolesAndCatalog(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		for _, s := range slugs {
			if r.HasPermissionIn(visible, s) {
				return true, nil
			}
		}
	}
	return false, nil
}

// HasAllPermissions reports whether a single role of the user grants every
// one of slugs. Constraints are ignored. An empty slug list is false.
func (e *Engine) HasAllPermissions(ctx context.Context, userID string, slugs ...permission.Slug) (bool, error) {
	if len(slugs) == 0 {
		return false, nil
	}
	roles, visible, err := e.rolesAndCatalog(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		all := true
		for _, s := range slugs {
			if !r.HasPermissionIn(visible, s) {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

// EffectivePermissions returns the sorted union of what the user's roles
// grant: type defaults plus granted overrides, limited to the active
// catalog. Denials are per role and not subtracted. Constrained grants are
// included.
func (e *Engine) EffectivePermissions(ctx context.Context, userID string) ([]permission.Slug, error) {
	roles, visible, err := e.rolesAndCatalog(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[permission.Slug]struct{})
	out := make([]permission.Slug, 0)
	for _, r := range roles {
		for _, s := range r.Granted(visible) {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out, nil
}

// ActiveRoles returns copies of the user's eligible roles.
func (e *Engine) ActiveRoles(ctx context.Context, userID string) ([]*role.Role, error) {
	roles, err := e.activeRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*role.Role, len(roles))
	for i, r := range roles {
		out[i] = r.Clone()
	}
	return out, nil
}

// CanManage reports whether the acting role outranks the target role. It
// is advisory and never consulted by Check.
func (e *Engine) CanManage(ctx context.Context, actingRoleID, targetRoleID id.RoleID) (bool, error) {
	acting, err := e.GetRole(ctx, actingRoleID)
	if err != nil {
		return false, err
	}
	target, err := e.GetRole(ctx, targetRoleID)
	if err != nil {
		return false, err
	}
	return role.CanManage(acting, target), nil
}

func (e *Engine) rolesAndCatalog(ctx context.Context, userID string) ([]*role.Role, role.Visibility, error) {
	roles, err := e.activeRoles(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("aegis: resolve roles: %w", err)
	}
	visible, err := e.visibility(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("aegis: load catalog: %w", err)
	}
	return roles, visible, nil
}

// activeRoles loads the active roles bound to userID by assignments in force
// now. Concurrent lookups for one user share a single store round trip, so
// the returned roles must be treated as read-only. The lookup key carries the
// invalidation count, so a lookup started before a mutation is never shared
// with a caller that arrives after it.
func (e *Engine) activeRoles(ctx context.Context, userID string) ([]*role.Role, error) {
	if userID == "" {
		return nil, nil
	}
	key := "roles:" + strconv.FormatUint(e.gen.Load(), 10) + ":" + userID
	v, err, _ := e.lookups.Do(key, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		ids, err := e.store.ListRolesForUser(ctx, userID, e.now())
		if err != nil {
			return nil, err
		}
		roles := make([]*role.Role, 0, len(ids))
		for _, roleID := range ids {
			r, err := e.store.GetRole(ctx, roleID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if r.Active {
				roles = append(roles, r)
			}
		}
		return roles, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*role.Role), nil
}

// visibility returns the set of active catalog slugs. The snapshot is reused
// until this engine changes the catalog or it is older than
// Config.CatalogRefresh.
func (e *Engine) visibility(ctx context.Context) (role.Visibility, error) {
	set, err := e.catalogSet(ctx)
	if err != nil {
		return nil, err
	}
	return func(s permission.Slug) bool {
		_, ok := set[s]
		return ok
	}, nil
}

func (e *Engine) catalogSet(ctx context.Context) (map[permission.Slug]struct{}, error) {
	gen := e.catalogGen.Load()
	if snap := e.catalog.Load(); snap != nil && snap.gen == gen &&
		e.config.CatalogRefresh > 0 && e.now().Sub(snap.loaded) < e.config.CatalogRefresh {
		return snap.set, nil
	}

	v, err, _ := e.lookups.Do("catalog:"+strconv.FormatUint(gen, 10), func() (any, error) {
		active := true
		perms, err := e.store.ListPermissions(context.WithoutCancel(ctx), &permission.ListFilter{Active: &active})
		if err != nil {
			return nil, err
		}
		set := make(map[permission.Slug]struct{}, len(perms))
		for _, p := range perms {
			set[p.Slug] = struct{}{}
		}
		e.catalog.Store(&catalogSnapshot{gen: gen, loaded: e.now(), set: set})
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[permission.Slug]struct{}), nil
}

// evaluate ORs the per-role decisions. The first allowing role wins, in the
// order given. Otherwise the highest ranked denial is reported.
func evaluate(roles []*role.Role, visible role.Visibility, req *CheckRequest) (*CheckResult, error) {
	requested := role.Requested(req.Action, req.Resource)
	if len(roles) == 0 {
		return &CheckResult{
			Decision:   DecisionNoRoles,
			Reason:     "user has no active roles",
			Permission: requested,
		}, nil
	}

	var (
		best     role.Outcome
		bestRole *role.Role
	)
	for _, r := range roles {
		out, err := r.DecideIn(visible, req.Action, req.Resource, req.Context)
		if err != nil {
			return nil, fmt.Errorf("aegis: evaluate: %w", err)
		}
		if out.Allowed {
			return outcomeResult(r, out), nil
		}
		if bestRole == nil || out.Reason.Rank() > best.Reason.Rank() {
			best, bestRole = out, r
		}
	}
	return outcomeResult(bestRole, best), nil
}

func outcomeResult(r *role.Role, out role.Outcome) *CheckResult {
	d := decisionOf(out.Reason)
	res := &CheckResult{
		Allowed:    out.Allowed,
		Decision:   d,
		Permission: out.Permission,
	}
	switch d {
	case DecisionGrantedByDefault:
		res.Reason = fmt.Sprintf("role %q grants %s by default", r.Slug, out.Permission)
	case DecisionGrantedByOverride:
		res.Reason = fmt.Sprintf("role %q grants %s explicitly", r.Slug, out.Permission)
	case DecisionDeniedByRole:
		res.Reason = fmt.Sprintf("role %q denies %s", r.Slug, out.Permission)
	case DecisionConstraintFailed:
		res.Reason = fmt.Sprintf("constraints on %s for role %q did not hold", out.Permission, r.Slug)
	default:
		res.Reason = fmt.Sprintf("no role grants %s", out.Permission)
		return res
	}
	res.MatchedBy = []MatchInfo{{
		RoleID:     r.ID.String(),
		RoleSlug:   r.Slug,
		Permission: out.Permission,
		Reason:     d,
	}}
	return res
}
