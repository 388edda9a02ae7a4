// Package aegis is a role-based authorization engine with per-role
// overrides and context constraints.
//
// Permissions are catalog entries keyed "module.action". Every role has a
// type that supplies a fixed default permission set and a hierarchy level.
// Explicit grants and denials on a role override its defaults, and either
// may carry constraints evaluated against the request context.
//
//	eng, err := aegis.NewEngine(
//	    aegis.WithStore(memory.New()),
//	)
//	_ = eng.SeedDefaults(ctx)
//	ok, err := eng.Can(ctx, "user_123", "edit", "cards", map[string]any{
//	    "owner_id": "user_123",
//	})
package aegis

import (
	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/role"
)

// CheckRequest is the input to an authorization check.
type CheckRequest struct {
	UserID   string         `json:"user_id"`
	Action   string         `json:"action"`
	Resource string         `json:"resource,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// CheckResult is the outcome of an authorization check.
type CheckResult struct {
	Allowed    bool            `json:"allowed"`
	Decision   Decision        `json:"decision"`
	Reason     string          `json:"reason,omitempty"`
	Permission permission.Slug `json:"permission,omitempty"`
	MatchedBy  []MatchInfo     `json:"matched_by,omitempty"`
	EvalTimeNs int64           `json:"eval_time_ns"`
}

// Decision is the reason code of an authorization outcome.
type Decision string

const (
	// DecisionGrantedByDefault means the role type's defaults grant the
	// permission.
	DecisionGrantedByDefault Decision = "granted_by_default"

	// DecisionGrantedByOverride means an explicit grant on the role matched.
	DecisionGrantedByOverride Decision = "granted_by_override"

	// DecisionDeniedByRole means an explicit denial on the role matched.
	DecisionDeniedByRole Decision = "denied_by_role"

	// DecisionConstraintFailed means a constrained grant matched but its
	// constraints did not hold.
	DecisionConstraintFailed Decision = "constraint_failed"

	// DecisionNoSuchPermission means no role grants the permission.
	DecisionNoSuchPermission Decision = "no_such_permission"

	// DecisionNoRoles means the user holds no active role.
	DecisionNoRoles Decision = "no_roles"
)

// Allowed reports whether d grants access.
func (d Decision) Allowed() bool {
	return d == DecisionGrantedByDefault || d == DecisionGrantedByOverride
}

func decisionOf(r role.Reason) Decision { return Decision(r) }

// MatchInfo identifies the role and permission that produced a decision.
type MatchInfo struct {
	RoleID     string          `json:"role_id"`
	RoleSlug   string          `json:"role_slug"`
	Permission permission.Slug `json:"permission"`
	Reason     Decision        `json:"reason"`
}
