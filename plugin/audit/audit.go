// Package audit records authorization decisions to a checklog store.
package audit

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/checklog"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin     = (*Recorder)(nil)
	_ plugin.AfterCheck = (*Recorder)(nil)
)

// Recorder writes one checklog entry per decision. Write failures are
// returned to the plugin registry, which logs them without failing the
// check.
type Recorder struct {
	store      checklog.Store
	deniedOnly bool
	clock      func() time.Time
}

// Option configures the Recorder.
type Option func(*Recorder)

// DeniedOnly records only decisions that deny access.
func DeniedOnly() Option {
	return func(r *Recorder) { r.deniedOnly = true }
}

// WithClock sets the time source for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.clock = now }
}

// New creates a Recorder writing to s.
func New(s checklog.Store, opts ...Option) *Recorder {
	r := &Recorder{store: s, clock: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name implements plugin.Plugin.
func (r *Recorder) Name() string { return "audit" }

// OnAfterCheck implements plugin.AfterCheck.
func (r *Recorder) OnAfterCheck(ctx context.Context, req, result any) error {
	cr, ok := req.(*aegis.CheckRequest)
	if !ok {
		return fmt.Errorf("audit: unexpected request type %T", req)
	}
	res, ok := result.(*aegis.CheckResult)
	if !ok {
		return fmt.Errorf("audit: unexpected result type %T", result)
	}
	if r.deniedOnly && res.Allowed {
		return nil
	}

	entry := &checklog.Entry{
		ID:         id.NewCheckLogID(),
		UserID:     cr.UserID,
		Action:     cr.Action,
		Resource:   cr.Resource,
		Permission: res.Permission.String(),
		Allowed:    res.Allowed,
		Decision:   string(res.Decision),
		Reason:     res.Reason,
		EvalTimeNs: res.EvalTimeNs,
		Context:    maps.Clone(cr.Context),
		CreatedAt:  r.clock().UTC(),
	}
	if len(res.MatchedBy) > 0 {
		entry.RoleID = res.MatchedBy[0].RoleID
		entry.RoleSlug = res.MatchedBy[0].RoleSlug
	}

	if err := r.store.CreateCheckLog(ctx, entry); err != nil {
		return fmt.Errorf("audit: record decision: %w", err)
	}
	return nil
}
