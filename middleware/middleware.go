// Package middleware provides HTTP authorization middleware for Aegis.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/aegis"
)

// ContextFunc builds the attributes that constraints are evaluated against.
type ContextFunc func(ctx forge.Context) map[string]any

// UserFunc resolves the user a request acts for. An empty result is
// checked as a user with no roles.
type UserFunc func(ctx forge.Context) string

type options struct {
	context ContextFunc
	user    UserFunc
}

// Option configures a middleware.
type Option func(*options)

// WithContext replaces the default attribute builder.
func WithContext(fn ContextFunc) Option {
	return func(o *options) { o.context = fn }
}

// WithUser replaces the default user resolution.
func WithUser(fn UserFunc) Option {
	return func(o *options) { o.user = fn }
}

func newOptions(opts []Option) options {
	o := options{context: DefaultContext, user: DefaultUser}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// DefaultUser reads the user ID set by the Forge auth layer.
func DefaultUser(ctx forge.Context) string {
	return forge.UserIDFromContext(ctx.Context())
}

// DefaultContext exposes the acting user as "user_id" and the ":id" route
// parameter, when present, as "resource_id".
func DefaultContext(ctx forge.Context) map[string]any {
	attrs := map[string]any{}
	if userID := forge.UserIDFromContext(ctx.Context()); userID != "" {
		attrs["user_id"] = userID
	}
	if id := ctx.Param("id"); id != "" {
		attrs["resource_id"] = id
	}
	return attrs
}

// Require enforces authorization for action on resource.
func Require(eng *aegis.Engine, action, resource string, opts ...Option) forge.Middleware {
	return RequireAll(eng, []aegis.CheckRequest{{Action: action, Resource: resource}}, opts...)
}

// RequireAny allows the request if ANY of the checks pass. UserID and
// Context on the checks are filled per request.
func RequireAny(eng *aegis.Engine, checks []aegis.CheckRequest, opts ...Option) forge.Middleware {
	o := newOptions(opts)
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			if err := checkAny(ctx.Context(), eng, checks, o.user(ctx), o.context(ctx)); err != nil {
				return denyResponse(ctx, err)
			}
			return next(ctx)
		}
	}
}

// checkAny returns nil if any check allows. Otherwise it returns the last
// engine error, or ErrAccessDenied when every check ran and denied.
func checkAny(ctx context.Context, eng *aegis.Engine, checks []aegis.CheckRequest, userID string, attrs map[string]any) error {
	var lastErr error
	for i := range checks {
		c := checks[i]
		c.UserID, c.Context = userID, attrs
		result, err := eng.Check(ctx, &c)
		if err != nil {
			lastErr = err
			continue
		}
		if result.Allowed {
			return nil
		}
	}
	if lastErr != nil {
		return fmt.Errorf("aegis check: %w", lastErr)
	}
	return aegis.ErrAccessDenied
}

// RequireAll allows the request only if ALL checks pass.
func RequireAll(eng *aegis.Engine, checks []aegis.CheckRequest, opts ...Option) forge.Middleware {
	o := newOptions(opts)
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			userID, attrs := o.user(ctx), o.context(ctx)
			for i := range checks {
				c := checks[i]
				c.UserID, c.Context = userID, attrs
				if err := eng.Enforce(ctx.Context(), &c); err != nil {
					return denyResponse(ctx, err)
				}
			}
			return next(ctx)
		}
	}
}

func denyResponse(ctx forge.Context, err error) error {
	status, msg := http.StatusForbidden, "access denied"
	if err != nil && !errors.Is(err, aegis.ErrAccessDenied) {
		status, msg = http.StatusInternalServerError, "authorization unavailable"
	}
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(status)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{"error": msg})
}
