// Package checklog defines the decision audit Entry entity.
package checklog

import (
	"time"

	"github.com/xraph/aegis/id"
)

// Entry is a single authorization decision audit record.
type Entry struct {
	ID         id.CheckLogID  `json:"id" db:"id"`
	UserID     string         `json:"user_id" db:"user_id"`
	Action     string         `json:"action" db:"action"`
	Resource   string         `json:"resource,omitempty" db:"resource"`
	Permission string         `json:"permission,omitempty" db:"permission"`
	Allowed    bool           `json:"allowed" db:"allowed"`
	Decision   string         `json:"decision" db:"decision"`
	Reason     string         `json:"reason,omitempty" db:"reason"`
	RoleID     string         `json:"role_id,omitempty" db:"role_id"`
	RoleSlug   string         `json:"role_slug,omitempty" db:"role_slug"`
	EvalTimeNs int64          `json:"eval_time_ns" db:"eval_time_ns"`
	Context    map[string]any `json:"context,omitempty" db:"context"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying check logs.
type QueryFilter struct {
	UserID   string     `json:"user_id,omitempty"`
	Action   string     `json:"action,omitempty"`
	Resource string     `json:"resource,omitempty"`
	Decision string     `json:"decision,omitempty"`
	Allowed  *bool      `json:"allowed,omitempty"`
	After    *time.Time `json:"after,omitempty"`
	Before   *time.Time `json:"before,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}
