// Package store defines the aggregate persistence interface. Each subsystem
// (role, permission, assignment, checklog) defines its own store interface
// and the composite Store composes them. Backends: Memory, Postgres, SQLite
// and MongoDB.
package store

import (
	"context"
	"errors"

	"github.com/xraph/aegis/assignment"
	"github.com/xraph/aegis/checklog"
	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/role"
)

var (
	// ErrNotFound is wrapped by every backend when a lookup misses.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is wrapped by every backend when a unique key collides.
	ErrDuplicate = errors.New("store: duplicate")
)

// Store is the aggregate persistence interface. A single backend implements
// all of the subsystem stores.
type Store interface {
	role.Store
	permission.Store
	assignment.Store
	checklog.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
