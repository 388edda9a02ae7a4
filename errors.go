package aegis

import (
	"errors"

	"github.com/xraph/aegis/constraint"
)

var (
	// ErrAccessDenied is returned by Enforce when a check denies.
	ErrAccessDenied = errors.New("aegis: access denied")

	// ErrStoreRequired is returned by NewEngine without a store.
	ErrStoreRequired = errors.New("aegis: store is required")

	// ErrInvalidRequest is returned when a check request is nil.
	ErrInvalidRequest = errors.New("aegis: invalid check request")

	// ErrRoleNotFound is returned when a role cannot be found.
	ErrRoleNotFound = errors.New("aegis: role not found")

	// ErrDuplicateRole is returned when a role slug is already taken.
	ErrDuplicateRole = errors.New("aegis: role slug already exists")

	// ErrInvalidRole is returned when a role is missing its slug or carries
	// an unknown type.
	ErrInvalidRole = errors.New("aegis: invalid role")

	// ErrPermissionNotFound is returned when a slug is not in the catalog.
	ErrPermissionNotFound = errors.New("aegis: permission not found")

	// ErrAssignmentNotFound is returned when an assignment cannot be found.
	ErrAssignmentNotFound = errors.New("aegis: assignment not found")

	// ErrRoleNotAssignable is returned when the regular assignment flow is
	// asked for an inactive role or for super_admin.
	ErrRoleNotAssignable = errors.New("aegis: role is not assignable")

	// ErrInvalidExpiry is returned when an assignment would already be
	// expired.
	ErrInvalidExpiry = errors.New("aegis: assignment expiry is in the past")

	// ErrMaxMembersExceeded is returned when a role's member limit is reached.
	ErrMaxMembersExceeded = errors.New("aegis: role max members exceeded")

	// ErrInvalidConstraint aliases constraint.ErrInvalidConstraint so callers
	// can match it without importing the constraint package.
	ErrInvalidConstraint = constraint.ErrInvalidConstraint
)
