package role

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned for role types outside the fixed enum.
var ErrUnknownType = errors.New("role: unknown type")

// Type selects a role's default permission set and its hierarchy level.
type Type string

const (
	TypeUser       Type = "user"
	TypeModerator  Type = "moderator"
	TypeSupport    Type = "support"
	TypeAnalyst    Type = "analyst"
	TypeAdmin      Type = "admin"
	TypeSuperAdmin Type = "super_admin"
)

// Types lists every role type in ascending level order.
func Types() []Type {
	return []Type{TypeUser, TypeModerator, TypeSupport, TypeAnalyst, TypeAdmin, TypeSuperAdmin}
}

var levels = map[Type]int{
	TypeUser:       1,
	TypeModerator:  2,
	TypeSupport:    3,
	TypeAnalyst:    4,
	TypeAdmin:      5,
	TypeSuperAdmin: 6,
}

// ParseType converts a name into a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Valid reports whether t is one of the known role types.
func (t Type) Valid() bool {
	_, ok := levels[t]
	return ok
}

// Level is the administrative rank of t. Unknown types rank 0. The level
// never affects permission decisions.
func (t Type) Level() int {
	return levels[t]
}

// String returns the type name.
func (t Type) String() string { return string(t) }
