// Package permission defines the Permission catalog entity, the Slug value
// object that names it, and the catalog store interface.
package permission

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/aegis/id"
)

// ErrInvalidSlug is returned when a string is not of the form module.action.
var ErrInvalidSlug = errors.New("permission: invalid slug")

// Slug identifies a permission as "module.action", for example
// "cards.delete_own". Both halves are lowercase [a-z0-9_]+.
type Slug string

// ParseSlug validates s and returns it as a Slug.
func ParseSlug(s string) (Slug, error) {
	s = strings.TrimSpace(s)
	module, action, ok := strings.Cut(s, ".")
	if !ok || !validPart(module) || !validPart(action) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSlug, s)
	}
	return Slug(s), nil
}

// MustSlug is like ParseSlug but panics on error. Use for hardcoded slugs.
func MustSlug(s string) Slug {
	slug, err := ParseSlug(s)
	if err != nil {
		panic(err)
	}
	return slug
}

// NewSlug joins a module and an action into a validated slug.
func NewSlug(module, action string) (Slug, error) {
	return ParseSlug(module + "." + action)
}

func validPart(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}

// String returns the slug text.
func (s Slug) String() string { return string(s) }

// Module returns the part before the dot.
func (s Slug) Module() string {
	module, _, _ := strings.Cut(string(s), ".")
	return module
}

// Action returns the part after the dot.
func (s Slug) Action() string {
	_, action, _ := strings.Cut(string(s), ".")
	return action
}

// Permission is a catalog entry. Inactive permissions are never granted.
type Permission struct {
	ID          id.PermissionID `json:"id" db:"id"`
	Slug        Slug            `json:"slug" db:"slug"`
	Module      string          `json:"module" db:"module"`
	Action      string          `json:"action" db:"action"`
	Label       string          `json:"label" db:"label"`
	Description string          `json:"description,omitempty" db:"description"`
	Active      bool            `json:"active" db:"active"`
	Metadata    map[string]any  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// New builds an active permission for slug, deriving module, action and a
// label from the action vocabulary.
func New(slug Slug, description string) *Permission {
	return &Permission{
		ID:          id.NewPermissionID(),
		Slug:        slug,
		Module:      slug.Module(),
		Action:      slug.Action(),
		Label:       Label(slug),
		Description: description,
		Active:      true,
	}
}

// ListFilter contains filters for listing permissions.
type ListFilter struct {
	Module string `json:"module,omitempty"`
	Action string `json:"action,omitempty"`
	Active *bool  `json:"active,omitempty"`
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}
