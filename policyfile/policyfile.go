// Package policyfile loads a declarative description of the permission
// catalog, roles, overrides and assignments from YAML or JSONC and applies
// it through the engine's admin API.
//
//	seed_defaults: true
//	permissions:
//	  - slug: reports.view
//	    description: View reports
//	roles:
//	  - slug: eu-admin
//	    type: admin
//	    grant:
//	      - permission: cards.view_all
//	        constraints:
//	          - {field: region, operator: in, value: [EU]}
//	assignments:
//	  - user: user_123
//	    role: eu-admin
package policyfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/xraph/aegis/constraint"
	"github.com/xraph/aegis/permission"
	"github.com/xraph/aegis/role"
)

// ErrInvalidFile is returned when a policy file fails validation.
var ErrInvalidFile = errors.New("policyfile: invalid policy file")

// Format selects the decoder for a policy file.
type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSONC Format = "jsonc"
)

// File is a declarative policy.
type File struct {
	// SeedDefaults registers the built-in catalog before anything else.
	SeedDefaults bool `yaml:"seed_defaults" json:"seed_defaults"`

	Permissions []Permission `yaml:"permissions" json:"permissions" validate:"dive"`
	Roles       []Role       `yaml:"roles" json:"roles" validate:"dive"`
	Assignments []Assignment `yaml:"assignments" json:"assignments" validate:"dive"`
}

// Permission declares a catalog entry.
type Permission struct {
	Slug        string `yaml:"slug" json:"slug" validate:"required"`
	Description string `yaml:"description" json:"description"`
	Inactive    bool   `yaml:"inactive" json:"inactive"`
}

// Role declares a role and the overrides it carries.
type Role struct {
	Slug        string         `yaml:"slug" json:"slug" validate:"required"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Type        string         `yaml:"type" json:"type" validate:"required"`
	Inactive    bool           `yaml:"inactive" json:"inactive"`
	MaxMembers  int            `yaml:"max_members" json:"max_members" validate:"gte=0"`
	Metadata    map[string]any `yaml:"metadata" json:"metadata"`
	Grant       []Override     `yaml:"grant" json:"grant" validate:"dive"`
	Deny        []Override     `yaml:"deny" json:"deny" validate:"dive"`
}

// Override grants or denies one permission, optionally gated by
// constraints.
type Override struct {
	Permission  string            `yaml:"permission" json:"permission" validate:"required"`
	Constraints []constraint.Expr `yaml:"constraints" json:"constraints"`
}

// Assignment binds a user to a role by slug.
type Assignment struct {
	User      string     `yaml:"user" json:"user" validate:"required"`
	Role      string     `yaml:"role" json:"role" validate:"required"`
	ExpiresAt *time.Time `yaml:"expires_at" json:"expires_at"`
	Notes     string     `yaml:"notes" json:"notes"`

	// Elevated uses the privileged path, required for super_admin roles.
	Elevated bool `yaml:"elevated" json:"elevated"`
}

var validate = validator.New()

// Load reads and validates the policy file at path. The format follows the
// extension: .json and .jsonc are JSONC, anything else is YAML.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policyfile: read %s: %w", path, err)
	}
	f, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// FormatFor picks the format from a file name.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return FormatJSONC
	default:
		return FormatYAML
	}
}

// Parse decodes and validates a policy.
func Parse(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case FormatJSONC:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("policyfile: parse jsonc: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("policyfile: parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("policyfile: unknown format %q", format)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the structure of f and every slug, role type and
// constraint it names. It does not consult any store: references to
// permissions outside the file are resolved when the file is applied.
func (f *File) Validate() error {
	var errs []error
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	for i, p := range f.Permissions {
		if _, err := permission.ParseSlug(p.Slug); err != nil {
			errs = append(errs, fmt.Errorf("permissions[%d]: %w", i, err))
		}
	}

	roles := make(map[string]bool, len(f.Roles))
	for i, r := range f.Roles {
		if roles[r.Slug] {
			errs = append(errs, fmt.Errorf("roles[%d]: duplicate role %q", i, r.Slug))
		}
		roles[r.Slug] = true
		if r.Type != "" {
			if _, err := role.ParseType(r.Type); err != nil {
				errs = append(errs, fmt.Errorf("roles[%d]: %w", i, err))
			}
		}
		seen := make(map[string]bool)
		for _, group := range []struct {
			kind string
			list []Override
		}{{"grant", r.Grant}, {"deny", r.Deny}} {
			for j, ov := range group.list {
				if seen[ov.Permission] {
					errs = append(errs, fmt.Errorf("roles[%d].%s[%d]: %s overridden twice", i, group.kind, j, ov.Permission))
				}
				seen[ov.Permission] = true
				if _, err := permission.ParseSlug(ov.Permission); err != nil {
					errs = append(errs, fmt.Errorf("roles[%d].%s[%d]: %w", i, group.kind, j, err))
				}
				if err := constraint.ValidateAll(ov.Constraints); err != nil {
					errs = append(errs, fmt.Errorf("roles[%d].%s[%d]: %w", i, group.kind, j, err))
				}
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidFile, errors.Join(errs...))
	}
	return nil
}
