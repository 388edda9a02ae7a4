package role

import (
	"slices"

	"github.com/xraph/aegis/permission"
)

var (
	userDefaults = []permission.Slug{
		"cards.view_own", "cards.create", "cards.edit_own", "cards.delete_own",
		"links.view_own", "links.create", "links.edit_own", "links.delete_own",
		"appointments.view_own", "appointments.create", "appointments.edit_own",
		"analytics.view_own",
		"billing.view_own",
	}

	moderatorDefaults = []permission.Slug{
		"cards.view_all", "cards.edit_all", "cards.publish",
		"links.view_all", "links.edit_all",
		"users.view",
	}

	supportDefaults = []permission.Slug{
		"cards.view_all",
		"links.view_all",
		"appointments.view_all", "appointments.edit_all",
		"billing.view_all",
		"users.view", "users.edit",
	}

	analystDefaults = []permission.Slug{
		"cards.view_all",
		"links.view_all",
		"analytics.view_all", "analytics.export",
		"users.view",
	}

	adminDefaults = []permission.Slug{
		"cards.view_all", "cards.create", "cards.edit_all", "cards.delete_all", "cards.publish",
		"links.view_all", "links.create", "links.edit_all", "links.delete_all",
		"appointments.view_all", "appointments.edit_all", "appointments.delete_all",
		"analytics.view_all", "analytics.export",
		"billing.view_all", "billing.manage",
		"users.view", "users.create", "users.edit", "users.delete",
		"roles.view", "roles.assign",
		"system.view",
	}

	superAdminDefaults = append(slices.Clone(adminDefaults),
		"roles.create", "roles.edit", "roles.delete",
		"system.settings", "system.manage",
	)
)

var defaults = func() map[Type]map[permission.Slug]struct{} {
	table := map[Type][]permission.Slug{
		TypeUser:       userDefaults,
		TypeModerator:  moderatorDefaults,
		TypeSupport:    supportDefaults,
		TypeAnalyst:    analystDefaults,
		TypeAdmin:      adminDefaults,
		TypeSuperAdmin: superAdminDefaults,
	}
	out := make(map[Type]map[permission.Slug]struct{}, len(table))
	for t, slugs := range table {
		set := make(map[permission.Slug]struct{}, len(slugs))
		for _, s := range slugs {
			set[s] = struct{}{}
		}
		out[t] = set
	}
	return out
}()

// DefaultPermissions returns the baseline grants of t as a fresh sorted
// slice. Unknown types have none.
func (t Type) DefaultPermissions() []permission.Slug {
	set := defaults[t]
	out := make([]permission.Slug, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Grants reports whether slug is in the default set of t.
func (t Type) Grants(slug permission.Slug) bool {
	_, ok := defaults[t][slug]
	return ok
}
