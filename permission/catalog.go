package permission

// Modules lists the application modules covered by the seed catalog.
var Modules = []string{"cards", "links", "appointments", "analytics", "billing", "users", "roles", "system"}

var seed = []struct {
	slug        Slug
	description string
}{
	{"cards.view_own", "View cards you own"},
	{"cards.view_all", "View every card"},
	{"cards.create", "Create new cards"},
	{"cards.edit_own", "Edit cards you own"},
	{"cards.edit_all", "Edit any card"},
	{"cards.delete_own", "Delete cards you own"},
	{"cards.delete_all", "Delete any card"},
	{"cards.publish", "Publish or unpublish cards"},

	{"links.view_own", "View link pages you own"},
	{"links.view_all", "View every link page"},
	{"links.create", "Create link pages"},
	{"links.edit_own", "Edit link pages you own"},
	{"links.edit_all", "Edit any link page"},
	{"links.delete_own", "Delete link pages you own"},
	{"links.delete_all", "Delete any link page"},

	{"appointments.view_own", "View your appointments"},
	{"appointments.view_all", "View every appointment"},
	{"appointments.create", "Book appointments"},
	{"appointments.edit_own", "Reschedule your appointments"},
	{"appointments.edit_all", "Reschedule any appointment"},
	{"appointments.delete_all", "Cancel any appointment"},

	{"analytics.view_own", "View analytics for your cards"},
	{"analytics.view_all", "View analytics across all cards"},
	{"analytics.export", "Export analytics data"},

	{"billing.view_own", "View your billing details"},
	{"billing.view_all", "View billing for every account"},
	{"billing.manage", "Manage subscriptions and refunds"},

	{"users.view", "View user accounts"},
	{"users.create", "Create user accounts"},
	{"users.edit", "Edit user accounts"},
	{"users.delete", "Delete user accounts"},

	{"roles.view", "View roles and their permissions"},
	{"roles.create", "Create roles"},
	{"roles.edit", "Edit roles and overrides"},
	{"roles.delete", "Delete roles"},
	{"roles.assign", "Assign roles to users"},

	{"system.view", "View system status"},
	{"system.settings", "Change system settings"},
	{"system.manage", "Run maintenance operations"},
}

// DefaultCatalog returns fresh, active catalog entries for the application's
// modules. Every slug in every role type's default set is included.
func DefaultCatalog() []*Permission {
	out := make([]*Permission, 0, len(seed))
	for _, s := range seed {
		out = append(out, New(s.slug, s.description))
	}
	return out
}
