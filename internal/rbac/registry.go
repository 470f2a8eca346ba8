package rbac

import (
	"sort"
	"strings"
)

// Wildcard permission names. WildcardAll grants everything; a resource
// wildcard ("users:*") grants every action on one resource. There is no
// cross-resource action wildcard ("*:delete" matches nothing).
const (
	WildcardAll = "*:*"
	Separator   = ":"
)

// Registry is the fixed catalogue of valid permission names mapped to
// their descriptions. Names are lowercase "resource:action".
var Registry = map[string]string{
	// users
	"users:read":   "View user profiles and information",
	"users:create": "Create new user accounts",
	"users:update": "Update user profile information",
	"users:delete": "Delete user accounts (soft delete)",
	"users:list":   "List all users in the system",

	// roles
	"roles:read":   "View role details and their permissions",
	"roles:create": "Create new roles",
	"roles:update": "Modify role settings and permissions",
	"roles:delete": "Delete roles (non-system roles only)",
	"roles:list":   "List all roles in the system",
	"roles:assign": "Assign roles to users",
	"roles:revoke": "Revoke roles from users",

	// permissions
	"permissions:read":   "View permission details",
	"permissions:list":   "List all permissions in the system",
	"permissions:assign": "Assign direct permissions to users",
	"permissions:revoke": "Revoke direct permissions from users",

	// audit
	"audit:read": "View the audit log",

	// wildcards
	"*:*":           "Full system access (super admin)",
	"users:*":       "All permissions on users",
	"roles:*":       "All permissions on roles",
	"permissions:*": "All permissions on permissions",
}

// RoleTemplate is a default role seeded into the database.
type RoleTemplate struct {
	Name        string
	DisplayName string
	Description string
	Permissions []string
	IsSystem    bool
}

// DefaultRoles are the baseline access tiers created by seeding.
// Order matters only for readability of the seed log.
var DefaultRoles = []RoleTemplate{
	{
		Name:        "super_admin",
		DisplayName: "Super Administrator",
		Description: "Full system access with all permissions",
		Permissions: []string{"*:*"},
		IsSystem:    true,
	},
	{
		Name:        "admin",
		DisplayName: "Administrator",
		Description: "Administrative access for managing users and roles",
		Permissions: []string{
			"users:read", "users:create", "users:update", "users:delete", "users:list",
			"roles:read", "roles:list", "roles:assign", "roles:revoke",
			"permissions:read", "permissions:list",
			"audit:read",
		},
		IsSystem: true,
	},
	{
		Name:        "moderator",
		DisplayName: "Moderator",
		Description: "Content moderation with limited user management",
		Permissions: []string{"users:read", "users:update", "users:list"},
		IsSystem:    true,
	},
	{
		Name:        "user",
		DisplayName: "Regular User",
		Description: "Basic user access with read-only permissions",
		Permissions: []string{"users:read"},
		IsSystem:    true,
	},
}

// IsRegistered reports whether name is in the catalogue.
func IsRegistered(name string) bool {
	_, ok := Registry[name]
	return ok
}

// Describe returns the description for a permission name.
func Describe(name string) string {
	if desc, ok := Registry[name]; ok {
		return desc
	}
	return "No description"
}

// Split decomposes "resource:action" into its parts. Names without a
// separator come back with an empty action.
func Split(name string) (resource, action string) {
	if i := strings.Index(name, Separator); i >= 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}

// AllPermissions returns every registered permission name.
func AllPermissions() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	return names
}

// ForResource returns every registered permission whose resource part
// equals resource, the resource's own wildcard included.
func ForResource(resource string) []string {
	names := make([]string, 0, 8)
	for name := range Registry {
		if res, _ := Split(name); res == resource {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
