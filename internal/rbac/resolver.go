package rbac

import (
	"strings"

	"github.com/google/uuid"

	"backend/internal/model"
)

// MaxInheritanceDepth caps the parent chain walk. Writes reject cycles,
// so a chain this deep means corrupt data; the walk stops instead of
// spinning.
const MaxInheritanceDepth = 32

// Resolver answers permission and role questions for preloaded users.
// It is a pure in-memory computation: build it from the full role set
// (roles preloaded with their own permissions) and ask away.
type Resolver struct {
	byID map[uuid.UUID]*model.Role
}

// NewResolver indexes roles by ID for parent-chain walks. The slice must
// contain each role with its Permissions association populated.
func NewResolver(roles []model.Role) *Resolver {
	byID := make(map[uuid.UUID]*model.Role, len(roles))
	for i := range roles {
		byID[roles[i].ID] = &roles[i]
	}
	return &Resolver{byID: byID}
}

// EffectivePermissions returns the union of the user's role-derived
// permissions (walking each role's parent chain) and direct grants.
func (r *Resolver) EffectivePermissions(user *model.User) map[string]struct{} {
	perms := make(map[string]struct{})
	if user == nil {
		return perms
	}

	for _, role := range user.Roles {
		r.collectRolePermissions(role.ID, perms)
	}
	for _, p := range user.DirectPermissions {
		perms[p.Name] = struct{}{}
	}
	return perms
}

// collectRolePermissions walks the parent chain starting at id, adding
// every permission along the way. Guarded against cycles and depth.
func (r *Resolver) collectRolePermissions(id uuid.UUID, perms map[string]struct{}) {
	visited := make(map[uuid.UUID]struct{}, 4)
	current, ok := r.byID[id]

	for depth := 0; ok && depth < MaxInheritanceDepth; depth++ {
		if _, seen := visited[current.ID]; seen {
			return
		}
		visited[current.ID] = struct{}{}

		for _, p := range current.Permissions {
			perms[p.Name] = struct{}{}
		}

		if current.ParentID == nil {
			return
		}
		current, ok = r.byID[*current.ParentID]
	}
}

// HasPermission reports whether the user holds the named permission,
// either literally, via the super-admin wildcard "*:*", or via the
// resource wildcard "resource:*". Matching is exact and case-sensitive;
// the registry stores lowercase names.
func (r *Resolver) HasPermission(user *model.User, name string) bool {
	perms := r.EffectivePermissions(user)
	return matches(perms, name)
}

// HasAnyPermission is a short-circuiting OR over HasPermission.
func (r *Resolver) HasAnyPermission(user *model.User, names ...string) bool {
	perms := r.EffectivePermissions(user)
	for _, name := range names {
		if matches(perms, name) {
			return true
		}
	}
	return false
}

// HasAllPermissions is a short-circuiting AND over HasPermission.
func (r *Resolver) HasAllPermissions(user *model.User, names ...string) bool {
	perms := r.EffectivePermissions(user)
	for _, name := range names {
		if !matches(perms, name) {
			return false
		}
	}
	return true
}

// MissingPermissions returns the subset of names the user does not hold.
// Used by the gate to name unmet requirements in 403 details.
func (r *Resolver) MissingPermissions(user *model.User, names ...string) []string {
	perms := r.EffectivePermissions(user)
	missing := make([]string, 0, len(names))
	for _, name := range names {
		if !matches(perms, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// HasRole checks the user's direct role assignments by exact name.
// Roles are never matched through inheritance; only permissions inherit.
func (r *Resolver) HasRole(user *model.User, roleName string) bool {
	if user == nil {
		return false
	}
	for _, role := range user.Roles {
		if role.Name == roleName {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the user holds at least one of the roles.
func (r *Resolver) HasAnyRole(user *model.User, roleNames ...string) bool {
	for _, name := range roleNames {
		if r.HasRole(user, name) {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether the user holds every one of the roles.
func (r *Resolver) HasAllRoles(user *model.User, roleNames ...string) bool {
	for _, name := range roleNames {
		if !r.HasRole(user, name) {
			return false
		}
	}
	return true
}

// WouldCycle reports whether setting parentID as roleID's parent would
// create a cycle in the inheritance chain.
func (r *Resolver) WouldCycle(roleID, parentID uuid.UUID) bool {
	current, ok := r.byID[parentID]
	for depth := 0; ok && depth < MaxInheritanceDepth; depth++ {
		if current.ID == roleID {
			return true
		}
		if current.ParentID == nil {
			return false
		}
		current, ok = r.byID[*current.ParentID]
	}
	// Hitting the depth cap means the existing chain is already suspect;
	// refuse the new edge.
	return ok
}

// ChainDepth returns the inheritance depth starting from parentID.
func (r *Resolver) ChainDepth(parentID uuid.UUID) int {
	depth := 0
	current, ok := r.byID[parentID]
	for ok && depth < MaxInheritanceDepth {
		depth++
		if current.ParentID == nil {
			break
		}
		current, ok = r.byID[*current.ParentID]
	}
	return depth
}

// matches implements the wildcard rules against a resolved set.
func matches(perms map[string]struct{}, name string) bool {
	if _, ok := perms[name]; ok {
		return true
	}
	if _, ok := perms[WildcardAll]; ok {
		return true
	}
	if i := strings.Index(name, Separator); i >= 0 {
		if _, ok := perms[name[:i]+Separator+"*"]; ok {
			return true
		}
	}
	return false
}
