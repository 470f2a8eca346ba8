package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"backend/internal/model"
	"backend/internal/rbac"
	"backend/internal/repository"
	"backend/pkg/apperr"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required,min=2,max=50"`
	DisplayName string   `json:"display_name" binding:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"` // permission names
	ParentRole  string   `json:"parent_role"` // role name, optional
}

type UpdateRoleRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Description string `json:"description"`
	// ParentRole: empty string clears the parent.
	ParentRole string `json:"parent_role"`
	// Permissions: nil leaves the set unchanged; non-nil replaces it.
	Permissions *[]string `json:"permissions"`
}

type AssignRoleRequest struct {
	RoleName string `json:"role_name" binding:"required"`
}

type GrantPermissionRequest struct {
	Permission string `json:"permission" binding:"required"`
	Reason     string `json:"reason"`
}

type RoleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	DisplayName string               `json:"display_name"`
	Description string               `json:"description"`
	IsSystem    bool                 `json:"is_system"`
	ParentRole  string               `json:"parent_role,omitempty"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   string               `json:"created_at"`
}

type PermissionResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

type DirectPermissionResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UserAccessResponse reports a user's assigned roles, direct grants, and
// the fully resolved effective permission set.
type UserAccessResponse struct {
	UserID    string                     `json:"user_id"`
	Roles     []string                   `json:"roles"`
	Direct    []DirectPermissionResponse `json:"direct_permissions"`
	Effective []string                   `json:"effective_permissions"`
}

// SeedResult reports what seeding created versus skipped.
type SeedResult struct {
	PermissionsCreated int `json:"permissions_created"`
	PermissionsSkipped int `json:"permissions_skipped"`
	RolesCreated       int `json:"roles_created"`
	RolesSkipped       int `json:"roles_skipped"`
}

// --- Interface ---

// RBACService owns role and permission management: assignment edges,
// role CRUD, direct grants, and registry seeding. Lookup misses are
// NotFound; duplicate or absent edges are Conflict; system-role
// mutations are SystemProtected. It never formats HTTP.
type RBACService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, name string) (*RoleResponse, error)
	CreateRole(ctx context.Context, actor *model.User, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, actor *model.User, name string, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, actor *model.User, name string) error

	ListPermissions(ctx context.Context, resource string) ([]PermissionResponse, error)
	GetPermission(ctx context.Context, name string) (*PermissionResponse, error)

	UserRoles(ctx context.Context, userID uuid.UUID) ([]RoleResponse, error)
	AssignRole(ctx context.Context, actor *model.User, userID uuid.UUID, roleName string) error
	RevokeRole(ctx context.Context, actor *model.User, userID uuid.UUID, roleName string) error

	UserAccess(ctx context.Context, userID uuid.UUID) (*UserAccessResponse, error)
	GrantPermission(ctx context.Context, actor *model.User, userID uuid.UUID, req GrantPermissionRequest) error
	RevokePermission(ctx context.Context, actor *model.User, userID uuid.UUID, permission string) error

	Resolver(ctx context.Context) (*rbac.Resolver, error)
	Seed(ctx context.Context) (*SeedResult, error)
}

type rbacService struct {
	users  repository.UserRepository
	roles  repository.RoleRepository
	perms  repository.PermissionRepository
	audits repository.AuditRepository
	tx     repository.TransactionManager
	log    *zap.Logger
}

func NewRBACService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	perms repository.PermissionRepository,
	audits repository.AuditRepository,
	tx repository.TransactionManager,
	log *zap.Logger,
) RBACService {
	return &rbacService{users: users, roles: roles, perms: perms, audits: audits, tx: tx, log: log}
}

// --- Role queries ---

func (s *rbacService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.roles.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]string, len(roles))
	for _, r := range roles {
		byID[r.ID] = r.Name
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r, byID))
	}
	return res, nil
}

func (s *rbacService) GetRole(ctx context.Context, name string) (*RoleResponse, error) {
	name = normalizeName(name)
	role, err := s.roles.FindByNameWithPermissions(ctx, name)
	if err != nil {
		return nil, roleNotFound(err, name)
	}

	parentName := ""
	if role.ParentID != nil {
		if parent, err := s.roles.FindByID(ctx, *role.ParentID); err == nil {
			parentName = parent.Name
		}
	}

	resp := toRoleResponse(*role, nil)
	resp.ParentRole = parentName
	return &resp, nil
}

// --- Role mutations ---

func (s *rbacService) CreateRole(ctx context.Context, actor *model.User, req CreateRoleRequest) (*RoleResponse, error) {
	name := normalizeName(req.Name)
	parentName := normalizeName(req.ParentRole)

	if _, err := s.roles.FindByName(ctx, name); err == nil {
		return nil, apperr.Conflict("role '%s' already exists", name)
	}

	role := &model.Role{
		Name:        name,
		DisplayName: req.DisplayName,
		Description: req.Description,
	}

	if parentName != "" {
		parent, err := s.roles.FindByName(ctx, parentName)
		if err != nil {
			return nil, roleNotFound(err, parentName)
		}
		resolver, err := s.Resolver(ctx)
		if err != nil {
			return nil, err
		}
		if resolver.ChainDepth(parent.ID) >= rbac.MaxInheritanceDepth {
			return nil, apperr.Conflict("role inheritance chain too deep")
		}
		role.ParentID = &parent.ID
	}

	perms, err := s.resolvePermissions(ctx, req.Permissions)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roles.Create(txCtx, role); err != nil {
			return err
		}
		for _, p := range perms {
			edge := &model.RolePermission{RoleID: role.ID, PermissionID: p.ID, GrantedBy: actorID(actor)}
			if err := s.roles.GrantPermission(txCtx, edge); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actor, model.ActionCreateRole, role.ID.String(), role.Name, map[string]interface{}{
		"permissions": req.Permissions,
		"parent_role": parentName,
	})
	s.log.Info("role created",
		zap.String("role", role.Name),
		zap.Int("permissions", len(perms)),
		zap.String("actor", actorLabel(actor)))

	return s.GetRole(ctx, role.Name)
}

func (s *rbacService) UpdateRole(ctx context.Context, actor *model.User, name string, req UpdateRoleRequest) (*RoleResponse, error) {
	name = normalizeName(name)
	parentName := normalizeName(req.ParentRole)

	role, err := s.roles.FindByNameWithPermissions(ctx, name)
	if err != nil {
		return nil, roleNotFound(err, name)
	}
	if role.IsSystem {
		return nil, apperr.SystemProtected("cannot modify system role '%s'", name)
	}

	role.DisplayName = req.DisplayName
	role.Description = req.Description

	if parentName == "" {
		role.ParentID = nil
	} else {
		parent, err := s.roles.FindByName(ctx, parentName)
		if err != nil {
			return nil, roleNotFound(err, parentName)
		}
		resolver, err := s.Resolver(ctx)
		if err != nil {
			return nil, err
		}
		if parent.ID == role.ID || resolver.WouldCycle(role.ID, parent.ID) {
			return nil, apperr.Conflict("setting parent '%s' would create an inheritance cycle", parentName)
		}
		role.ParentID = &parent.ID
	}

	var toGrant []model.Permission
	var toRevoke []model.Permission
	if req.Permissions != nil {
		wanted, err := s.resolvePermissions(ctx, *req.Permissions)
		if err != nil {
			return nil, err
		}
		toGrant, toRevoke = diffPermissions(role.Permissions, wanted)
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roles.Update(txCtx, role); err != nil {
			return err
		}
		for _, p := range toRevoke {
			if err := s.roles.RevokePermission(txCtx, role.ID, p.ID); err != nil {
				return err
			}
		}
		for _, p := range toGrant {
			edge := &model.RolePermission{RoleID: role.ID, PermissionID: p.ID, GrantedBy: actorID(actor)}
			if err := s.roles.GrantPermission(txCtx, edge); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actor, model.ActionUpdateRole, role.ID.String(), role.Name, map[string]interface{}{
		"granted": len(toGrant),
		"revoked": len(toRevoke),
	})
	s.log.Info("role updated", zap.String("role", role.Name), zap.String("actor", actorLabel(actor)))

	return s.GetRole(ctx, role.Name)
}

func (s *rbacService) DeleteRole(ctx context.Context, actor *model.User, name string) error {
	name = normalizeName(name)
	role, err := s.roles.FindByName(ctx, name)
	if err != nil {
		return roleNotFound(err, name)
	}
	if role.IsSystem {
		return apperr.SystemProtected("cannot delete system role '%s'", name)
	}

	if err := s.roles.Delete(ctx, role.ID); err != nil {
		return err
	}

	s.audit(ctx, actor, model.ActionDeleteRole, role.ID.String(), role.Name, nil)
	s.log.Info("role deleted", zap.String("role", role.Name), zap.String("actor", actorLabel(actor)))
	return nil
}

// --- Permission queries ---

func (s *rbacService) ListPermissions(ctx context.Context, resource string) ([]PermissionResponse, error) {
	resource = normalizeName(resource)

	var (
		perms []model.Permission
		err   error
	)
	if resource != "" {
		if len(rbac.ForResource(resource)) == 0 {
			return nil, apperr.Validation("unknown resource '%s'", resource)
		}
		perms, err = s.perms.ListByResource(ctx, resource)
	} else {
		perms, err = s.perms.ListAll(ctx)
	}
	if err != nil {
		return nil, err
	}

	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

func (s *rbacService) GetPermission(ctx context.Context, name string) (*PermissionResponse, error) {
	name = normalizeName(name)
	perm, err := s.perms.FindByName(ctx, name)
	if err != nil {
		return nil, permissionNotFound(err, name)
	}
	resp := toPermissionResponse(*perm)
	return &resp, nil
}

// --- Role assignment edges ---

func (s *rbacService) UserRoles(ctx context.Context, userID uuid.UUID) ([]RoleResponse, error) {
	user, err := s.users.GetByIDWithAccess(ctx, userID)
	if err != nil {
		return nil, userNotFound(err)
	}

	res := make([]RoleResponse, 0, len(user.Roles))
	for _, r := range user.Roles {
		res = append(res, toRoleResponse(r, nil))
	}
	return res, nil
}

func (s *rbacService) AssignRole(ctx context.Context, actor *model.User, userID uuid.UUID, roleName string) error {
	roleName = normalizeName(roleName)
	user, err := s.users.GetByIDWithAccess(ctx, userID)
	if err != nil {
		return userNotFound(err)
	}
	role, err := s.roles.FindByName(ctx, roleName)
	if err != nil {
		return roleNotFound(err, roleName)
	}

	for _, r := range user.Roles {
		if r.ID == role.ID {
			return apperr.Conflict("user already has role '%s'", roleName)
		}
	}

	edge := &model.UserRole{UserID: user.ID, RoleID: role.ID, AssignedBy: actorID(actor)}
	if err := s.users.AssignRole(ctx, edge); err != nil {
		return err
	}

	s.audit(ctx, actor, model.ActionAssignRole, user.ID.String(), user.Username, map[string]interface{}{
		"role": roleName,
	})
	s.log.Info("role assigned",
		zap.String("role", roleName),
		zap.String("user", user.Username),
		zap.String("actor", actorLabel(actor)))
	return nil
}

func (s *rbacService) RevokeRole(ctx context.Context, actor *model.User, userID uuid.UUID, roleName string) error {
	roleName = normalizeName(roleName)
	user, err := s.users.GetByIDWithAccess(ctx, userID)
	if err != nil {
		return userNotFound(err)
	}
	role, err := s.roles.FindByName(ctx, roleName)
	if err != nil {
		return roleNotFound(err, roleName)
	}

	held := false
	for _, r := range user.Roles {
		if r.ID == role.ID {
			held = true
			break
		}
	}
	if !held {
		return apperr.Conflict("user does not have role '%s'", roleName)
	}

	if err := s.users.RevokeRole(ctx, user.ID, role.ID); err != nil {
		return err
	}

	s.audit(ctx, actor, model.ActionRevokeRole, user.ID.String(), user.Username, map[string]interface{}{
		"role": roleName,
	})
	s.log.Info("role revoked",
		zap.String("role", roleName),
		zap.String("user", user.Username),
		zap.String("actor", actorLabel(actor)))
	return nil
}

// --- Direct permission edges ---

func (s *rbacService) UserAccess(ctx context.Context, userID uuid.UUID) (*UserAccessResponse, error) {
	user, err := s.users.GetByIDWithAccess(ctx, userID)
	if err != nil {
		return nil, userNotFound(err)
	}
	resolver, err := s.Resolver(ctx)
	if err != nil {
		return nil, err
	}

	effective := resolver.EffectivePermissions(user)
	names := make([]string, 0, len(effective))
	for name := range effective {
		names = append(names, name)
	}
	sort.Strings(names)

	direct := make([]DirectPermissionResponse, 0, len(user.DirectPermissions))
	for _, p := range user.DirectPermissions {
		direct = append(direct, DirectPermissionResponse{Name: p.Name, Description: p.Description})
	}

	return &UserAccessResponse{
		UserID:    user.ID.String(),
		Roles:     user.RoleNames(),
		Direct:    direct,
		Effective: names,
	}, nil
}

func (s *rbacService) GrantPermission(ctx context.Context, actor *model.User, userID uuid.UUID, req GrantPermissionRequest) error {
	permName := normalizeName(req.Permission)
	user, err := s.users.GetByIDWithAccess(ctx, userID)
	if err != nil {
		return userNotFound(err)
	}
	perm, err := s.perms.FindByName(ctx, permName)
	if err != nil {
		return permissionNotFound(err, permName)
	}

	for _, p := range user.DirectPermissions {
		if p.ID == perm.ID {
			return apperr.Conflict("user already has direct permission '%s'", permName)
		}
	}

	edge := &model.UserPermission{
		UserID:       user.ID,
		PermissionID: perm.ID,
		GrantedBy:    actorID(actor),
		Reason:       req.Reason,
	}
	if err := s.users.GrantPermission(ctx, edge); err != nil {
		return err
	}

	s.audit(ctx, actor, model.ActionGrantPermission, user.ID.String(), user.Username, map[string]interface{}{
		"permission": permName,
		"reason":     req.Reason,
	})
	s.log.Info("direct permission granted",
		zap.String("permission", permName),
		zap.String("user", user.Username),
		zap.String("reason", req.Reason),
		zap.String("actor", actorLabel(actor)))
	return nil
}

func (s *rbacService) RevokePermission(ctx context.Context, actor *model.User, userID uuid.UUID, permission string) error {
	permission = normalizeName(permission)
	user, err := s.users.GetByIDWithAccess(ctx, userID)
	if err != nil {
		return userNotFound(err)
	}
	perm, err := s.perms.FindByName(ctx, permission)
	if err != nil {
		return permissionNotFound(err, permission)
	}

	held := false
	for _, p := range user.DirectPermissions {
		if p.ID == perm.ID {
			held = true
			break
		}
	}
	if !held {
		return apperr.Conflict("user does not have direct permission '%s'", permission)
	}

	if err := s.users.RevokePermission(ctx, user.ID, perm.ID); err != nil {
		return err
	}

	s.audit(ctx, actor, model.ActionRevokePermission, user.ID.String(), user.Username, map[string]interface{}{
		"permission": permission,
	})
	s.log.Info("direct permission revoked",
		zap.String("permission", permission),
		zap.String("user", user.Username),
		zap.String("actor", actorLabel(actor)))
	return nil
}

// --- Resolver + seeding ---

func (s *rbacService) Resolver(ctx context.Context) (*rbac.Resolver, error) {
	roles, err := s.roles.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return rbac.NewResolver(roles), nil
}

// Seed bulk-inserts the static registry. Existing rows (matched by
// unique name) are skipped, never overwritten.
func (s *rbacService) Seed(ctx context.Context) (*SeedResult, error) {
	result := &SeedResult{}
	permByName := make(map[string]*model.Permission, len(rbac.Registry))

	names := rbac.AllPermissions()
	sort.Strings(names)
	for _, name := range names {
		existing, err := s.perms.FindByName(ctx, name)
		if err == nil {
			permByName[name] = existing
			result.PermissionsSkipped++
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		resource, action := rbac.Split(name)
		perm := &model.Permission{Name: name, Resource: resource, Action: action, Description: rbac.Describe(name)}
		if err := s.perms.Create(ctx, perm); err != nil {
			return nil, err
		}
		permByName[name] = perm
		result.PermissionsCreated++
	}

	for _, tpl := range rbac.DefaultRoles {
		if _, err := s.roles.FindByName(ctx, tpl.Name); err == nil {
			result.RolesSkipped++
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		role := &model.Role{
			Name:        tpl.Name,
			DisplayName: tpl.DisplayName,
			Description: tpl.Description,
			IsSystem:    tpl.IsSystem,
		}
		err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			if err := s.roles.Create(txCtx, role); err != nil {
				return err
			}
			for _, permName := range tpl.Permissions {
				perm, ok := permByName[permName]
				if !ok {
					return apperr.Internal("seed: role '%s' references unregistered permission '%s'", tpl.Name, permName)
				}
				edge := &model.RolePermission{RoleID: role.ID, PermissionID: perm.ID}
				if err := s.roles.GrantPermission(txCtx, edge); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		result.RolesCreated++
	}

	s.audit(ctx, nil, model.ActionSeedRBAC, "", "rbac registry", result)
	s.log.Info("rbac registry seeded",
		zap.Int("permissions_created", result.PermissionsCreated),
		zap.Int("permissions_skipped", result.PermissionsSkipped),
		zap.Int("roles_created", result.RolesCreated),
		zap.Int("roles_skipped", result.RolesSkipped))
	return result, nil
}

// --- Helpers ---

func (s *rbacService) resolvePermissions(ctx context.Context, names []string) ([]model.Permission, error) {
	perms := make([]model.Permission, 0, len(names))
	for _, name := range names {
		name = normalizeName(name)
		perm, err := s.perms.FindByName(ctx, name)
		if err != nil {
			return nil, permissionNotFound(err, name)
		}
		perms = append(perms, *perm)
	}
	return perms, nil
}

// normalizeName canonicalizes role and permission names at the service
// boundary; storage only ever sees lowercase trimmed names.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s *rbacService) audit(ctx context.Context, actor *model.User, action, entityID, entityName string, details interface{}) {
	payload := ""
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			payload = string(raw)
		}
	}
	entry := &model.AuditLog{
		UserID:     actorID(actor),
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    payload,
	}
	if err := s.audits.Log(ctx, entry); err != nil {
		s.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func diffPermissions(current, wanted []model.Permission) (toGrant, toRevoke []model.Permission) {
	currentIDs := make(map[uuid.UUID]struct{}, len(current))
	for _, p := range current {
		currentIDs[p.ID] = struct{}{}
	}
	wantedIDs := make(map[uuid.UUID]struct{}, len(wanted))
	for _, p := range wanted {
		wantedIDs[p.ID] = struct{}{}
	}

	for _, p := range wanted {
		if _, ok := currentIDs[p.ID]; !ok {
			toGrant = append(toGrant, p)
		}
	}
	for _, p := range current {
		if _, ok := wantedIDs[p.ID]; !ok {
			toRevoke = append(toRevoke, p)
		}
	}
	return toGrant, toRevoke
}

func actorID(actor *model.User) *uuid.UUID {
	if actor == nil {
		return nil
	}
	id := actor.ID
	return &id
}

func actorLabel(actor *model.User) string {
	if actor == nil {
		return "system"
	}
	return actor.Username
}

func roleNotFound(err error, name string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("role '%s' not found", name)
	}
	return err
}

func permissionNotFound(err error, name string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("permission '%s' not found", name)
	}
	return err
}

func userNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("user not found")
	}
	return err
}

func toRoleResponse(r model.Role, namesByID map[uuid.UUID]string) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}

	parent := ""
	if r.ParentID != nil && namesByID != nil {
		parent = namesByID[*r.ParentID]
	}

	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		ParentRole:  parent,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		Resource:    p.Resource,
		Action:      p.Action,
		Description: p.Description,
	}
}
