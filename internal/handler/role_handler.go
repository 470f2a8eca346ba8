package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/response"
)

// RoleHandler carries the admin surface: role CRUD, user role
// assignments, direct permission grants and the catalog seed.
type RoleHandler struct {
	rbacService service.RBACService
	gate        *middleware.Gate
}

// NewRoleHandler sets up the routing dependencies for admin RBAC endpoints
func NewRoleHandler(rbacService service.RBACService, gate *middleware.Gate) *RoleHandler {
	return &RoleHandler{rbacService: rbacService, gate: gate}
}

// RegisterRoutes binds the endpoints to the gin RouterGroup
func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup) {
	admin := router.Group("/admin", h.gate.Authenticate())

	roles := admin.Group("/roles")
	{
		roles.GET("", h.gate.RequirePermissions(middleware.AllOf, "roles:list"), h.ListRoles)
		roles.POST("", h.gate.RequirePermissions(middleware.AllOf, "roles:create"), h.CreateRole)
		roles.GET("/:name", h.gate.RequirePermissions(middleware.AllOf, "roles:read"), h.GetRole)
		roles.PUT("/:name", h.gate.RequirePermissions(middleware.AllOf, "roles:update"), h.UpdateRole)
		roles.DELETE("/:name", h.gate.RequirePermissions(middleware.AllOf, "roles:delete"), h.DeleteRole)
	}

	perms := admin.Group("/permissions")
	{
		perms.GET("", h.gate.RequirePermissions(middleware.AllOf, "permissions:list"), h.ListPermissions)
		perms.GET("/:name", h.gate.RequirePermissions(middleware.AllOf, "permissions:read"), h.GetPermission)
	}

	users := admin.Group("/users/:id")
	{
		users.GET("/roles", h.gate.RequirePermissions(middleware.AllOf, "roles:read"), h.UserRoles)
		users.POST("/roles", h.gate.RequirePermissions(middleware.AllOf, "roles:assign"), h.AssignRole)
		users.DELETE("/roles/:name", h.gate.RequirePermissions(middleware.AllOf, "roles:revoke"), h.RevokeRole)

		users.GET("/permissions", h.gate.RequirePermissions(middleware.AllOf, "permissions:read"), h.UserAccess)
		users.POST("/permissions", h.gate.RequirePermissions(middleware.AllOf, "permissions:assign"), h.GrantPermission)
		users.DELETE("/permissions/:name", h.gate.RequirePermissions(middleware.AllOf, "permissions:revoke"), h.RevokePermission)
	}

	admin.POST("/seed", h.gate.RequirePermissions(middleware.AllOf, "roles:create"), h.Seed)
}

// ListRoles handles GET /admin/roles
// @Summary      List roles
// @Description  Returns every role with its directly attached permissions
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.RoleResponse}
// @Failure      403  {object}  response.Response
// @Router       /admin/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.rbacService.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(roles))
}

// CreateRole handles POST /admin/roles
// @Summary      Create role
// @Description  Creates a custom role with optional parent and permission set
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateRoleRequest  true  "Create Role Payload"
// @Success      201      {object}  response.Response{data=service.RoleResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /admin/roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req service.CreateRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, _ := middleware.CurrentUser(c)
	role, err := h.rbacService.CreateRole(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.gate.InvalidateResolver()
	c.JSON(http.StatusCreated, response.Success(role))
}

// GetRole handles GET /admin/roles/:name
// @Summary      Get role
// @Description  Returns a single role by name with its permissions
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        name  path      string  true  "Role name"
// @Success      200   {object}  response.Response{data=service.RoleResponse}
// @Failure      404   {object}  response.Response
// @Router       /admin/roles/{name} [get]
func (h *RoleHandler) GetRole(c *gin.Context) {
	role, err := h.rbacService.GetRole(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(role))
}

// UpdateRole handles PUT /admin/roles/:name
// @Summary      Update role
// @Description  Updates a custom role's display name, description, parent and permission set
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        name     path      string                     true  "Role name"
// @Param        payload  body      service.UpdateRoleRequest  true  "Update Role Payload"
// @Success      200      {object}  response.Response{data=service.RoleResponse}
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /admin/roles/{name} [put]
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	var req service.UpdateRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, _ := middleware.CurrentUser(c)
	role, err := h.rbacService.UpdateRole(c.Request.Context(), actor, c.Param("name"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.gate.InvalidateResolver()
	c.JSON(http.StatusOK, response.Success(role))
}

// DeleteRole handles DELETE /admin/roles/:name
// @Summary      Delete role
// @Description  Soft deletes a custom role. System roles are rejected.
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        name  path      string  true  "Role name"
// @Success      200   {object}  response.Response
// @Failure      403   {object}  response.Response
// @Failure      404   {object}  response.Response
// @Router       /admin/roles/{name} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)
	if err := h.rbacService.DeleteRole(c.Request.Context(), actor, c.Param("name")); err != nil {
		respondError(c, err)
		return
	}

	h.gate.InvalidateResolver()
	c.JSON(http.StatusOK, response.Success(gin.H{"message": "role deleted"}))
}

// ListPermissions handles GET /admin/permissions
// @Summary      List permissions
// @Description  Returns the permission catalog, optionally filtered by resource
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        resource  query     string  false  "Filter by resource"
// @Success      200       {object}  response.Response{data=[]service.PermissionResponse}
// @Failure      403       {object}  response.Response
// @Router       /admin/permissions [get]
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	perms, err := h.rbacService.ListPermissions(c.Request.Context(), c.Query("resource"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(perms))
}

// GetPermission handles GET /admin/permissions/:name
// @Summary      Get permission
// @Description  Returns a single permission by its resource:action name
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        name  path      string  true  "Permission name"
// @Success      200   {object}  response.Response{data=service.PermissionResponse}
// @Failure      404   {object}  response.Response
// @Router       /admin/permissions/{name} [get]
func (h *RoleHandler) GetPermission(c *gin.Context) {
	perm, err := h.rbacService.GetPermission(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(perm))
}

// UserRoles handles GET /admin/users/:id/roles
// @Summary      List a user's roles
// @Description  Returns the roles directly assigned to a user
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=[]service.RoleResponse}
// @Failure      404  {object}  response.Response
// @Router       /admin/users/{id}/roles [get]
func (h *RoleHandler) UserRoles(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	roles, err := h.rbacService.UserRoles(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(roles))
}

// AssignRole handles POST /admin/users/:id/roles
// @Summary      Assign role to user
// @Description  Assigns a role to a user. A repeated assignment is a conflict.
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true  "User ID"
// @Param        payload  body      service.AssignRoleRequest  true  "Assign Role Payload"
// @Success      200      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /admin/users/{id}/roles [post]
func (h *RoleHandler) AssignRole(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req service.AssignRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, _ := middleware.CurrentUser(c)
	if err := h.rbacService.AssignRole(c.Request.Context(), actor, id, req.RoleName); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(gin.H{"message": "role assigned"}))
}

// RevokeRole handles DELETE /admin/users/:id/roles/:name
// @Summary      Revoke role from user
// @Description  Removes a role from a user. Revoking a role the user does not hold is a conflict.
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string  true  "User ID"
// @Param        name  path      string  true  "Role name"
// @Success      200   {object}  response.Response
// @Failure      404   {object}  response.Response
// @Failure      409   {object}  response.Response
// @Router       /admin/users/{id}/roles/{name} [delete]
func (h *RoleHandler) RevokeRole(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	actor, _ := middleware.CurrentUser(c)
	if err := h.rbacService.RevokeRole(c.Request.Context(), actor, id, c.Param("name")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(gin.H{"message": "role revoked"}))
}

// UserAccess handles GET /admin/users/:id/permissions
// @Summary      Inspect a user's access
// @Description  Returns the user's roles, direct grants and fully resolved effective permissions
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=service.UserAccessResponse}
// @Failure      404  {object}  response.Response
// @Router       /admin/users/{id}/permissions [get]
func (h *RoleHandler) UserAccess(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	access, err := h.rbacService.UserAccess(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(access))
}

// GrantPermission handles POST /admin/users/:id/permissions
// @Summary      Grant direct permission
// @Description  Grants a permission directly to a user, bypassing role membership
// @Tags         permissions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                          true  "User ID"
// @Param        payload  body      service.GrantPermissionRequest  true  "Grant Permission Payload"
// @Success      200      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /admin/users/{id}/permissions [post]
func (h *RoleHandler) GrantPermission(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req service.GrantPermissionRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, _ := middleware.CurrentUser(c)
	if err := h.rbacService.GrantPermission(c.Request.Context(), actor, id, req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(gin.H{"message": "permission granted"}))
}

// RevokePermission handles DELETE /admin/users/:id/permissions/:name
// @Summary      Revoke direct permission
// @Description  Removes a direct grant. Role-derived permissions are untouched.
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string  true  "User ID"
// @Param        name  path      string  true  "Permission name"
// @Success      200   {object}  response.Response
// @Failure      404   {object}  response.Response
// @Failure      409   {object}  response.Response
// @Router       /admin/users/{id}/permissions/{name} [delete]
func (h *RoleHandler) RevokePermission(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	actor, _ := middleware.CurrentUser(c)
	if err := h.rbacService.RevokePermission(c.Request.Context(), actor, id, c.Param("name")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(gin.H{"message": "permission revoked"}))
}

// Seed handles POST /admin/seed
// @Summary      Seed RBAC catalog
// @Description  Idempotently creates the registered permissions and default roles
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.SeedResult}
// @Failure      403  {object}  response.Response
// @Router       /admin/seed [post]
func (h *RoleHandler) Seed(c *gin.Context) {
	result, err := h.rbacService.Seed(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	h.gate.InvalidateResolver()
	c.JSON(http.StatusOK, response.Success(result))
}
