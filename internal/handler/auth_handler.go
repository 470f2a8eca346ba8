package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/apperr"
	"backend/pkg/response"
)

type AuthHandler struct {
	authService service.AuthService
	gate        *middleware.Gate
	// loginLimit throttles credential guessing; apiLimit covers the other
	// unauthenticated auth endpoints.
	loginLimit gin.HandlerFunc
	apiLimit   gin.HandlerFunc
}

// NewAuthHandler sets up the routing dependencies for auth endpoints
func NewAuthHandler(authService service.AuthService, gate *middleware.Gate, loginLimit, apiLimit gin.HandlerFunc) *AuthHandler {
	return &AuthHandler{authService: authService, gate: gate, loginLimit: loginLimit, apiLimit: apiLimit}
}

// RegisterRoutes binds the endpoints to the gin RouterGroup
func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := router.Group("/auth")
	{
		auth.POST("/register", h.apiLimit, h.Register)
		auth.POST("/login", h.loginLimit, h.Login)
		auth.POST("/refresh", h.apiLimit, h.Refresh)

		auth.POST("/logout", h.gate.Authenticate(), h.Logout)
		auth.GET("/me", h.gate.Authenticate(), h.GetMe)
	}
}

// Register handles POST /auth/register for self-service signup
// @Summary      Register user
// @Description  Creates a new account and returns its profile
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RegisterRequest  true  "Registration Payload"
// @Success      201      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      429      {object}  response.Response
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(user))
}

// Login handles POST /auth/login to authenticate and mint a token pair
// @Summary      Login user
// @Description  Authenticates a user by email and password, returning access and refresh tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest  true  "Login Credentials"
// @Success      200      {object}  response.Response{data=service.LoginResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Failure      429      {object}  response.Response
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(res))
}

// Refresh handles POST /auth/refresh to exchange a refresh token for a new pair
// @Summary      Refresh tokens
// @Description  Issues a new access and refresh token pair from a valid refresh token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RefreshRequest  true  "Refresh Token"
// @Success      200      {object}  response.Response{data=auth.TokenPair}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Failure      429      {object}  response.Response
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req service.RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(pair))
}

// Logout handles POST /auth/logout to revoke the presented access token
// @Summary      Logout user
// @Description  Revokes the current access token so it can no longer be used
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(apperr.CodeUnauthorized, "authentication required"))
		return
	}

	if err := h.authService.Logout(c.Request.Context(), claims); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(gin.H{"message": "logged out"}))
}

// GetMe handles GET /auth/me to return the authenticated user's profile
// @Summary      Get current user
// @Description  Returns the authenticated user together with roles and effective permissions
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.UserResponse}
// @Failure      401  {object}  response.Response
// @Router       /auth/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(apperr.CodeUnauthorized, "authentication required"))
		return
	}

	c.JSON(http.StatusOK, response.Success(service.NewUserProfile(user)))
}
