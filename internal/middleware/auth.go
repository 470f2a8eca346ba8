package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backend/internal/auth"
	"backend/internal/model"
	"backend/internal/rbac"
	"backend/internal/repository"
	"backend/pkg/apperr"
	"backend/pkg/response"
)

// Mode selects how a multi-requirement check combines its members.
type Mode int

const (
	// AnyOf passes when at least one requirement is met.
	AnyOf Mode = iota
	// AllOf passes only when every requirement is met.
	AllOf
)

const (
	ctxUserKey   = "authUser"
	ctxClaimsKey = "authClaims"
)

// resolverTTL bounds how stale the cached role index may get. Handlers
// that mutate roles call InvalidateResolver to refresh sooner.
const resolverTTL = 5 * time.Minute

// TokenValidator is the slice of auth.Manager the gate needs.
type TokenValidator interface {
	Validate(ctx context.Context, raw string, want auth.TokenType) (*auth.Claims, error)
}

// UserResolver maps validated claims to a live user record.
type UserResolver interface {
	ResolveUser(ctx context.Context, claims *auth.Claims) (*model.User, error)
}

// Gate is the request-interception layer: it establishes identity from
// the bearer token, checks the account is active, and evaluates the
// declared permission/role requirement before the handler runs. It
// produces allow/deny plus a structured reason and knows nothing about
// the business operation it protects.
type Gate struct {
	tokens TokenValidator
	users  UserResolver
	roles  repository.RoleRepository
	log    *zap.Logger

	mu       sync.Mutex
	resolver *rbac.Resolver
	expires  time.Time
}

func NewGate(tokens TokenValidator, users UserResolver, roles repository.RoleRepository, log *zap.Logger) *Gate {
	return &Gate{tokens: tokens, users: users, roles: roles, log: log}
}

// Authenticate validates the bearer token and loads the user with roles
// and permissions. Each token failure aborts with its own message;
// inactive accounts are rejected after identity is established.
func (g *Gate) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearerToken(c)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		claims, err := g.tokens.Validate(c.Request.Context(), raw, auth.TokenTypeAccess)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		user, err := g.users.ResolveUser(c.Request.Context(), claims)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		if !user.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden,
				response.Error(apperr.CodeForbidden, "account deactivated"))
			return
		}

		c.Set(ctxUserKey, user)
		c.Set(ctxClaimsKey, claims)
		c.Next()
	}
}

// RequirePermissions gates the route on permission names, combined per
// mode. Must run after Authenticate.
func (g *Gate) RequirePermissions(mode Mode, perms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				response.Error(apperr.CodeUnauthorized, auth.ErrTokenMissing.Error()))
			return
		}

		resolver, err := g.getResolver(c.Request.Context())
		if err != nil {
			g.log.Error("permission check failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				response.Error(apperr.CodeInternal, "internal server error"))
			return
		}

		allowed := false
		switch mode {
		case AllOf:
			allowed = resolver.HasAllPermissions(user, perms...)
		default:
			allowed = resolver.HasAnyPermission(user, perms...)
		}

		if !allowed {
			missing := resolver.MissingPermissions(user, perms...)
			g.log.Info("permission denied",
				zap.String("user", user.Username),
				zap.Strings("missing", missing))
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorWithDetails(
				apperr.CodeForbidden,
				"insufficient permissions",
				gin.H{"required": perms, "missing": missing}))
			return
		}

		c.Next()
	}
}

// RequireRoles gates the route on direct role assignments, combined per
// mode. Role names never match through inheritance.
func (g *Gate) RequireRoles(mode Mode, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				response.Error(apperr.CodeUnauthorized, auth.ErrTokenMissing.Error()))
			return
		}

		resolver, err := g.getResolver(c.Request.Context())
		if err != nil {
			g.log.Error("role check failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				response.Error(apperr.CodeInternal, "internal server error"))
			return
		}

		allowed := false
		switch mode {
		case AllOf:
			allowed = resolver.HasAllRoles(user, roles...)
		default:
			allowed = resolver.HasAnyRole(user, roles...)
		}

		if !allowed {
			g.log.Info("role requirement not met",
				zap.String("user", user.Username),
				zap.Strings("required", roles))
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorWithDetails(
				apperr.CodeForbidden,
				"insufficient role",
				gin.H{"required": roles}))
			return
		}

		c.Next()
	}
}

// InvalidateResolver drops the cached role index. Call after any role
// or role-permission mutation.
func (g *Gate) InvalidateResolver() {
	g.mu.Lock()
	g.resolver = nil
	g.mu.Unlock()
}

func (g *Gate) getResolver(ctx context.Context) (*rbac.Resolver, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.resolver != nil && time.Now().Before(g.expires) {
		return g.resolver, nil
	}

	roles, err := g.roles.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	g.resolver = rbac.NewResolver(roles)
	g.expires = time.Now().Add(resolverTTL)
	return g.resolver, nil
}

// CurrentUser returns the authenticated user stashed by Authenticate.
func CurrentUser(c *gin.Context) (*model.User, bool) {
	val, ok := c.Get(ctxUserKey)
	if !ok {
		return nil, false
	}
	user, ok := val.(*model.User)
	return user, ok
}

// CurrentClaims returns the validated token claims for the request.
func CurrentClaims(c *gin.Context) (*auth.Claims, bool) {
	val, ok := c.Get(ctxClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := val.(*auth.Claims)
	return claims, ok
}

// bearerToken extracts the token from the Authorization header. Bearer
// is the only transport; no cookies, no custom headers.
func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", auth.ErrTokenMissing
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", auth.ErrTokenInvalid
	}
	return parts[1], nil
}

// abortUnauthorized maps a token failure to its 401 response. Typed
// application errors pass their code/message through; raw auth errors
// get the uniform unauthorized family.
func abortUnauthorized(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind == apperr.KindUnauthenticated {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(appErr.Code, appErr.Message))
		return
	}

	code := apperr.CodeUnauthorized
	message := auth.ErrTokenMissing.Error()
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		code, message = apperr.CodeTokenExpired, auth.ErrTokenExpired.Error()
	case errors.Is(err, auth.ErrTokenRevoked):
		code, message = apperr.CodeTokenInvalid, auth.ErrTokenRevoked.Error()
	case errors.Is(err, auth.ErrTokenInvalid):
		code, message = apperr.CodeTokenInvalid, auth.ErrTokenInvalid.Error()
	case errors.Is(err, auth.ErrTokenMissing):
		// defaults
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			response.Error(apperr.CodeInternal, "internal server error"))
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(code, message))
}
