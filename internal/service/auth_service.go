package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"backend/internal/auth"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperr"
)

// --- DTOs ---

type RegisterRequest struct {
	Username   string `json:"username" binding:"required,min=3,max=100"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	FirstName  string `json:"first_name" binding:"required"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"`
	Bio        string `json:"bio"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type LoginResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	User         *UserResponse `json:"user"`
}

// --- Interface ---

// AuthService handles the credential and token side of authentication:
// registration, login, logout (revocation), refresh, and resolving a
// validated claim set back to a live user.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Logout(ctx context.Context, claims *auth.Claims) error
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	// ResolveUser maps validated claims to a live, non-deleted user with
	// roles and permissions loaded. A missing or deleted subject is an
	// invalid-token failure, not a distinct condition.
	ResolveUser(ctx context.Context, claims *auth.Claims) (*model.User, error)
}

type authService struct {
	users  repository.UserRepository
	tokens *auth.Manager
	userSv UserService
	audits repository.AuditRepository
	log    *zap.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.Manager,
	userSv UserService,
	audits repository.AuditRepository,
	log *zap.Logger,
) AuthService {
	return &authService{users: users, tokens: tokens, userSv: userSv, audits: audits, log: log}
}

func (s *authService) Register(ctx context.Context, req RegisterRequest) (*UserResponse, error) {
	return s.userSv.CreateUser(ctx, nil, CreateUserRequest{
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
		Bio:        req.Bio,
	})
}

// Login authenticates credentials and mints a token pair. The same
// failure is returned for unknown email, wrong password, and inactive
// account, to prevent account enumeration.
func (s *authService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidCredentials()
		}
		return nil, err
	}
	if !user.CheckPassword(req.Password) || !user.IsActive {
		return nil, invalidCredentials()
	}

	pair, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	full, err := s.users.GetByIDWithAccess(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, user, model.ActionLogin, user.ID.String(), user.Username)
	s.log.Info("login successful", zap.String("user", user.Username))

	return &LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		User:         toUserResponse(full),
	}, nil
}

// Logout revokes the presented access token. The client is expected to
// discard its refresh token as well; only the presented jti is
// blacklisted here.
func (s *authService) Logout(ctx context.Context, claims *auth.Claims) error {
	if err := s.tokens.Revoke(ctx, claims); err != nil {
		return err
	}

	if userID, err := uuid.Parse(claims.Subject); err == nil {
		if user, err := s.users.GetByID(ctx, userID); err == nil {
			s.recordAudit(ctx, user, model.ActionLogout, user.ID.String(), user.Username)
		}
	}
	s.log.Info("logout successful", zap.String("jti", claims.ID))
	return nil
}

// Refresh validates a refresh token and issues a fresh pair. Whether the
// old refresh token keeps working afterwards is a deployment policy:
// with rotation enabled its jti is revoked, otherwise it stays valid
// until expiry.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.tokens.Validate(ctx, refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return nil, mapTokenError(err)
	}

	user, err := s.ResolveUser(ctx, claims)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	if s.tokens.RotateRefresh() {
		if err := s.tokens.Revoke(ctx, claims); err != nil {
			return nil, err
		}
	}

	s.recordAudit(ctx, user, model.ActionRefresh, user.ID.String(), user.Username)
	s.log.Info("tokens refreshed", zap.String("user", user.Username))
	return pair, nil
}

func (s *authService) ResolveUser(ctx context.Context, claims *auth.Claims) (*model.User, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, mapTokenError(auth.ErrTokenInvalid)
	}

	user, err := s.users.GetByIDWithAccess(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mapTokenError(auth.ErrTokenInvalid)
		}
		return nil, err
	}
	return user, nil
}

func (s *authService) recordAudit(ctx context.Context, user *model.User, action, entityID, entityName string) {
	entry := &model.AuditLog{
		UserID:     actorID(user),
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
	}
	if err := s.audits.Log(ctx, entry); err != nil {
		s.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func invalidCredentials() error {
	return apperr.Unauthenticated(apperr.CodeInvalidLogin, "invalid email or password")
}

// mapTokenError translates named token failures into typed application
// errors carrying the code the envelope needs. Distinct messages per
// sub-reason, uniform 401 family.
func mapTokenError(err error) error {
	switch {
	case errors.Is(err, auth.ErrTokenMissing):
		return apperr.Unauthenticated(apperr.CodeUnauthorized, auth.ErrTokenMissing.Error())
	case errors.Is(err, auth.ErrTokenExpired):
		return apperr.Unauthenticated(apperr.CodeTokenExpired, auth.ErrTokenExpired.Error())
	case errors.Is(err, auth.ErrTokenRevoked):
		return apperr.Unauthenticated(apperr.CodeTokenInvalid, auth.ErrTokenRevoked.Error())
	case errors.Is(err, auth.ErrTokenInvalid):
		return apperr.Unauthenticated(apperr.CodeTokenInvalid, auth.ErrTokenInvalid.Error())
	default:
		return err
	}
}
