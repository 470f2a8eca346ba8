package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperr"
)

// --- DTOs ---

type CreateUserRequest struct {
	Username   string `json:"username" binding:"required,min=3,max=100"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	FirstName  string `json:"first_name" binding:"required"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"`
	Bio        string `json:"bio"`
}

type UpdateUserRequest struct {
	Username   string `json:"username" binding:"omitempty,min=3,max=100"`
	Email      string `json:"email" binding:"omitempty,email"`
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"`
	Bio        string `json:"bio"`
	IsActive   *bool  `json:"is_active"`
}

// UserResponse is the user payload; the password hash never leaves the
// model layer.
type UserResponse struct {
	ID         string   `json:"id"`
	Username   string   `json:"username"`
	Email      string   `json:"email"`
	FirstName  string   `json:"first_name"`
	MiddleName string   `json:"middle_name,omitempty"`
	LastName   string   `json:"last_name,omitempty"`
	Bio        string   `json:"bio,omitempty"`
	IsActive   bool     `json:"is_active"`
	Roles      []string `json:"roles"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
}

// --- Interface ---

// UserService owns user CRUD. Uniqueness violations are Conflict,
// lookup misses NotFound. Deletes are soft.
type UserService interface {
	CreateUser(ctx context.Context, actor *model.User, req CreateUserRequest) (*UserResponse, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error)
	ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, actor *model.User, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, actor *model.User, id uuid.UUID) error
}

type userService struct {
	repo   repository.UserRepository
	audits repository.AuditRepository
	log    *zap.Logger
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository, audits repository.AuditRepository, log *zap.Logger) UserService {
	return &userService{repo: repo, audits: audits, log: log}
}

func (s *userService) CreateUser(ctx context.Context, actor *model.User, req CreateUserRequest) (*UserResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	email := normalizeEmail(req.Email)

	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return nil, apperr.Conflict("username '%s' already exists", username)
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("email '%s' already exists", email)
	}

	user := &model.User{
		Username:   username,
		Email:      email,
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
		Bio:        req.Bio,
		IsActive:   true,
	}
	if err := user.SetPassword(req.Password); err != nil {
		return nil, apperr.Internal("failed to hash password")
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	action := model.ActionRegisterUser
	if actor != nil {
		action = model.ActionCreateUser
	}
	s.recordAudit(ctx, actor, action, user.ID.String(), user.Username)
	s.log.Info("user created",
		zap.String("user", user.Username),
		zap.String("actor", actorLabel(actor)))

	return toUserResponse(user), nil
}

func (s *userService) GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.repo.GetByIDWithAccess(ctx, id)
	if err != nil {
		return nil, userNotFound(err)
	}
	return toUserResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	users, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *toUserResponse(&users[i]))
	}
	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, actor *model.User, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, userNotFound(err)
	}

	if req.Username != "" {
		username := strings.ToLower(strings.TrimSpace(req.Username))
		if username != user.Username {
			if _, err := s.repo.GetByUsername(ctx, username); err == nil {
				return nil, apperr.Conflict("username '%s' already exists", username)
			}
			user.Username = username
		}
	}
	if req.Email != "" {
		email := normalizeEmail(req.Email)
		if email != user.Email {
			if _, err := s.repo.GetByEmail(ctx, email); err == nil {
				return nil, apperr.Conflict("email '%s' already exists", email)
			}
			user.Email = email
		}
	}
	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.MiddleName != "" {
		user.MiddleName = req.MiddleName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.Bio != "" {
		user.Bio = req.Bio
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, model.ActionUpdateUser, user.ID.String(), user.Username)
	s.log.Info("user updated",
		zap.String("user", user.Username),
		zap.String("actor", actorLabel(actor)))

	return s.GetUserByID(ctx, user.ID)
}

func (s *userService) DeleteUser(ctx context.Context, actor *model.User, id uuid.UUID) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return userNotFound(err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.recordAudit(ctx, actor, model.ActionDeleteUser, user.ID.String(), user.Username)
	s.log.Info("user deleted",
		zap.String("user", user.Username),
		zap.String("actor", actorLabel(actor)))
	return nil
}

func (s *userService) recordAudit(ctx context.Context, actor *model.User, action, entityID, entityName string) {
	entry := &model.AuditLog{
		UserID:     actorID(actor),
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
	}
	if err := s.audits.Log(ctx, entry); err != nil {
		s.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

// --- Helpers ---

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewUserProfile builds the API representation of an already-loaded user.
func NewUserProfile(user *model.User) *UserResponse {
	return toUserResponse(user)
}

func toUserResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:         user.ID.String(),
		Username:   user.Username,
		Email:      user.Email,
		FirstName:  user.FirstName,
		MiddleName: user.MiddleName,
		LastName:   user.LastName,
		Bio:        user.Bio,
		IsActive:   user.IsActive,
		Roles:      user.RoleNames(),
		CreatedAt:  user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:  user.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
