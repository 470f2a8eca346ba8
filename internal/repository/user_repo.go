package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"backend/internal/model"
)

// UserRepository defines data access for User entities and the user-side
// membership edges (user_roles, user_permissions).
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByIDWithAccess eagerly loads roles (with their permissions) and
	// direct permissions in one call; the loading strategy is explicit
	// because callers doing permission checks need the full graph.
	GetByIDWithAccess(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	List(ctx context.Context, page, limit int) ([]model.User, int64, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id uuid.UUID) error

	AssignRole(ctx context.Context, edge *model.UserRole) error
	RevokeRole(ctx context.Context, userID, roleID uuid.UUID) error
	GrantPermission(ctx context.Context, edge *model.UserPermission) error
	RevokePermission(ctx context.Context, userID, permissionID uuid.UUID) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByIDWithAccess(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := GetDB(ctx, r.db).
		Preload("Roles.Permissions").
		Preload("DirectPermissions").
		First(&user, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, page, limit int) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Roles").Order("created_at asc").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Save(user).Error
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.User{}).Error
}

func (r *userRepository) AssignRole(ctx context.Context, edge *model.UserRole) error {
	return GetDB(ctx, r.db).Create(edge).Error
}

func (r *userRepository) RevokeRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return GetDB(ctx, r.db).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&model.UserRole{}).Error
}

func (r *userRepository) GrantPermission(ctx context.Context, edge *model.UserPermission) error {
	return GetDB(ctx, r.db).Create(edge).Error
}

func (r *userRepository) RevokePermission(ctx context.Context, userID, permissionID uuid.UUID) error {
	return GetDB(ctx, r.db).
		Where("user_id = ? AND permission_id = ?", userID, permissionID).
		Delete(&model.UserPermission{}).Error
}
