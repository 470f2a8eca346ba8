package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"backend/internal/model"
)

// PermissionRepository defines data access for the permission catalogue.
type PermissionRepository interface {
	Create(ctx context.Context, perm *model.Permission) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Permission, error)
	FindByName(ctx context.Context, name string) (*model.Permission, error)
	ListAll(ctx context.Context) ([]model.Permission, error)
	ListByResource(ctx context.Context, resource string) ([]model.Permission, error)
}

type permissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) Create(ctx context.Context, perm *model.Permission) error {
	return GetDB(ctx, r.db).Create(perm).Error
}

func (r *permissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Permission, error) {
	var perm model.Permission
	if err := GetDB(ctx, r.db).First(&perm, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &perm, nil
}

func (r *permissionRepository) FindByName(ctx context.Context, name string) (*model.Permission, error) {
	var perm model.Permission
	if err := GetDB(ctx, r.db).Where("name = ?", name).First(&perm).Error; err != nil {
		return nil, err
	}
	return &perm, nil
}

func (r *permissionRepository) ListAll(ctx context.Context) ([]model.Permission, error) {
	var perms []model.Permission
	if err := GetDB(ctx, r.db).Order("resource asc, action asc").Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *permissionRepository) ListByResource(ctx context.Context, resource string) ([]model.Permission, error) {
	var perms []model.Permission
	if err := GetDB(ctx, r.db).Where("resource = ?", resource).Order("action asc").Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}
