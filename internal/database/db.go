package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"backend/internal/model"
)

// NewConnection initializes a new connection pool using GORM and runs
// the schema migration. The join tables are registered first so the
// audit columns on the association edges survive AutoMigrate.
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.SetupJoinTable(&model.User{}, "Roles", &model.UserRole{}); err != nil {
		return nil, fmt.Errorf("register user_roles join table: %w", err)
	}
	if err := db.SetupJoinTable(&model.User{}, "DirectPermissions", &model.UserPermission{}); err != nil {
		return nil, fmt.Errorf("register user_permissions join table: %w", err)
	}
	if err := db.SetupJoinTable(&model.Role{}, "Permissions", &model.RolePermission{}); err != nil {
		return nil, fmt.Errorf("register role_permissions join table: %w", err)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.Role{},
		&model.Permission{},
		&model.AuditLog{},
	); err != nil {
		return nil, fmt.Errorf("auto-migrate models: %w", err)
	}

	return db, nil
}
