package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is a named bundle of permissions. A role may inherit permissions
// from a single parent role; the chain is referenced by ID and walked at
// query time. Acyclicity is validated when the parent is set.
type Role struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	DisplayName string    `gorm:"type:varchar(100);not null" json:"display_name"`
	Description string    `gorm:"type:text" json:"description"`
	// IsSystem protects baseline roles from deletion.
	IsSystem bool `gorm:"default:false" json:"is_system"`

	ParentID *uuid.UUID `gorm:"type:uuid;index" json:"parent_id,omitempty"`

	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// PermissionNames returns the names of the role's own permissions,
// excluding inherited ones.
func (r *Role) PermissionNames() []string {
	names := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		names = append(names, p.Name)
	}
	return names
}

// Permission is an atomic capability in the form "resource:action".
// Wildcards "resource:*" and "*:*" are matched by the rbac resolver.
type Permission struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Resource    string    `gorm:"type:varchar(50);not null;index" json:"resource"`
	Action      string    `gorm:"type:varchar(50);not null;index" json:"action"`
	Description string    `gorm:"type:text" json:"description"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
