package model

import (
	"time"

	"github.com/google/uuid"
)

// Join models for the three many-to-many edges. Registered with
// SetupJoinTable so every grant carries its audit metadata.

// UserRole links a user to a role and records who assigned it and when.
type UserRole struct {
	UserID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"user_id"`
	RoleID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"role_id"`
	AssignedAt time.Time  `gorm:"autoCreateTime" json:"assigned_at"`
	AssignedBy *uuid.UUID `gorm:"type:uuid" json:"assigned_by,omitempty"`
}

// RolePermission links a role to a permission.
type RolePermission struct {
	RoleID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"role_id"`
	PermissionID uuid.UUID  `gorm:"type:uuid;primaryKey" json:"permission_id"`
	GrantedAt    time.Time  `gorm:"autoCreateTime" json:"granted_at"`
	GrantedBy    *uuid.UUID `gorm:"type:uuid" json:"granted_by,omitempty"`
}

// UserPermission links a user to a directly granted permission. Reason is
// free text kept for the audit trail.
type UserPermission struct {
	UserID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"user_id"`
	PermissionID uuid.UUID  `gorm:"type:uuid;primaryKey" json:"permission_id"`
	GrantedAt    time.Time  `gorm:"autoCreateTime" json:"granted_at"`
	GrantedBy    *uuid.UUID `gorm:"type:uuid" json:"granted_by,omitempty"`
	Reason       string     `gorm:"type:text" json:"reason,omitempty"`
}
