package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionRegisterUser = "REGISTER_USER"
	ActionCreateUser   = "CREATE_USER"
	ActionUpdateUser   = "UPDATE_USER"
	ActionDeleteUser   = "DELETE_USER"

	ActionLogin   = "LOGIN"
	ActionLogout  = "LOGOUT"
	ActionRefresh = "REFRESH_TOKENS"

	// RBAC actions
	ActionCreateRole       = "CREATE_ROLE"
	ActionUpdateRole       = "UPDATE_ROLE"
	ActionDeleteRole       = "DELETE_ROLE"
	ActionAssignRole       = "ASSIGN_ROLE"
	ActionRevokeRole       = "REVOKE_ROLE"
	ActionGrantPermission  = "GRANT_PERMISSION"
	ActionRevokePermission = "REVOKE_PERMISSION"
	ActionSeedRBAC         = "SEED_RBAC"
)

// AuditLog tracks who did what, to which entity, and when.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for system actions (e.g. seeding)
	User       *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
