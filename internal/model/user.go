package model

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User represents the central identity record.
//
// Effective permissions = permissions from assigned roles (including
// inherited ones) + direct permission grants. Resolution lives in the
// rbac package; the model only carries the associations.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Username     string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"type:varchar(120);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`

	FirstName  string `gorm:"type:varchar(50);not null" json:"first_name"`
	MiddleName string `gorm:"type:varchar(50)" json:"middle_name,omitempty"`
	LastName   string `gorm:"type:varchar(50)" json:"last_name,omitempty"`
	Bio        string `gorm:"type:text" json:"bio,omitempty"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	// Roles assigned to this user (permission source number one).
	Roles []Role `gorm:"many2many:user_roles;" json:"roles,omitempty"`
	// Permissions granted directly, bypassing roles. Use sparingly.
	DirectPermissions []Permission `gorm:"many2many:user_permissions;" json:"direct_permissions,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// SetPassword hashes and stores the given plaintext password.
func (u *User) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether plain matches the stored hash.
func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}

// RoleNames returns the names of the user's directly assigned roles.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}
