package users

import (
	"strings"
	"time"

	"github.com/yudi-prasetyo/psychchat-backend/internal/auth"
)

// RoleAssignment binds a caller id to its single role.
type RoleAssignment struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    string    `gorm:"column:user_id;size:190;not null;index"`
	Role      auth.Role `gorm:"column:role;size:32;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing role assignments.
func (RoleAssignment) TableName() string {
	return "roles"
}

// NewRoleAssignment builds an assignment for the caller.
func NewRoleAssignment(userID string, role auth.Role) RoleAssignment {
	return RoleAssignment{
		UserID: normalize(userID),
		Role:   role,
	}
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
