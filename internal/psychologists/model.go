package psychologists

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates no profile exists for the requested user id.
	ErrNotFound = errors.New("psychologists: profile not found")
	// ErrInvalidUserID indicates a blank user identifier.
	ErrInvalidUserID = errors.New("psychologists: invalid user id")
)

// Profile is the directory entry of a psychologist.
type Profile struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    string    `gorm:"column:user_id;size:190;not null;uniqueIndex"`
	Email     string    `gorm:"column:email;size:320;not null"`
	FirstName *string   `gorm:"column:first_name;size:190"`
	LastName  *string   `gorm:"column:last_name;size:190"`
	Address   *string   `gorm:"column:address;size:512"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "psychologists"
}

// NewProfile builds an empty profile for a newly registered psychologist.
func NewProfile(userID, email string) Profile {
	return Profile{
		UserID: strings.TrimSpace(userID),
		Email:  strings.TrimSpace(email),
	}
}

// ProfileUpdate replaces the mutable fields of a profile. Nil clears a field.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Address   *string
}
