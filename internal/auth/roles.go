package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the single role assigned to a caller id.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleUser         Role = "user"
	RolePsychologist Role = "psychologist"
)

// ErrUnknownRole indicates a role value outside the closed enumeration.
var ErrUnknownRole = errors.New("auth: unknown role")

// ParseRole normalizes raw input into a Role.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	case RolePsychologist:
		return RolePsychologist, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}

// Valid reports whether the role belongs to the enumeration.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RolePsychologist:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// Permits reports whether r is one of the allowed roles. Unknown roles never match.
func (r Role) Permits(allowed []Role) bool {
	switch r {
	case RoleAdmin, RoleUser, RolePsychologist:
		for _, candidate := range allowed {
			if candidate == r {
				return true
			}
		}
		return false
	default:
		return false
	}
}
