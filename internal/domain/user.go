package domain

import "time"

// Role names stored on a user record. RoleDev outranks RoleAdmin, which
// outranks RoleUser; endpoints that require "admin or higher" accept both
// RoleAdmin and RoleDev.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	RoleDev   = "dev"
)

// ValidRole reports whether the given role name is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleDev:
		return true
	}
	return false
}

// User is the durable user record in the primary store.
type User struct {
	UserID         string    `json:"id"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	DisplayName    string    `json:"display_name"`
	Role           string    `json:"role"`
	EmailVerified  bool      `json:"email_verified"`
	AdminConfirmed bool      `json:"admin_confirmed"`
	CreatedAt      time.Time `json:"created"`
	UpdatedAt      time.Time `json:"updated"`
}

type CreateUserRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"required"`
	Role        string `json:"role"` // defaults to RoleUser when empty
}
