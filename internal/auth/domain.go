package auth

import (
	"time"

	"github.com/licenseops/licenseops/internal/access"
)

// User represents a console account.
type User struct {
	ID                     int64
	Username               string
	PasswordHash           string
	Role                   access.Role
	Region                 string
	PasswordChangeRequired bool
	IsActive               bool
	LastLoginAt            *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Principal converts the account into the session principal.
func (u User) Principal() access.Principal {
	return access.Principal{
		Username:               u.Username,
		Role:                   u.Role,
		Region:                 u.Region,
		PasswordChangeRequired: u.PasswordChangeRequired,
	}
}
