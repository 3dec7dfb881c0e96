package middleware

import (
	"vpn-shop-bot/internal/errors"
)

// AdminList answers whether a Telegram user is an admin
type AdminList interface {
	IsAdmin(userID int64) bool
}

// AuthMiddleware handles authorization checks
type AuthMiddleware struct {
	admins AdminList
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(admins AdminList) *AuthMiddleware {
	return &AuthMiddleware{admins: admins}
}

// IsAdmin checks if user is an admin
func (m *AuthMiddleware) IsAdmin(userID int64) bool {
	return m.admins.IsAdmin(userID)
}

// RequireAdmin returns an error if user is not an admin
func (m *AuthMiddleware) RequireAdmin(userID int64) error {
	if !m.IsAdmin(userID) {
		return errors.Unauthorized("این بخش فقط برای مدیران است")
	}
	return nil
}
