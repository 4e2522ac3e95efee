package domain

import "time"

// Code purposes. At most one active code exists per (email, purpose) pair;
// issuing a new code supersedes the previous one.
const (
	PurposeEmailVerification = "email_verification"
	PurposeAdminConfirmation = "admin_confirmation"
	PurposePasswordReset     = "password_reset"
)

// ValidPurpose reports whether the given purpose is one of the known code purposes.
func ValidPurpose(purpose string) bool {
	switch purpose {
	case PurposeEmailVerification, PurposeAdminConfirmation, PurposePasswordReset:
		return true
	}
	return false
}

// OneTimeCode is a short-lived 6-digit numeric code held in process memory.
type OneTimeCode struct {
	Email        string    `json:"email"`
	Purpose      string    `json:"purpose"`
	Code         string    `json:"-"` // zero-padded, 000000–999999
	ExpiresAt    time.Time `json:"expires_at"`
	Consumed     bool      `json:"consumed"`
	AttemptCount int       `json:"attempt_count"`
}
