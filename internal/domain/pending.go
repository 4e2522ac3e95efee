package domain

import "time"

// PendingUser is a registration buffered in process memory while the primary
// store is unreachable. It exists only until the next successful
// reconciliation run and is never persisted.
type PendingUser struct {
	Email          string    `json:"email"` // normalized (lowercased, trimmed)
	PasswordHash   string    `json:"-"`
	DisplayName    string    `json:"display_name"`
	Role           string    `json:"role"`
	EmailVerified  bool      `json:"email_verified"`
	AdminConfirmed bool      `json:"admin_confirmed"`
	CreatedAt      time.Time `json:"created"`
}

// Eligible reports whether the pending user may be written to the primary
// store during reconciliation. Unverified or unconfirmed entries are
// classified skipped, never retried.
func (p *PendingUser) Eligible() bool {
	return p.EmailVerified && p.AdminConfirmed
}
