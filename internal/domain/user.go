package domain

import "time"

// User represents an authenticated account within the platform. The token
// balance and validity window are denormalized onto the user row and mutated
// only through ledger operations.
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	TokenBalance    int
	TokenValidUntil *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TokensValidAt reports whether the user's token balance is usable at the
// given instant. An unset validity window means the tokens are not usable.
func (u User) TokensValidAt(at time.Time) bool {
	return u.TokenValidUntil != nil && at.Before(*u.TokenValidUntil)
}

// TokenHistory is an append-only audit record of a single balance delta.
// Rows are never mutated after creation.
type TokenHistory struct {
	ID                    int64
	UserID                string
	Change                int
	Source                string
	ValidityExtensionDays int
	CreatedAt             time.Time
}
