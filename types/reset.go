package types

import "time"

// PasswordResetRequest is a one-time password-reset capability for a
// user. At most one live request exists per user: creating a new one
// replaces any prior request.
type PasswordResetRequest struct {
	ID     int `json:"id" db:"id"`
	UserID int `json:"user_id" db:"user_id"`

	// Hash is the opaque random token mailed to the user.
	Hash string `json:"-" db:"hash"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
