package types

import (
	"strings"
	"time"
)

// User account statuses. Accounts are never hard-deleted; closing an
// account transitions it to StatusClosed.
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// User represents an account in the system.
// It contains identity, role flags, and per-request bookkeeping metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the user's e-mail address, always stored lowercase.
	// Uniqueness is case-insensitive.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsStaff designates an elevated, non-superuser role with broad
	// read access.
	IsStaff bool `json:"is_staff" db:"is_staff"`

	// IsSuperuser designates an admin who holds all permissions.
	IsSuperuser bool `json:"is_superuser" db:"is_superuser"`

	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	Phone     string `json:"phone" db:"phone"`

	// RegistrationIP is set exactly once, on the first authenticated
	// request, and never overwritten afterward.
	RegistrationIP string `json:"registration_ip,omitempty" db:"registration_ip"`

	// LastIP is the source address of the most recent request.
	LastIP string `json:"last_ip,omitempty" db:"last_ip"`

	// LastActivity is refreshed on every authenticated request.
	LastActivity *time.Time `json:"last_activity,omitempty" db:"last_activity"`

	// Country and Timezone are derived from RegistrationIP, best-effort.
	Country  string `json:"country,omitempty" db:"country"`
	Timezone string `json:"timezone,omitempty" db:"timezone"`

	// ImageKey references the profile image in object storage.
	ImageKey string `json:"-" db:"image_key"`

	ShowWelcomeDialog bool `json:"show_welcome_dialog" db:"show_welcome_dialog"`

	// Status is the lifecycle status of the account, StatusActive or
	// StatusClosed.
	Status string `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FullName returns the first name plus the last name, with a space in
// between, falling back to the email address.
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// ShortName returns the first name, falling back to the email address.
func (u User) ShortName() string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	return u.Email
}
