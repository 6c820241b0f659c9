package types

import "time"

// Company is an organization that grants roles to users.
type Company struct {
	ID       int    `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	IsActive bool   `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Role types grantable within a company.
const (
	RoleAdmin     = "admin"
	RoleRecruiter = "recruiter"
	RoleScouter   = "scouter"
)

// Role associates a user with a company and a role type.
type Role struct {
	ID        int    `json:"id" db:"id"`
	UserID    int    `json:"user_id" db:"user_id"`
	CompanyID int    `json:"company_id" db:"company_id"`
	Type      string `json:"type" db:"type"`
	IsActive  bool   `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ValidRoleType reports whether t is a known role type.
func ValidRoleType(t string) bool {
	switch t {
	case RoleAdmin, RoleRecruiter, RoleScouter:
		return true
	}
	return false
}
