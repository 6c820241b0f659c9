package types

import "time"

// Coffee-cup choices for the profile questionnaire.
const (
	CoffeeCupsOne   = 1
	CoffeeCupsTwo   = 2
	CoffeeCupsThree = 3
)

// Profile is a user-owned wellness profile record. A user may hold
// several named profiles; access follows the same policy as the owning
// user record.
type Profile struct {
	ID     int `json:"id" db:"id"`
	UserID int `json:"user_id" db:"user_id"`

	Name        string     `json:"name" db:"name"`
	Birthday    *time.Time `json:"birthday,omitempty" db:"birthday"`
	Male        bool       `json:"male" db:"male"`
	Smoker      bool       `json:"smoker" db:"smoker"`
	Vegetarian  bool       `json:"vegetarian" db:"vegetarian"`
	Pregnancy   bool       `json:"pregnancy" db:"pregnancy"`
	CoffeeCups  int        `json:"coffee_cups" db:"coffee_cups"`
	HealthGoals string     `json:"health_goals" db:"health_goals"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
