package entity

import "time"

// Role names are the only identity facts the workflow checks.
type Role string

const (
	RoleCitizen    Role = "citizen"
	RoleContractor Role = "contractor"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleContractor, RoleAdmin, RoleSuperadmin:
		return true
	}
	return false
}

// PointsPerLevel is the impact-point span of one citizen level.
const PointsPerLevel = 100

// User represents an account row in the `users` table.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	City         string    `json:"city,omitempty"`
	ImpactPoints int       `json:"impactPoints"`
	CitizenLevel int       `json:"citizenLevel"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// LevelFor derives the citizen level from accumulated impact points.
func LevelFor(points int) int {
	if points < 0 {
		points = 0
	}
	return points/PointsPerLevel + 1
}
