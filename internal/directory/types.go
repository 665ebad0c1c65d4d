package directory

import (
	"time"

	"fieldgrid.org/internal/auth"
)

// User is a staff account: an administrator, a grid manager, or a field
// mediator. GridID is set only for mediators and names their operational
// grid; a grid manager's grid is recorded on the Grid side.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	GridID       string    `json:"grid_id,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Grid is a bounded geographic service zone. Boundary and center arrive
// already resolved; this service never calls a mapping provider. A grid has
// at most one active manager at a time.
type Grid struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Region      string       `json:"region,omitempty"`
	Boundary    [][2]float64 `json:"boundary,omitempty"`
	CenterLng   float64      `json:"center_lng,omitempty"`
	CenterLat   float64      `json:"center_lat,omitempty"`
	ManagerID   string       `json:"manager_id,omitempty"`
	Description string       `json:"description,omitempty"`
	Active      bool         `json:"active"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// UserFilter narrows user listings.
type UserFilter struct {
	Role       auth.Role
	GridID     string
	Search     string
	ActiveOnly bool
}

// GridFilter narrows grid listings.
type GridFilter struct {
	Search string
	Active *bool
}
