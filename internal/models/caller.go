package models

// Role is a user's role label. Only the maintenance role is special.
type Role string

const (
	RoleMaintenance Role = "maintenance"
	RoleManager     Role = "manager"
	RoleStaff       Role = "staff"
)

// IsMaintenance reports whether the role grants cross-location access and
// maintenance-only actions.
func (r Role) IsMaintenance() bool {
	return r == RoleMaintenance
}

// Identity is the id + display name pair recorded as a creator.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Caller is the user on whose behalf an operation runs.
type Caller struct {
	UserID       string
	DisplayName  string
	Role         Role
	LocationID   string
	LocationName string
}

// Identity returns the caller's creator identity.
func (c Caller) Identity() Identity {
	return Identity{ID: c.UserID, Name: c.DisplayName}
}

// Author returns the caller as a comment author.
func (c Caller) Author() Author {
	return Author{ID: c.UserID, Name: c.DisplayName, Role: c.Role}
}

// CanSee reports whether a record owned by locationID is inside the caller's
// visibility scope.
func (c Caller) CanSee(locationID string) bool {
	return c.Role.IsMaintenance() || c.LocationID == locationID
}
