package auth

import (
	"regexp"
	"slices"
)

// usernamePattern allows alphanumerics, dots, hyphens and underscores.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role is an operator's authorisation tier.
type Role string

const (
	// RoleViewer watches the layout: read endpoints and the WebSocket.
	RoleViewer Role = "viewer"

	// RoleOperator runs trains: loco control, routes and track power.
	RoleOperator Role = "operator"

	// RoleAdmin can also override the interlocking inputs (feedback
	// simulation, blocking tracks).
	RoleAdmin Role = "admin"
)

// ValidRoles lists the roles accepted in security.operators.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

// Operator is an account allowed to use the API.
type Operator struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // never serialised
	Role         Role   `json:"role"`
}
