package auth

import "slices"

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermLayoutRead     Permission = "layout:read"
	PermLocoOperate    Permission = "loco:operate"
	PermRouteOperate   Permission = "route:operate"
	PermBoosterOperate Permission = "booster:operate"
	PermTrackOverride  Permission = "track:override"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermLayoutRead,
	},
	RoleOperator: {
		PermLayoutRead,
		PermLocoOperate,
		PermRouteOperate,
		PermBoosterOperate,
	},
	RoleAdmin: {
		PermLayoutRead,
		PermLocoOperate,
		PermRouteOperate,
		PermBoosterOperate,
		PermTrackOverride,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns a copy of the permissions granted to a role,
// or nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}
