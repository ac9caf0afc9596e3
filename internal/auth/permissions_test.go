package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermLayoutRead, true},
		{RoleViewer, PermLocoOperate, false},
		{RoleViewer, PermBoosterOperate, false},
		{RoleOperator, PermLayoutRead, true},
		{RoleOperator, PermLocoOperate, true},
		{RoleOperator, PermRouteOperate, true},
		{RoleOperator, PermBoosterOperate, true},
		{RoleOperator, PermTrackOverride, false},
		{RoleAdmin, PermTrackOverride, true},
		{Role("owner"), PermLayoutRead, false},
		{Role(""), PermLayoutRead, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestPermissionsForRole(t *testing.T) {
	perms := PermissionsForRole(RoleAdmin)
	if len(perms) != 5 {
		t.Errorf("admin has %d permissions, want 5", len(perms))
	}

	// Callers get a copy.
	perms[0] = "mutated"
	if !HasPermission(RoleAdmin, PermLayoutRead) {
		t.Error("PermissionsForRole() leaked the internal slice")
	}

	if PermissionsForRole("owner") != nil {
		t.Error("unknown role should have no permissions")
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range ValidRoles {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = false", r)
		}
	}
	for _, r := range []Role{"", "owner", "panel", "Admin"} {
		if IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = true", r)
		}
	}
}

func TestIsValidUsername(t *testing.T) {
	tests := []struct {
		username string
		want     bool
	}{
		{"alice", true},
		{"club.night-shift_2", true},
		{"", false},
		{"has space", false},
		{"semi;colon", false},
		{string(make([]byte, 65)), false},
	}
	for _, tt := range tests {
		if got := IsValidUsername(tt.username); got != tt.want {
			t.Errorf("IsValidUsername(%q) = %v, want %v", tt.username, got, tt.want)
		}
	}
}
