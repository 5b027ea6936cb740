package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name  string
		role  Role
		cap   Capability
		allow bool
	}{
		{name: "viewer view", role: RoleViewer, cap: CapView, allow: true},
		{name: "viewer comment", role: RoleViewer, cap: CapComment, allow: false},
		{name: "viewer edit", role: RoleViewer, cap: CapEdit, allow: false},
		{name: "commenter view", role: RoleCommenter, cap: CapView, allow: true},
		{name: "commenter comment", role: RoleCommenter, cap: CapComment, allow: true},
		{name: "commenter edit", role: RoleCommenter, cap: CapEdit, allow: false},
		{name: "editor edit", role: RoleEditor, cap: CapEdit, allow: true},
		{name: "editor delete", role: RoleEditor, cap: CapDelete, allow: false},
		{name: "editor manage", role: RoleEditor, cap: CapManage, allow: false},
		{name: "owner delete", role: RoleOwner, cap: CapDelete, allow: true},
		{name: "owner manage", role: RoleOwner, cap: CapManage, allow: true},
		{name: "unknown role", role: Role("admin"), cap: CapView, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.cap); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.cap, got, tc.allow)
			}
		})
	}
}

// An owner grant must never allow fewer actions than any lesser role.
func TestRoleMonotonicity(t *testing.T) {
	order := []Role{RoleViewer, RoleCommenter, RoleEditor, RoleOwner}
	caps := []Capability{CapView, CapComment, CapEdit, CapDelete, CapManage}

	for i := 1; i < len(order); i++ {
		lower, higher := order[i-1], order[i]
		for _, cap := range caps {
			if Can(lower, cap) && !Can(higher, cap) {
				t.Fatalf("role %q allows %q but higher role %q does not", lower, cap, higher)
			}
		}
	}
}

func TestParseRole(t *testing.T) {
	for _, raw := range []string{"viewer", "commenter", "editor", "owner"} {
		role, ok := ParseRole(raw)
		if !ok || string(role) != raw {
			t.Fatalf("ParseRole(%q) = (%q, %v), want valid", raw, role, ok)
		}
	}
	for _, raw := range []string{"", "admin", "Owner", "EDITOR", "superuser"} {
		if _, ok := ParseRole(raw); ok {
			t.Fatalf("ParseRole(%q) accepted a malformed role", raw)
		}
	}
}
