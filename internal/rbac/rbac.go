package rbac

type Role string
type Capability string

const (
	RoleViewer    Role = "viewer"
	RoleCommenter Role = "commenter"
	RoleEditor    Role = "editor"
	RoleOwner     Role = "owner"
)

const (
	CapView    Capability = "view"
	CapComment Capability = "comment"
	CapEdit    Capability = "edit"
	CapDelete  Capability = "delete"
	CapManage  Capability = "manage"
)

// Can maps the fixed role/capability matrix. Owners hold every capability;
// each grade below loses capabilities and never gains any.
func Can(role Role, cap Capability) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleEditor:
		return cap == CapView || cap == CapComment || cap == CapEdit
	case RoleCommenter:
		return cap == CapView || cap == CapComment
	case RoleViewer:
		return cap == CapView
	default:
		return false
	}
}

// ParseRole validates a role string against the closed enumeration.
// Malformed roles are rejected, never silently downgraded.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleViewer, RoleCommenter, RoleEditor, RoleOwner:
		return Role(raw), true
	default:
		return "", false
	}
}
