package rbac

type Role string
type Action string

const (
	RoleNone   Role = ""
	RoleMember Role = "member"
	RoleOwner  Role = "owner"
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionReview Action = "review"
	ActionManage Action = "manage"
)

// Can reports whether a project role permits the action. Reviewing covers
// applying and rejecting the caller's own proposals.
func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleMember:
		return action == ActionRead || action == ActionWrite || action == ActionReview
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleOwner:
		return Role(role)
	default:
		return RoleNone
	}
}
