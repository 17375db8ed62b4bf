package rbac

type Role string
type Action string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
	ActionAdmin  Action = "admin"
)

// Can reports whether role may perform action on a resource; owner tells
// whether the caller owns it. Admins may do anything, users only act on
// their own files.
func Can(role Role, action Action, owner bool) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleUser:
		switch action {
		case ActionRead, ActionWrite, ActionDelete, ActionExport:
			return owner
		}
		return false
	default:
		return false
	}
}

// CanUseTemplate applies the template visibility rule: admins use any
// active template, users the public and shared ones and their own.
func CanUseTemplate(role Role, visibility string, owner bool) bool {
	if role == RoleAdmin || owner {
		return true
	}
	return visibility == "public" || visibility == "shared"
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleUser, RoleAdmin:
		return Role(role)
	default:
		return RoleUser
	}
}
