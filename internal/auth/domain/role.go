package domain

import "strings"

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
)

// ParseRole maps a stored or submitted value onto a Role. Unknown values
// become RoleViewer, the least privileged role.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleUser:
		return RoleUser
	default:
		return RoleViewer
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleViewer:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

func (r Role) CanEditEntries() bool {
	return r == RoleAdmin || r == RoleUser
}

func (r Role) CanManageUsers() bool {
	return r == RoleAdmin
}

func (r Role) CanManageLicense() bool {
	return r == RoleAdmin
}

func (r Role) CanViewReports() bool {
	return r.Valid()
}
