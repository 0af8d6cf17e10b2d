package domain

// Role is the closed set of console roles. Server responses carrying a role
// outside this set are mapped to RoleNone rather than propagated as free text.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleEmployee   Role = "EMPLOYEE"
	RoleFPOAdmin   Role = "FPO_ADMIN"

	// RoleNone is the no-access variant assigned to unknown roles.
	RoleNone Role = ""
)

// ParseRole maps a server-provided role string onto the closed role set.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleSuperAdmin, RoleAdmin, RoleEmployee, RoleFPOAdmin:
		return Role(s)
	default:
		return RoleNone
	}
}

// User account statuses as reported by the platform.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
	StatusPending  = "PENDING"
)

// CachedUser is the user record persisted alongside the bearer token. It
// exists if and only if a credential exists; the two are written and cleared
// together.
type CachedUser struct {
	UserName            string `json:"user_name"`
	Name                string `json:"name"`
	Email               string `json:"email"`
	Role                Role   `json:"role"`
	Status              string `json:"status"`
	ForcePasswordChange bool   `json:"force_password_change"`
}

// HasRole checks for an exact, case-sensitive role match.
func (u *CachedUser) HasRole(role Role) bool {
	return u != nil && u.Role == role
}
