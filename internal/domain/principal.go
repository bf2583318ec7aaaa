package domain

// Role is an explicit tag on every principal. It is carried in the access
// token claims and is never inferred from other fields.
type Role string

const (
	RoleOwner Role = "owner"
	RoleGuard Role = "guard"
	RoleAdmin Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleOwner, RoleGuard, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

// Principal is the authenticated caller as seen by the core: an opaque id,
// a role, and the flat the principal resides in (empty for guards and
// admins).
type Principal struct {
	ID     string
	Role   Role
	FlatID string
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
