package domain

import "fmt"

// Role is the closed set of staff roles known to the platform.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleChiefStaff    Role = "chief_staff"
	RoleDoctor        Role = "doctor"
	RoleNurse         Role = "nurse"
	RoleLabTechnician Role = "lab_technician"
	RolePharmacist    Role = "pharmacist"
	RoleReceptionist  Role = "receptionist"
	RoleGeneralUser   Role = "general_user"
)

// roleRanks is the canonical privilege table. Lower rank = more privileged.
// Every rank comparison in the codebase goes through Rank/Outranks so the
// direction of the check cannot silently invert at a call site.
var roleRanks = map[Role]int{
	RoleAdmin:         1,
	RoleChiefStaff:    2,
	RoleDoctor:        3,
	RoleNurse:         4,
	RoleLabTechnician: 5,
	RolePharmacist:    6,
	RoleReceptionist:  7,
	RoleGeneralUser:   8,
}

// AllRoles returns every valid role.
func AllRoles() []Role {
	return []Role{
		RoleAdmin, RoleChiefStaff, RoleDoctor, RoleNurse,
		RoleLabTechnician, RolePharmacist, RoleReceptionist, RoleGeneralUser,
	}
}

// ParseRole validates a role string against the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleRanks[r]; !ok {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// Valid reports whether the role is a member of the closed set.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank returns the privilege rank (lower = more privileged). Unknown roles
// rank below general_user so a corrupted role string never gains access.
func (r Role) Rank() int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return roleRanks[RoleGeneralUser] + 1
}

// AtLeast reports whether r carries at least the privilege of required,
// i.e. rank(r) <= rank(required).
func (r Role) AtLeast(required Role) bool {
	return r.Rank() <= required.Rank()
}

// IsStaff reports whether the role is an authenticated staff role (anything
// above general_user).
func (r Role) IsStaff() bool {
	return r.Valid() && r != RoleGeneralUser
}
