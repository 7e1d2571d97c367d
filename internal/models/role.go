package models

import "fmt"

// Role is the closed set of principal kinds known to the system. Route
// access maps and the authorization middleware are keyed by this type
// instead of free-form strings.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDirector  Role = "director"
	RoleTeacher   Role = "teacher"
	RoleStudent   Role = "student"
	RoleParent    Role = "parent"
	RoleHR        Role = "hr"
	RoleDoctor    Role = "doctor"
	RoleAdmission Role = "admission"
	RoleStaff     Role = "staff"

	// RoleAny matches any authenticated principal in route rules.
	RoleAny Role = "*"
)

var allRoles = map[Role]struct{}{
	RoleAdmin:     {},
	RoleDirector:  {},
	RoleTeacher:   {},
	RoleStudent:   {},
	RoleParent:    {},
	RoleHR:        {},
	RoleDoctor:    {},
	RoleAdmission: {},
	RoleStaff:     {},
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := allRoles[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) String() string { return string(r) }
