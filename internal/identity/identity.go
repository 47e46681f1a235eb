package identity

import (
	"fmt"
	"time"
)

// RoleKind is the persisted name of a role.
type RoleKind string

const (
	KindAdmin          RoleKind = "ADMIN"
	KindDepartmentUser RoleKind = "DEPARTMENT_USER"
	KindViewer         RoleKind = "VIEWER"
)

// Role is a closed set: Admin, DepartmentUser or Viewer. The unexported
// method keeps other packages from adding variants, so a type switch over
// these three cases plus a denying default covers every role.
type Role interface {
	Kind() RoleKind
	isRole()
}

// Admin is the BCM manager role with access to every department.
type Admin struct{}

// DepartmentUser manages the risks of exactly one department. An empty
// Department means the user has not been assigned one yet.
type DepartmentUser struct {
	Department string
}

// Viewer is the read-only auditor role.
type Viewer struct{}

func (Admin) Kind() RoleKind          { return KindAdmin }
func (DepartmentUser) Kind() RoleKind { return KindDepartmentUser }
func (Viewer) Kind() RoleKind         { return KindViewer }

func (Admin) isRole()          {}
func (DepartmentUser) isRole() {}
func (Viewer) isRole()         {}

// NewRole builds a role from its persisted form. The department is kept only
// for DepartmentUser.
func NewRole(kind RoleKind, department string) (Role, error) {
	switch kind {
	case KindAdmin:
		return Admin{}, nil
	case KindDepartmentUser:
		return DepartmentUser{Department: department}, nil
	case KindViewer:
		return Viewer{}, nil
	default:
		return nil, fmt.Errorf("unknown role %q", kind)
	}
}

// Identity is the read-only view of a user that the policy engine consumes.
type Identity struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"-"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Department returns the department reference of a DepartmentUser. It reports
// false for every other role and for an unassigned DepartmentUser.
func (i Identity) Department() (string, bool) {
	if du, ok := i.Role.(DepartmentUser); ok && du.Department != "" {
		return du.Department, true
	}
	return "", false
}

// RoleKind returns the role name, or "" for an identity without a role.
func (i Identity) RoleKind() RoleKind {
	if i.Role == nil {
		return ""
	}
	return i.Role.Kind()
}

// IsAdmin reports whether the identity holds the Admin role.
func (i Identity) IsAdmin() bool {
	_, ok := i.Role.(Admin)
	return ok
}
