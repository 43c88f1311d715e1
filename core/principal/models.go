package principal

import (
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"
)

// Role is the closed set of identities known to the system.
type Role string

const (
	RoleStudent    Role = "student"
	RoleTeacher    Role = "teacher"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var AllRoles = []Role{RoleStudent, RoleTeacher, RoleAdmin, RoleSuperAdmin}

// ParseRole maps an external role string to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleTeacher:
		return RoleTeacher, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleSuperAdmin:
		return RoleSuperAdmin, nil
	}
	return "", errors.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// CodePrefix is the prefix of the human-readable code handed out to a
// principal of this role.
func (r Role) CodePrefix() string {
	switch r {
	case RoleStudent:
		return "STU-"
	case RoleTeacher:
		return "TCH-"
	case RoleAdmin, RoleSuperAdmin:
		return "ADM-"
	}
	return "USR-"
}

// Status is the account lifecycle state. Only active principals may
// authenticate.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusGraduated Status = "graduated"
)

// ValidFor reports whether the status applies to the given role;
// "graduated" is a student-only state.
func (s Status) ValidFor(r Role) bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	case StatusGraduated:
		return r == RoleStudent
	}
	return false
}

// Principal is an authenticated identity: a student, teacher, admin or
// super admin. All roles share one shape; student-only attributes are
// nullable and unset for staff.
type Principal struct {
	ID           string      `json:"id"`
	Code         string      `json:"code"` // e.g. STU-934820471234
	FirstName    string      `json:"firstName"`
	LastName     string      `json:"lastName"`
	Email        string      `json:"email"`
	Phone        null.String `json:"phone"`
	Role         Role        `json:"role"`
	Status       Status      `json:"status"`
	PasswordHash []byte      `json:"-"`

	// student-only
	DateOfBirth    null.Time   `json:"dateOfBirth,omitempty"`
	Address        null.String `json:"address,omitempty"`
	ParentName     null.String `json:"parentName,omitempty"`
	ParentEmail    null.String `json:"parentEmail,omitempty"`
	ParentPhone    null.String `json:"parentPhone,omitempty"`
	EnrollmentDate null.Time   `json:"enrollmentDate,omitempty"`

	LastLogin null.Time `json:"lastLogin"`
	CreatedAt time.Time `json:"createdAt"` // UTC
	UpdatedAt time.Time `json:"updatedAt"` // UTC
	DeletedAt null.Time `json:"-"`
}

func (p Principal) FullName() string {
	return p.FirstName + " " + p.LastName
}

func (p Principal) IsActive() bool {
	return p.Status == StatusActive
}

// IsAdmin reports whether the principal holds any administrative role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSuperAdmin
}

// HashPassword produces a salted bcrypt digest of plain. The cost must lie
// within bcrypt's supported range.
func HashPassword(plain string, cost int) ([]byte, error) {
	if plain == "" {
		return nil, errors.New("password must not be empty")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return bcrypt.GenerateFromPassword([]byte(plain), cost)
}

func (p *Principal) SetPassword(pwd string, cost int) error {
	hash, err := HashPassword(pwd, cost)
	if err != nil {
		return err
	}
	p.PasswordHash = hash
	return nil
}

// CheckPassword compares pwd against the stored hash in constant time.
func (p *Principal) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(p.PasswordHash, []byte(pwd))
}
