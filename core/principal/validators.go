package principal

import (
	"github.com/go-playground/validator/v10"

	"github.com/tmalira/shule/core"
)

const dateLayout = "2006-01-02"

// NewPrincipal contains the information needed to register a Principal.
// The student-only fields are ignored for staff roles.
type NewPrincipal struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	Phone     string `json:"phone" validate:"omitempty,phone"`

	// student-only
	DateOfBirth string `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	Address     string `json:"address"`
	ParentName  string `json:"parentName"`
	ParentEmail string `json:"parentEmail" validate:"omitempty,email"`
	ParentPhone string `json:"parentPhone" validate:"omitempty,phone"`
}

func (np *NewPrincipal) Validate(validate *validator.Validate) error {
	np.FirstName = core.CleanString(np.FirstName)
	np.LastName = core.CleanString(np.LastName)
	np.Email = core.CleanString(np.Email, true /* lower */)
	np.ParentEmail = core.CleanString(np.ParentEmail, true /* lower */)
	return validate.Struct(np)
}

// ChangePassword is the payload for a password change by an authenticated
// principal.
type ChangePassword struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

func (cp ChangePassword) Validate(validate *validator.Validate) error {
	return validate.Struct(cp)
}

// ResetPrincipalPassword is the payload confirming an emailed password reset.
type ResetPrincipalPassword struct {
	Token           string `json:"token" validate:"required"`
	UID             string `json:"uid" validate:"required"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (rp ResetPrincipalPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}
