package principal

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/tmalira/shule/core"
)

var (
	// errors
	ErrNotFound               = errors.New("principal not found")
	ErrEmailTaken             = errors.New("a principal with this email already exists")
	ErrCodeTaken              = errors.New("a principal with this code already exists")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAccountNotActive       = errors.New("account is not active")
	ErrInvalidCurrentPassword = errors.New("current password is incorrect")
)

// codeRetries bounds the regenerate-and-retry loop on external code
// collisions.
const codeRetries = 3

type (
	// GetFilter selects a single live principal by ID, or by email optionally
	// scoped to a role.
	GetFilter struct {
		ID    string
		Email string
		Role  Role
	}

	// QueryFilter applies an AND of its set fields. Search does a
	// case-insensitive match on name, email or code.
	QueryFilter struct {
		Search      string    `query:"search"`
		Roles       []Role    `query:"role"`
		Statuses    []Status  `query:"status"`
		CreatedFrom time.Time `query:"created_from"`
		CreatedTo   time.Time `query:"created_to"`
	}

	// Repository is the credential store. All queries exclude soft-deleted
	// principals. CreatePrincipal must rely on storage-level unique
	// constraints and report ErrEmailTaken / ErrCodeTaken on violation.
	Repository interface {
		CreatePrincipal(ctx context.Context, p Principal) (Principal, error)
		GetPrincipal(ctx context.Context, filter GetFilter) (Principal, error)
		QueryPrincipals(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Principal, error)
		UpdatePasswordHash(ctx context.Context, id string, hash []byte, at time.Time) error
		UpdateLastLogin(ctx context.Context, id string, at time.Time) error
		SoftDeletePrincipals(ctx context.Context, ids ...string) (int, error)
	}

	// ServiceInterface exists so API handlers can be tested against fakes.
	ServiceInterface interface {
		Register(ctx context.Context, role Role, np NewPrincipal) (Principal, error)
		Authenticate(ctx context.Context, email, password string, role Role) (Principal, error)
		GetByID(ctx context.Context, id string) (Principal, error)
		ChangePassword(ctx context.Context, id, current, newPwd string) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetPrincipalPassword) error
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Principal, error)
		SoftDelete(ctx context.Context, ids ...string) error
	}

	Service struct {
		conf    *core.Config
		repo    Repository
		mailSvc core.EmailService
		logger  core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(conf *core.Config, repo Repository, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{
		conf:    conf,
		repo:    repo,
		mailSvc: mailSvc,
		logger:  logger,
	}
}

// Register creates a new active principal of the given role and persists it
// with a hashed password. Email uniqueness is enforced by the store; a code
// collision is retried with a fresh code.
func (svc *Service) Register(ctx context.Context, role Role, np NewPrincipal) (Principal, error) {
	if !role.Valid() {
		return Principal{}, errors.Errorf("unknown role %q", role)
	}

	now := time.Now().UTC()
	p := Principal{
		ID:        uuid.New().String(),
		FirstName: np.FirstName,
		LastName:  np.LastName,
		Email:     np.Email,
		Phone:     null.NewString(np.Phone, np.Phone != ""),
		Role:      role,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if role == RoleStudent {
		if np.DateOfBirth != "" {
			dob, err := time.Parse(dateLayout, np.DateOfBirth)
			if err != nil {
				return Principal{}, core.NewValidationError(err, core.FieldError{Field: "dateOfBirth", Error: "invalid date"})
			}
			p.DateOfBirth = null.TimeFrom(dob)
		}
		p.Address = null.NewString(np.Address, np.Address != "")
		p.ParentName = null.NewString(np.ParentName, np.ParentName != "")
		p.ParentEmail = null.NewString(np.ParentEmail, np.ParentEmail != "")
		p.ParentPhone = null.NewString(np.ParentPhone, np.ParentPhone != "")
		p.EnrollmentDate = null.TimeFrom(now)
	}
	if err := p.SetPassword(np.Password, svc.conf.BcryptCost); err != nil {
		return Principal{}, errors.Wrap(err, "setting password")
	}

	var created Principal
	var err error
	for attempt := 0; attempt < codeRetries; attempt++ {
		p.Code = NewCode(role)
		if created, err = svc.repo.CreatePrincipal(ctx, p); errors.Cause(err) != ErrCodeTaken {
			break
		}
	}
	if err != nil {
		if errors.Cause(err) == ErrEmailTaken {
			return Principal{}, ErrEmailTaken
		}
		return Principal{}, errors.Wrap(err, "creating principal")
	}
	return created, nil
}

// Authenticate checks the credentials of a principal scoped to a role and
// records the login time. An admin lookup miss falls through to super admins
// so both sign in through the same door. Lookup misses and password mismatches
// are reported identically to avoid account enumeration.
func (svc *Service) Authenticate(ctx context.Context, email, password string, role Role) (Principal, error) {
	email = core.CleanString(email, true /* lower */)
	p, err := svc.repo.GetPrincipal(ctx, GetFilter{Email: email, Role: role})
	if err != nil && errors.Cause(err) == ErrNotFound && role == RoleAdmin {
		p, err = svc.repo.GetPrincipal(ctx, GetFilter{Email: email, Role: RoleSuperAdmin})
	}
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, errors.Wrap(err, "finding principal by email")
	}
	if !p.IsActive() {
		return Principal{}, ErrAccountNotActive
	}
	if err = p.CheckPassword(password); err != nil {
		return Principal{}, ErrInvalidCredentials
	}

	// best effort; a failed last-login write must not fail the login
	now := time.Now().UTC()
	if err = svc.repo.UpdateLastLogin(ctx, p.ID, now); err != nil {
		svc.logger.Warn("updating last login", errors.Wrap(err, "updating last login"), p)
	} else {
		p.LastLogin = null.TimeFrom(now)
	}
	return p, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Principal, error) {
	return svc.repo.GetPrincipal(ctx, GetFilter{ID: id})
}

// ChangePassword verifies the current password before re-hashing and storing
// the new one. Outstanding bearer tokens remain valid until expiry.
func (svc *Service) ChangePassword(ctx context.Context, id, current, newPwd string) error {
	p, err := svc.repo.GetPrincipal(ctx, GetFilter{ID: id})
	if err != nil {
		return err
	}
	if err = p.CheckPassword(current); err != nil {
		return ErrInvalidCurrentPassword
	}
	hash, err := HashPassword(newPwd, svc.conf.BcryptCost)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return svc.repo.UpdatePasswordHash(ctx, p.ID, hash, time.Now().UTC())
}

// RequestPasswordReset emails a reset link to the owner of the given email,
// if an active account exists for it.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	p, err := svc.repo.GetPrincipal(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if !p.IsActive() {
		return ErrNotFound
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: p.FullName(), Address: p.Email}},
		Subject:      "Password reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			FullName, UID, Token string
		}{
			FullName: p.FullName(),
			UID:      EncodeUID(p),
			Token:    MakeResetToken(p, []byte(svc.conf.SecretKey)),
		},
		FrontendBaseURL: svc.conf.FrontendBaseURL,
	})
	return nil
}

// ResetPassword completes an emailed reset: the token must verify against the
// principal's current state and the reset window.
func (svc *Service) ResetPassword(ctx context.Context, rp ResetPrincipalPassword) error {
	id, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "uid", Error: errInvalidResetToken.Error()})
	}
	p, err := svc.repo.GetPrincipal(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "uid", Error: errInvalidResetToken.Error()})
		}
		return errors.Wrap(err, "finding principal by ID")
	}
	if err = verifyResetToken(p, rp.Token, []byte(svc.conf.SecretKey), svc.conf.PasswordResetTimeoutDelta); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
	}
	hash, err := HashPassword(rp.Password, svc.conf.BcryptCost)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return svc.repo.UpdatePasswordHash(ctx, p.ID, hash, time.Now().UTC())
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Principal, error) {
	return svc.repo.QueryPrincipals(ctx, filter, ordering)
}

// SoftDelete marks principals deleted; their emails and codes become
// claimable again.
func (svc *Service) SoftDelete(ctx context.Context, ids ...string) error {
	cnt, err := svc.repo.SoftDeletePrincipals(ctx, ids...)
	if err != nil {
		return errors.Wrap(err, "soft-deleting principals")
	}
	if cnt == 0 {
		return ErrNotFound
	}
	return nil
}
