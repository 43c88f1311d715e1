package principal_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tmalira/shule/core"
	"github.com/tmalira/shule/core/principal"
	emailsvc "github.com/tmalira/shule/services/email"
	dummydb "github.com/tmalira/shule/storage/database/dummy"
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Warn(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Fatal(msg string, args ...interface{}) {}

func testConfig() *core.Config {
	return &core.Config{
		AppName:                   "Shule",
		SecretKey:                 "secret",
		BcryptCost:                bcrypt.MinCost,
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          "noreply@test.cd",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	}
}

func setup(t *testing.T) (*principal.Service, principal.Repository, *emailsvc.ConsoleServiceMock) {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed, %v", err)
	}
	repo := dummydb.NewPrincipalRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(testConfig())
	svc := principal.NewService(testConfig(), repo, mailSvc, nopLogger{})
	return svc, repo, mailSvc
}

func register(t *testing.T, svc *principal.Service, role principal.Role, email string) principal.Principal {
	t.Helper()

	p, err := svc.Register(context.Background(), role, principal.NewPrincipal{
		FirstName: "Test",
		LastName:  strings.Title(string(role)),
		Email:     email,
		Password:  "s3cr3t!pwd",
	})
	if err != nil {
		t.Fatalf("Register() failed, %v", err)
	}
	return p
}

func TestService_Register(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, principal.RoleStudent, principal.NewPrincipal{
		FirstName:   "Hero",
		LastName:    "Solo",
		Email:       "hero@test.cd",
		Password:    "s3cr3t!pwd",
		DateOfBirth: "2010-04-02",
		Address:     "12 Main St",
		ParentName:  "Han Solo",
		ParentEmail: "han@test.cd",
	})
	if err != nil {
		t.Fatalf("Register() failed, %v", err)
	}
	if p.ID == "" {
		t.Error("Register() did not assign an ID")
	}
	if !strings.HasPrefix(p.Code, "STU-") {
		t.Errorf("Code = %q, want STU- prefix", p.Code)
	}
	if p.Status != principal.StatusActive {
		t.Errorf("Status = %v, want %v", p.Status, principal.StatusActive)
	}
	if !p.DateOfBirth.Valid || p.DateOfBirth.Time.Format("2006-01-02") != "2010-04-02" {
		t.Errorf("DateOfBirth = %v, want 2010-04-02", p.DateOfBirth)
	}
	if !p.EnrollmentDate.Valid {
		t.Error("Register() did not stamp the enrollment date")
	}
	if err = p.CheckPassword("s3cr3t!pwd"); err != nil {
		t.Errorf("CheckPassword() failed, %v", err)
	}

	// teachers carry no student attributes even when supplied
	tchr, err := svc.Register(ctx, principal.RoleTeacher, principal.NewPrincipal{
		FirstName: "Tea",
		LastName:  "Cher",
		Email:     "tea@test.cd",
		Password:  "s3cr3t!pwd",
		Address:   "ignored",
	})
	if err != nil {
		t.Fatalf("Register() failed, %v", err)
	}
	if !strings.HasPrefix(tchr.Code, "TCH-") {
		t.Errorf("Code = %q, want TCH- prefix", tchr.Code)
	}
	if tchr.Address.Valid || tchr.EnrollmentDate.Valid {
		t.Error("Register() set student attributes on a teacher")
	}

	// unknown roles are rejected before touching the store
	if _, err = svc.Register(ctx, "lol", principal.NewPrincipal{Email: "x@test.cd", Password: "s3cr3t!pwd"}); err == nil {
		t.Error("Register() accepted an unknown role")
	}
}

func TestService_Register_duplicateEmail(t *testing.T) {
	svc, _, _ := setup(t)

	register(t, svc, principal.RoleStudent, "dup@test.cd")

	_, err := svc.Register(context.Background(), principal.RoleTeacher, principal.NewPrincipal{
		FirstName: "Other",
		LastName:  "One",
		Email:     "dup@test.cd",
		Password:  "s3cr3t!pwd",
	})
	if err != principal.ErrEmailTaken {
		t.Errorf("Register() error = %v, want %v", err, principal.ErrEmailTaken)
	}
}

func TestService_Authenticate(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	register(t, svc, principal.RoleStudent, "hero@test.cd")

	p, err := svc.Authenticate(ctx, "Hero@Test.CD", "s3cr3t!pwd", principal.RoleStudent)
	if err != nil {
		t.Fatalf("Authenticate() failed, %v", err)
	}
	if !p.LastLogin.Valid {
		t.Error("Authenticate() did not record the login time")
	}

	// wrong password and unknown email look identical to the caller
	if _, err = svc.Authenticate(ctx, "hero@test.cd", "wrong", principal.RoleStudent); err != principal.ErrInvalidCredentials {
		t.Errorf("Authenticate() error = %v, want %v", err, principal.ErrInvalidCredentials)
	}
	if _, err = svc.Authenticate(ctx, "nobody@test.cd", "s3cr3t!pwd", principal.RoleStudent); err != principal.ErrInvalidCredentials {
		t.Errorf("Authenticate() error = %v, want %v", err, principal.ErrInvalidCredentials)
	}

	// a student cannot sign in through the teacher door
	if _, err = svc.Authenticate(ctx, "hero@test.cd", "s3cr3t!pwd", principal.RoleTeacher); err != principal.ErrInvalidCredentials {
		t.Errorf("Authenticate() error = %v, want %v", err, principal.ErrInvalidCredentials)
	}
}

func TestService_Authenticate_inactiveAccounts(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	for _, status := range []principal.Status{principal.StatusInactive, principal.StatusSuspended, principal.StatusGraduated} {
		t.Run(string(status), func(t *testing.T) {
			email := string(status) + "@test.cd"
			p := principal.Principal{
				ID:        string(status) + "-id",
				Code:      principal.NewCode(principal.RoleStudent),
				FirstName: "Not",
				LastName:  "Active",
				Email:     email,
				Role:      principal.RoleStudent,
				Status:    status,
			}
			if err := p.SetPassword("s3cr3t!pwd", bcrypt.MinCost); err != nil {
				t.Fatalf("SetPassword() failed, %v", err)
			}
			if _, err := repo.CreatePrincipal(ctx, p); err != nil {
				t.Fatalf("CreatePrincipal() failed, %v", err)
			}

			if _, err := svc.Authenticate(ctx, email, "s3cr3t!pwd", principal.RoleStudent); err != principal.ErrAccountNotActive {
				t.Errorf("Authenticate() error = %v, want %v", err, principal.ErrAccountNotActive)
			}
		})
	}
}

func TestService_Authenticate_adminFallsThroughToSuperAdmin(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	register(t, svc, principal.RoleSuperAdmin, "root@test.cd")

	p, err := svc.Authenticate(ctx, "root@test.cd", "s3cr3t!pwd", principal.RoleAdmin)
	if err != nil {
		t.Fatalf("Authenticate() failed, %v", err)
	}
	if p.Role != principal.RoleSuperAdmin {
		t.Errorf("Role = %v, want %v", p.Role, principal.RoleSuperAdmin)
	}

	// the fallback only runs for the admin door
	if _, err = svc.Authenticate(ctx, "root@test.cd", "s3cr3t!pwd", principal.RoleTeacher); err != principal.ErrInvalidCredentials {
		t.Errorf("Authenticate() error = %v, want %v", err, principal.ErrInvalidCredentials)
	}
}

func TestService_ChangePassword(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	p := register(t, svc, principal.RoleTeacher, "tea@test.cd")

	if err := svc.ChangePassword(ctx, p.ID, "wrong", "n3w!s3cr3t"); err != principal.ErrInvalidCurrentPassword {
		t.Errorf("ChangePassword() error = %v, want %v", err, principal.ErrInvalidCurrentPassword)
	}
	stored, err := repo.GetPrincipal(ctx, principal.GetFilter{ID: p.ID})
	if err != nil {
		t.Fatalf("GetPrincipal() failed, %v", err)
	}
	if !bytes.Equal(stored.PasswordHash, p.PasswordHash) {
		t.Error("a rejected change still replaced the stored hash")
	}

	if err = svc.ChangePassword(ctx, p.ID, "s3cr3t!pwd", "n3w!s3cr3t"); err != nil {
		t.Fatalf("ChangePassword() failed, %v", err)
	}
	stored, err = repo.GetPrincipal(ctx, principal.GetFilter{ID: p.ID})
	if err != nil {
		t.Fatalf("GetPrincipal() failed, %v", err)
	}
	if err = stored.CheckPassword("n3w!s3cr3t"); err != nil {
		t.Errorf("CheckPassword() failed after change, %v", err)
	}
}

func TestService_passwordResetFlow(t *testing.T) {
	svc, repo, mailSvc := setup(t)
	ctx := context.Background()

	p := register(t, svc, principal.RoleStudent, "hero@test.cd")

	if err := svc.RequestPasswordReset(ctx, "Hero@Test.CD"); err != nil {
		t.Fatalf("RequestPasswordReset() failed, %v", err)
	}
	sent := mailSvc.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(sent))
	}
	body := sent[0].TextContent
	if !strings.Contains(body, "http://localhost:3000/password-reset/") {
		t.Fatalf("mail body carries no reset link:\n%s", body)
	}

	// pull uid & token out of the reset link
	link := body[strings.Index(body, "http://localhost:3000/password-reset/"):]
	link = strings.Fields(link)[0]
	parts := strings.Split(strings.TrimPrefix(link, "http://localhost:3000/password-reset/"), "/")
	if len(parts) != 2 {
		t.Fatalf("unexpected reset link %q", link)
	}
	uid, token := parts[0], parts[1]

	err := svc.ResetPassword(ctx, principal.ResetPrincipalPassword{
		UID:             uid,
		Token:           token,
		Password:        "n3w!s3cr3t",
		PasswordConfirm: "n3w!s3cr3t",
	})
	if err != nil {
		t.Fatalf("ResetPassword() failed, %v", err)
	}
	stored, err := repo.GetPrincipal(ctx, principal.GetFilter{ID: p.ID})
	if err != nil {
		t.Fatalf("GetPrincipal() failed, %v", err)
	}
	if err = stored.CheckPassword("n3w!s3cr3t"); err != nil {
		t.Errorf("CheckPassword() failed after reset, %v", err)
	}

	// the token is single-use: it was bound to the old hash
	err = svc.ResetPassword(ctx, principal.ResetPrincipalPassword{
		UID:             uid,
		Token:           token,
		Password:        "an0ther!pwd",
		PasswordConfirm: "an0ther!pwd",
	})
	if _, ok := err.(*core.ValidationError); !ok {
		t.Errorf("ResetPassword() error = %v, want a validation error", err)
	}
}

func TestService_passwordResetRejectsGarbage(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	register(t, svc, principal.RoleStudent, "hero@test.cd")

	tests := []struct {
		name string
		rp   principal.ResetPrincipalPassword
	}{
		{name: "bad uid", rp: principal.ResetPrincipalPassword{UID: "%%%", Token: "x-y", Password: "n3w!s3cr3t", PasswordConfirm: "n3w!s3cr3t"}},
		{name: "unknown uid", rp: principal.ResetPrincipalPassword{UID: "bm9wZQ", Token: "x-y", Password: "n3w!s3cr3t", PasswordConfirm: "n3w!s3cr3t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ResetPassword(ctx, tt.rp)
			if _, ok := err.(*core.ValidationError); !ok {
				t.Errorf("ResetPassword() error = %v, want a validation error", err)
			}
		})
	}
}

func TestService_SoftDelete(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	p := register(t, svc, principal.RoleStudent, "hero@test.cd")

	if err := svc.SoftDelete(ctx, p.ID); err != nil {
		t.Fatalf("SoftDelete() failed, %v", err)
	}
	if _, err := svc.GetByID(ctx, p.ID); err != principal.ErrNotFound {
		t.Errorf("GetByID() error = %v, want %v", err, principal.ErrNotFound)
	}

	// the email is claimable again
	register(t, svc, principal.RoleStudent, "hero@test.cd")

	if err := svc.SoftDelete(ctx, "nope"); err != principal.ErrNotFound {
		t.Errorf("SoftDelete() error = %v, want %v", err, principal.ErrNotFound)
	}
}

func TestService_Query(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	hero := register(t, svc, principal.RoleStudent, "hero@test.cd")
	register(t, svc, principal.RoleTeacher, "tea@test.cd")
	register(t, svc, principal.RoleAdmin, "boss@test.cd")

	all, err := svc.Query(ctx, nil, nil)
	if err != nil {
		t.Fatalf("Query() failed, %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Query() returned %d principals, want 3", len(all))
	}

	students, err := svc.Query(ctx, &principal.QueryFilter{Roles: []principal.Role{principal.RoleStudent}}, nil)
	if err != nil {
		t.Fatalf("Query() failed, %v", err)
	}
	if len(students) != 1 || students[0].ID != hero.ID {
		t.Errorf("Query(role=student) = %v, want just %q", students, hero.ID)
	}

	none, err := svc.Query(ctx, &principal.QueryFilter{Search: "lol"}, nil)
	if err != nil {
		t.Fatalf("Query() failed, %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Query(search=lol) returned %d principals, want 0", len(none))
	}
}
