package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	echoapi "github.com/tmalira/shule/apps/api/echo"
	"github.com/tmalira/shule/core"
	"github.com/tmalira/shule/core/auth"
	"github.com/tmalira/shule/core/principal"
	emailsvc "github.com/tmalira/shule/services/email"
	dummydb "github.com/tmalira/shule/storage/database/dummy"
)

var (
	app     echoapi.Server
	repo    principal.Repository
	authn   *auth.Authenticator
	mailSvc *emailsvc.ConsoleServiceMock
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Warn(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Fatal(msg string, args ...interface{}) {}

func testConfig() *core.Config {
	return &core.Config{
		TestMode:                  true,
		AppName:                   "Shule",
		SecretKey:                 "secret",
		BcryptCost:                bcrypt.MinCost,
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          "noreply@test.cd",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
	}
}

func TestMain(m *testing.M) {
	conf := testConfig()

	db, err := dummydb.Open()
	if err != nil {
		os.Exit(1)
	}
	repo = dummydb.NewPrincipalRepository(db)
	mailSvc = emailsvc.NewConsoleServiceMock(conf)
	svc := principal.NewService(conf, repo, mailSvc, nopLogger{})
	authn = auth.NewAuthenticator(conf)

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)

	app = echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        nopLogger{},
			PrincipalSvc:  svc,
			Authenticator: authn,
			Validate:      validate,
			Translator:    translator,
		},
	)

	os.Exit(m.Run())
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantMsg  string
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, p principal.Principal) string {
	t.Helper()

	token, err := authn.IssueAccessToken(p)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

// getExpiredToken signs with the shared secret but an expiry in the past.
func getExpiredToken(t *testing.T, p principal.Principal) string {
	t.Helper()

	conf := testConfig()
	conf.Server.JWTExpirationDelta = -time.Hour
	token, err := auth.NewAuthenticator(conf).IssueAccessToken(p)
	if err != nil {
		t.Fatalf("getExpiredToken(): %v", err)
	}
	return token
}

func createPrincipal(t *testing.T, role principal.Role, email string, status principal.Status) principal.Principal {
	t.Helper()

	p := principal.Principal{
		ID:        email + "|id",
		Code:      principal.NewCode(role),
		FirstName: "Test",
		LastName:  "Principal",
		Email:     email,
		Role:      role,
		Status:    status,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := p.SetPassword("s3cr3t!pwd", bcrypt.MinCost); err != nil {
		t.Fatalf("SetPassword() failed, %v", err)
	}
	created, err := repo.CreatePrincipal(context.Background(), p)
	if err != nil {
		t.Fatalf("CreatePrincipal() failed, %v", err)
	}
	return created
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()

	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj(): %v", err)
	}
	return data
}

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decodeEnvelope(): %v; body: %s", err, rec.Body.String())
	}
	return env
}

// checkCodeAndMessage asserts the status code and the envelope's message and
// success flag.
func checkCodeAndMessage(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body: %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if tt.wantMsg != "" && env.Message != tt.wantMsg {
		t.Errorf("failed! message = %q; wantMsg %q", env.Message, tt.wantMsg)
	}
	wantSuccess := tt.wantCode < 400
	if env.Success != wantSuccess {
		t.Errorf("failed! success = %v; want %v", env.Success, wantSuccess)
	}
	return env
}
