package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tmalira/shule/core"
	"github.com/tmalira/shule/core/auth"
	"github.com/tmalira/shule/core/principal"
)

type authApi struct {
	svc      principal.ServiceInterface
	authn    *auth.Authenticator
	validate *validator.Validate
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, api authApi) {
	ag := g.Group("/auth")

	// un-authed endpoints
	// TODO: rate limit `/login`, `/password-reset` & `/password-reset-confirm`
	ag.POST("/register/student", api.registerStudent)
	ag.POST("/register/teacher", api.registerTeacher)
	ag.POST("/login", api.login)
	ag.POST("/token-refresh", api.refreshToken)
	ag.POST("/password-reset", api.resetPassword)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	pg := ag.Group("", jwt)
	pg.POST("/register/admin", api.registerAdmin, roleMiddleware(principal.RoleAdmin, principal.RoleSuperAdmin))
	pg.GET("/profile", api.profile)
	pg.PUT("/password", api.changePassword)
	pg.POST("/logout", api.logout)
}

// Handlers

func (api *authApi) registerStudent(ctx echo.Context) error {
	return api.register(ctx, principal.RoleStudent, "Student registered successfully")
}

func (api *authApi) registerTeacher(ctx echo.Context) error {
	return api.register(ctx, principal.RoleTeacher, "Teacher registered successfully")
}

func (api *authApi) registerAdmin(ctx echo.Context) error {
	return api.register(ctx, principal.RoleAdmin, "Admin registered successfully")
}

func (api *authApi) register(ctx echo.Context, role principal.Role, message string) error {
	var data principal.NewPrincipal
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPrincipal")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.Register(ctx.Request().Context(), role, data)
	if err != nil {
		return errors.Wrap(err, "registering principal")
	}
	tokens, err := api.authn.IssueTokenPair(p)
	if err != nil {
		return errors.Wrap(err, "issuing token pair")
	}

	return okResponse(ctx, http.StatusCreated, message, AuthResponse{Principal: p, Tokens: tokens})
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	role, err := principal.ParseRole(data.UserType)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "userType", Error: "invalid user type"})
	}

	p, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password, role)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	tokens, err := api.authn.IssueTokenPair(p)
	if err != nil {
		return errors.Wrap(err, "issuing token pair")
	}

	return okResponse(ctx, http.StatusOK, "Login successful", AuthResponse{Principal: p, Tokens: tokens})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	var data RefreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	claims, err := api.authn.VerifyRefreshToken(data.RefreshToken)
	if err != nil {
		return err
	}

	// the principal must still exist and be active
	p, err := api.svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == principal.ErrNotFound {
			return errInvalidToken
		}
		return errors.Wrap(err, "finding principal by ID")
	}
	if !p.IsActive() {
		return errAccountNotActive
	}

	tokens, err := api.authn.IssueTokenPair(p)
	if err != nil {
		return errors.Wrap(err, "issuing token pair")
	}
	return okResponse(ctx, http.StatusOK, "Token refreshed successfully", AuthResponse{Principal: p, Tokens: tokens})
}

func (api *authApi) profile(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx, api.svc)
	if err != nil {
		return err
	}
	return okResponse(ctx, http.StatusOK, "Profile retrieved successfully", p)
}

func (api *authApi) changePassword(ctx echo.Context) error {
	var data principal.ChangePassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.ChangePassword(ctx.Request().Context(), claims.Subject, data.CurrentPassword, data.NewPassword); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return okResponse(ctx, http.StatusOK, "Password updated successfully", nil)
}

func (api *authApi) logout(ctx echo.Context) error {
	// tokens are stateless; the client discards them
	return okResponse(ctx, http.StatusOK, "Logout successful", nil)
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == principal.ErrNotFound) {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return okResponse(ctx, http.StatusOK,
		"If the email address supplied is associated with an active account on this system, "+
			"an email will arrive in your inbox shortly with instructions to reset your password.", nil)
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data principal.ResetPrincipalPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetPrincipalPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return okResponse(ctx, http.StatusOK, "Password has been reset with the new password.", nil)
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
		UserType string `json:"userType" validate:"required,oneof=student teacher admin"`
	}

	RefreshRequest struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	// AuthResponse is the payload of a successful registration, login or
	// refresh. The principal's password hash is never serialized.
	AuthResponse struct {
		Principal principal.Principal `json:"principal"`
		Tokens    auth.TokenPair      `json:"tokens"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
