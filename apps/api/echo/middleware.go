package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tmalira/shule/core/auth"
	"github.com/tmalira/shule/core/principal"
)

// authMiddleware requires a valid bearer access token and attaches its claims
// to the context. Missing, expired and invalid tokens are rejected with
// distinguishable messages.
func authMiddleware(authn *auth.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token, err := extractBearerToken(ctx)
			if err != nil {
				return err
			}
			claims, err := authn.VerifyAccessToken(token)
			if err != nil {
				if errors.Cause(err) == auth.ErrTokenExpired {
					return errTokenExpired
				}
				return errInvalidToken
			}
			ctx.Set(contextClaimsKey, *claims)
			return next(ctx)
		}
	}
}

// optionalAuthMiddleware attaches claims when a valid token is presented and
// otherwise lets the request proceed unauthenticated; a bad credential is
// treated the same as no credential.
func optionalAuthMiddleware(authn *auth.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if token, err := extractBearerToken(ctx); err == nil {
				if claims, err := authn.VerifyAccessToken(token); err == nil {
					ctx.Set(contextClaimsKey, *claims)
				}
			}
			return next(ctx)
		}
	}
}

// roleMiddleware is the authorization gate: it lets a request through only
// when the authenticated principal's role is in the allowed set. It is pure;
// no I/O happens here.
func roleMiddleware(roles ...principal.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errUnauthenticated
			}
			for _, role := range roles {
				if claims.Role == role {
					return next(ctx)
				}
			}
			return errForbidden
		}
	}
}

// selfOrAdminMiddleware loads the principal addressed by the :id param and
// stores it under "object", but only for the principal themselves or an
// admin. Anyone else gets a 404 rather than a 403 to avoid leaking IDs.
func selfOrAdminMiddleware(svc principal.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errUnauthenticated
			}

			id := ctx.Param("id")
			isAdmin := claims.Role == principal.RoleAdmin || claims.Role == principal.RoleSuperAdmin
			if id == claims.Subject || isAdmin {
				if p, err := svc.GetByID(ctx.Request().Context(), id); err == nil {
					ctx.Set("object", p)
					return next(ctx)
				} else if errors.Cause(err) != principal.ErrNotFound {
					return errors.Wrap(err, "finding principal by ID")
				}
			}
			return errHTTPNotFound
		}
	}
}
