package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tmalira/shule/core/auth"
	"github.com/tmalira/shule/core/principal"
)

const (
	contextClaimsKey    = "claims"
	contextPrincipalKey = "principal"

	bearerPrefix = "Bearer "
)

// extractBearerToken pulls the raw token out of the Authorization header.
func extractBearerToken(ctx echo.Context) (string, error) {
	header := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" || !strings.HasPrefix(header, bearerPrefix) {
		return "", errMissingToken
	}
	return header[len(bearerPrefix):], nil
}

// getContextClaims returns the claims attached by the auth middleware.
func getContextClaims(ctx echo.Context) (auth.Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(auth.Claims); ok {
		return claims, nil
	}
	return auth.Claims{}, errUnauthenticated
}

// getContextPrincipal loads the principal behind the context claims, caching
// it on the context for the rest of the request.
func getContextPrincipal(ctx echo.Context, svc principal.ServiceInterface) (principal.Principal, error) {
	if p, ok := ctx.Get(contextPrincipalKey).(principal.Principal); ok {
		return p, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return principal.Principal{}, err
	}

	p, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return principal.Principal{}, errors.Wrap(err, "finding principal by ID")
	}
	ctx.Set(contextPrincipalKey, p)
	return p, nil
}
