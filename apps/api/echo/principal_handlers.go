package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tmalira/shule/core/principal"
)

type principalApi struct {
	svc principal.ServiceInterface
}

func registerPrincipalAPI(g *echo.Group, jwt echo.MiddlewareFunc, api principalApi) {
	pg := g.Group("/principals", jwt)

	adminOnly := roleMiddleware(principal.RoleAdmin, principal.RoleSuperAdmin)
	pg.GET("", api.query, adminOnly)
	pg.GET("/:id", api.retrieve, selfOrAdminMiddleware(api.svc))
	pg.DELETE("/:id", api.delete, adminOnly)
}

// Handlers

func (api *principalApi) query(ctx echo.Context) error {
	var filter principal.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	var ordering Ordering
	ordering.Bind(ctx)

	principals, err := api.svc.Query(ctx.Request().Context(), &filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying principals")
	}
	return okResponse(ctx, http.StatusOK, "Principals retrieved successfully", principals)
}

func (api *principalApi) retrieve(ctx echo.Context) error {
	p, ok := ctx.Get("object").(principal.Principal)
	if !ok {
		return errHTTPNotFound
	}
	return okResponse(ctx, http.StatusOK, "Principal retrieved successfully", p)
}

func (api *principalApi) delete(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	id := ctx.Param("id")
	if id == claims.Subject {
		return errForbidden // admins cannot delete themselves
	}

	if err := api.svc.SoftDelete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "soft-deleting principal")
	}
	return okResponse(ctx, http.StatusOK, "Principal deleted successfully", nil)
}
