package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tmalira/shule/core"
)

var orderingParam = "ordering"

// orderableFields whitelists what may appear in an "ordering" query param.
var orderableFields = map[string]bool{
	"code":       true,
	"first_name": true,
	"last_name":  true,
	"email":      true,
	"role":       true,
	"status":     true,
	"created_at": true,
	"last_login": true,
}

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses `ordering=field,-other` into DB orderings, dropping unknown
// fields.
func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if !orderableFields[field] {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}
