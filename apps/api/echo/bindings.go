package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/syaifulazham/techlympics/core"
)

var (
	orderingParam = "ordering"
	pageParam     = "page"
	pageSizeParam = "pageSize"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

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
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindPagination reads the page and pageSize query params. Invalid values fall back to the defaults.
func bindPagination(ctx echo.Context) core.Pagination {
	var page core.Pagination
	page.Page, _ = strconv.Atoi(ctx.QueryParam(pageParam))
	page.PageSize, _ = strconv.Atoi(ctx.QueryParam(pageSizeParam))
	page.Clean()
	return page
}

// paramID reads a positive integer path param; anything else is not found.
func paramID(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil || id < 1 {
		return 0, errHttpNotFound
	}
	return id, nil
}

func queryBool(ctx echo.Context, name string) bool {
	b, _ := strconv.ParseBool(ctx.QueryParam(name))
	return b
}

type (
	PageResponse struct {
		Data       interface{} `json:"data"`
		Pagination core.Page   `json:"pagination"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)
