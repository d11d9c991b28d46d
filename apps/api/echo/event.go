package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/event"
	"github.com/syaifulazham/techlympics/core/participant"
)

type eventApi struct {
	svc          event.Service
	participants participant.Service
}

func registerEventAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc event.Service, participants participant.Service) {
	api := eventApi{svc: svc, participants: participants}

	eg := g.Group("/organizer/events", jwt, rolesMiddleware(readRoles...))
	eg.GET("", api.query)
	eg.GET("/:eventId", api.retrieve)
	eg.GET("/:eventId/endlist", api.endlist)
	eg.GET("/:eventId/endlist/contingents", api.endlistContingents)
}

func (api *eventApi) query(ctx echo.Context) error {
	filter := new(event.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []event.Event{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	events, err := api.svc.List(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	if events == nil {
		events = []event.Event{}
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *eventApi) retrieve(ctx echo.Context) error {
	id, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	ev, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting event")
	}
	return ctx.JSON(http.StatusOK, ev)
}

// endlist pages through the teams registered for the event, with members and managers.
func (api *eventApi) endlist(ctx echo.Context) error {
	id, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	if _, err = api.svc.Get(rctx, id); err != nil {
		return errors.Wrap(err, "getting event")
	}

	page := bindPagination(ctx)
	total, err := api.participants.CountEndlist(rctx, id)
	if err != nil {
		return errors.Wrap(err, "counting endlist")
	}
	teams, err := api.participants.EndlistPage(rctx, id, page.PageSize, page.Offset())
	if err != nil {
		return errors.Wrap(err, "loading endlist")
	}
	if teams == nil {
		teams = []participant.EndlistTeam{}
	}
	return ctx.JSON(http.StatusOK, PageResponse{Data: teams, Pagination: core.NewPage(page, total)})
}

func (api *eventApi) endlistContingents(ctx echo.Context) error {
	id, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	if _, err = api.svc.Get(rctx, id); err != nil {
		return errors.Wrap(err, "getting event")
	}

	items, err := api.participants.EndlistContingents(rctx, id)
	if err != nil {
		return errors.Wrap(err, "loading endlist contingents")
	}
	if items == nil {
		items = []participant.EndlistContingent{}
	}
	return ctx.JSON(http.StatusOK, items)
}
