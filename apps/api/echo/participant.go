package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core/moodle"
	"github.com/syaifulazham/techlympics/core/participant"
)

type participantApi struct {
	svc      participant.Service
	moodle   moodle.Service
	validate *validator.Validate
}

func registerParticipantAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc participant.Service,
	moodleSvc moodle.Service,
	validate *validator.Validate,
) {
	api := participantApi{
		svc:      svc,
		moodle:   moodleSvc,
		validate: validate,
	}

	pg := g.Group("/participants", jwt, rolesMiddleware(readRoles...))
	write := rolesMiddleware(writeRoles...)

	pg.GET("/contingents", api.queryContingents)
	pg.GET("/contingents/:id", api.retrieveContingent)
	pg.GET("/contingents/:id/teams", api.contingentTeams)
	pg.GET("/contingents/:id/contestants", api.queryContestants)

	pg.GET("/teams/:id", api.retrieveTeam)
	pg.POST("/teams/:id/moodle", api.createMoodleAccounts, write)

	pg.POST("/contestants", api.createContestant, write)
	pg.GET("/contestants/:id", api.retrieveContestant)
	pg.PUT("/contestants/:id", api.updateContestant, write)
	pg.DELETE("/contestants/:id", api.destroyContestant, write)
}

func (api *participantApi) queryContingents(ctx echo.Context) error {
	filter := new(participant.ContingentFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to ContingentFilter")
	}

	items, page, err := api.svc.QueryContingents(ctx.Request().Context(), filter, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "querying contingents")
	}
	if items == nil {
		items = []participant.Contingent{}
	}
	return ctx.JSON(http.StatusOK, PageResponse{Data: items, Pagination: page})
}

func (api *participantApi) retrieveContingent(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	detail, err := api.svc.GetContingent(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting contingent")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *participantApi) contingentTeams(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	teams, err := api.svc.ContingentTeams(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "loading contingent teams")
	}
	if teams == nil {
		teams = []participant.Team{}
	}
	return ctx.JSON(http.StatusOK, teams)
}

func (api *participantApi) queryContestants(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	filter := new(participant.ContestantFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to ContestantFilter")
	}

	items, page, err := api.svc.QueryContestants(ctx.Request().Context(), id, filter, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "querying contestants")
	}
	if items == nil {
		items = []participant.Contestant{}
	}
	return ctx.JSON(http.StatusOK, PageResponse{Data: items, Pagination: page})
}

func (api *participantApi) retrieveTeam(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	team, err := api.svc.GetTeam(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting team")
	}
	return ctx.JSON(http.StatusOK, team)
}

// createMoodleAccounts makes sure every member of the team with an email owns a Moodle account.
func (api *participantApi) createMoodleAccounts(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	res, err := api.moodle.EnsureTeamAccounts(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "creating moodle accounts")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *participantApi) createContestant(ctx echo.Context) error {
	var data participant.NewContestant
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewContestant")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.CreateContestant(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating contestant")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *participantApi) retrieveContestant(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	c, err := api.svc.GetContestant(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting contestant")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *participantApi) updateContestant(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data participant.UpdateContestant
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateContestant")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.UpdateContestant(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating contestant")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *participantApi) destroyContestant(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteContestant(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting contestant")
	}
	return ctx.NoContent(http.StatusNoContent)
}
