package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/attendance"
)

type (
	checkInApi struct {
		auth     *authenticator
		svc      attendance.Service
		validate *validator.Validate
	}

	AgentSessionResponse struct {
		Token     string              `json:"token"`
		ExpiresAt time.Time           `json:"expiresAt"`
		Endpoint  attendance.Endpoint `json:"endpoint"`
	}

	EndpointVerification struct {
		Valid    bool                `json:"valid"`
		Endpoint attendance.Endpoint `json:"endpoint"`
	}
)

// registerCheckInAPI registers the endpoints used by check-in stations. They are not user authenticated.
func registerCheckInAPI(g *echo.Group, auth *authenticator, svc attendance.Service, validate *validator.Validate) {
	api := checkInApi{
		auth:     auth,
		svc:      svc,
		validate: validate,
	}

	cg := g.Group("/attendance")
	cg.POST("/check-in", api.checkIn)
	cg.GET("/events/:eventId/endpoints/:endpointhash", api.verifyEndpoint)
	cg.POST("/agent/validate-passcode", api.validatePasscode)
	cg.POST("/agent/check-in", api.agentCheckIn, auth.agentMiddleware())
}

func (api *checkInApi) checkIn(ctx echo.Context) error {
	var data attendance.CheckInRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckInRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.CheckIn(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "checking in")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *checkInApi) verifyEndpoint(ctx echo.Context) error {
	eventID, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	kind := strings.ToUpper(core.CleanString(ctx.QueryParam("kind")))
	ep, err := api.svc.VerifyEndpoint(ctx.Request().Context(), eventID, core.CleanString(ctx.Param("endpointhash")), kind)
	if err != nil {
		return errors.Wrap(err, "verifying endpoint")
	}
	return ctx.JSON(http.StatusOK, EndpointVerification{Valid: true, Endpoint: ep})
}

// validatePasscode opens an agent session on the endpoint.
func (api *checkInApi) validatePasscode(ctx echo.Context) error {
	var data attendance.PasscodeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasscodeRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	ep, err := api.svc.ValidatePasscode(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "validating passcode")
	}
	token, exp, err := api.auth.agentToken(ep)
	if err != nil {
		return errors.Wrap(err, "generating agent token")
	}
	return ctx.JSON(http.StatusOK, AgentSessionResponse{Token: token, ExpiresAt: exp.UTC(), Endpoint: ep})
}

func (api *checkInApi) agentCheckIn(ctx echo.Context) error {
	session, err := getAgentSession(ctx)
	if err != nil {
		return err
	}
	var data attendance.AgentCheckInRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AgentCheckInRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.AgentCheckIn(ctx.Request().Context(), session, data)
	if err != nil {
		return errors.Wrap(err, "checking in")
	}
	return ctx.JSON(http.StatusOK, res)
}
