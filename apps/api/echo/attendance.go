package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/attendance"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var errInvalidSyncAction = echo.NewHTTPError(http.StatusBadRequest, `Invalid action. Use "count" or "chunk".`)

type (
	attendanceDeps struct {
		svc      attendance.Service
		jobs     SyncJobs
		validate *validator.Validate
	}

	attendanceApi struct {
		attendanceDeps
	}

	SyncChunkedRequest struct {
		Action    string `json:"action"`
		ChunkSize int    `json:"chunkSize"`
		Offset    int    `json:"offset"`
	}

	StartJobRequest struct {
		ChunkSize int `json:"chunkSize"`
	}
)

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps attendanceDeps) {
	api := attendanceApi{deps}

	base := "/organizer/events/:eventId/attendance"

	// organizers, or endpoints of the event
	g.POST(base+"/record", api.record, auth.optionalUserMiddleware())

	ag := g.Group(base, jwt, rolesMiddleware(readRoles...))
	write := rolesMiddleware(writeRoles...)

	ag.POST("/sync-chunked", api.syncChunked, write)
	ag.POST("/sync-jobs", api.startJob, write)
	ag.GET("/sync-jobs/current", api.currentJob)
	ag.POST("/sync-jobs/current/:action", api.controlJob, write)
	ag.GET("/sync-status", api.syncStatus)
	ag.POST("/cleanup", api.cleanup, write)

	ag.GET("/statistics", api.statistics)
	ag.GET("/download-excel", api.downloadExcel)

	ag.GET("/endpoints", api.queryEndpoints)
	ag.POST("/endpoints", api.createEndpoint, write)
	ag.DELETE("/endpoints/:id", api.destroyEndpoint, write)

	ag.GET("/log/bymanual", api.logs)
	ag.POST("/managers/send-codes", api.sendManagerCodes, write)
}

func (api *attendanceApi) syncChunked(ctx echo.Context) error {
	eventID, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	var data SyncChunkedRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SyncChunkedRequest")
	}
	rctx := ctx.Request().Context()
	switch strings.ToLower(strings.TrimSpace(data.Action)) {
	case "count":
		res, err := api.svc.Count(rctx, eventID, data.ChunkSize)
		if err != nil {
			return errors.Wrap(err, "counting endlist")
		}
		return ctx.JSON(http.StatusOK, res)
	case "chunk":
		res, err := api.svc.SyncChunk(rctx, eventID, data.ChunkSize, data.Offset)
		if err != nil {
			return errors.Wrap(err, "syncing chunk")
		}
		return ctx.JSON(http.StatusOK, res)
	}
	return errInvalidSyncAction
}

func (api *attendanceApi) startJob(ctx echo.Context) error {
	eventID, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	var data StartJobRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StartJobRequest")
	}

	st, err := api.jobs.Start(eventID, data.ChunkSize)
	if err != nil {
		return errors.Wrap(err, "starting sync job")
	}
	return ctx.JSON(http.StatusAccepted, st)
}

func (api *attendanceApi) currentJob(ctx echo.Context) error {
	eventID, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	st, err := api.jobs.Status(eventID)
	if err != nil {
		return errors.Wrap(err, "getting sync job")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *attendanceApi) controlJob(ctx echo.Context) error {
	eventID, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}

	var st attendance.JobStatus
	switch ctx.Param("action") {
	case "pause":
		st, err = api.jobs.Pause(eventID)
	case "resume":
		st, err = api.jobs.Resume(eventID)
	case "stop":
		st, err = api.jobs.Stop(eventID)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, `Invalid action. Use "pause", "resume" or "stop".`)
	}
	if err != nil {
		return errors.Wrapf(err, "%s sync job", ctx.Param("action"))
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *attendanceApi) syncStatus(ctx echo.Context) error {
	eventID, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	st, err := api.svc.SyncStatus(ctx.Request().Context(), eventID)
	if err != nil {
		return errors.Wrap(err, "computing sync status")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *attendanceApi) cleanup(ctx echo.Context) error {
	eventID, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	res, err := api.svc.Cleanup(ctx.Request().Context(), eventID)
	if err != nil {
		return errors.Wrap(err, "cleaning up attendance")
	}
	return ctx.JSON(http.StatusOK, res)
}

// statistics reads the kids, teens and youth flags as the contest group filter.
func (api *attendanceApi) statistics(ctx echo.Context) error {
	eventID, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	groups := attendance.ContestGroups(map[string]bool{
		"kids":  queryBool(ctx, "kids"),
		"teens": queryBool(ctx, "teens"),
		"youth": queryBool(ctx, "youth"),
	})

	stats, err := api.svc.Statistics(ctx.Request().Context(), eventID, groups)
	if err != nil {
		return errors.Wrap(err, "computing statistics")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *attendanceApi) downloadExcel(ctx echo.Context) error {
	eventID, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}

	buf := new(bytes.Buffer)
	if err = api.svc.Export(ctx.Request().Context(), eventID, buf); err != nil {
		return errors.Wrap(err, "exporting attendance")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="attendance-event-%d.xlsx"`, eventID))
	return ctx.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (api *attendanceApi) queryEndpoints(ctx echo.Context) error {
	eventID, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	eps, err := api.svc.ListEndpoints(ctx.Request().Context(), eventID)
	if err != nil {
		return errors.Wrap(err, "listing endpoints")
	}
	if eps == nil {
		eps = []attendance.Endpoint{}
	}
	return ctx.JSON(http.StatusOK, eps)
}

func (api *attendanceApi) createEndpoint(ctx echo.Context) error {
	eventID, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	var data attendance.NewEndpoint
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEndpoint")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ep, err := api.svc.CreateEndpoint(ctx.Request().Context(), eventID, data)
	if err != nil {
		return errors.Wrap(err, "creating endpoint")
	}
	return ctx.JSON(http.StatusCreated, ep)
}

func (api *attendanceApi) destroyEndpoint(ctx echo.Context) error {
	eventID, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteEndpoint(ctx.Request().Context(), eventID, id); err != nil {
		return errors.Wrap(err, "deleting endpoint")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// record is open to ADMIN and OPERATOR users, and to callers sending a valid endpointhash of the event.
func (api *attendanceApi) record(ctx echo.Context) error {
	eventID, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	var data attendance.RecordRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecordRequest")
	}

	rctx := ctx.Request().Context()
	if _, cErr := getContextClaims(ctx); cErr == nil {
		if !contextHasAnyRole(ctx, writeRoles) {
			return errHttpForbidden
		}
	} else {
		hash := core.CleanString(data.Endpointhash)
		if hash == "" {
			return errUnauthorized
		}
		if _, err = api.svc.VerifyEndpoint(rctx, eventID, hash, attendance.EndpointContingent); err != nil {
			if errors.Cause(err) == attendance.ErrEndpointNotFound {
				return errUnauthorized
			}
			return errors.Wrap(err, "verifying endpoint")
		}
	}

	if err = data.Validate(api.validate); err != nil {
		return err
	}
	res, err := api.svc.Record(rctx, eventID, data)
	if err != nil {
		return errors.Wrap(err, "recording attendance")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attendanceApi) logs(ctx echo.Context) error {
	eventID, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	entries, page, err := api.svc.Logs(ctx.Request().Context(), eventID, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "querying attendance logs")
	}
	if entries == nil {
		entries = []attendance.LogEntry{}
	}
	return ctx.JSON(http.StatusOK, PageResponse{Data: entries, Pagination: page})
}

func (api *attendanceApi) sendManagerCodes(ctx echo.Context) error {
	eventID, err := paramID(ctx, "eventId")
	if err != nil {
		return err
	}
	res, err := api.svc.SendManagerCodes(ctx.Request().Context(), eventID)
	if err != nil {
		return errors.Wrap(err, "sending manager codes")
	}
	return ctx.JSON(http.StatusOK, res)
}
