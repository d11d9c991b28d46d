package echoapi

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/certificate"
)

type (
	certificateApi struct {
		svc      certificate.Service
		validate *validator.Validate
	}

	SerialRequest struct {
		TargetType string `json:"targetType"`
		Year       int    `json:"year"`
	}

	SerialResponse struct {
		SerialNumber string                  `json:"serialNumber"`
		Parts        certificate.SerialParts `json:"parts"`
	}

	VerifyResponse struct {
		Valid       bool                     `json:"valid"`
		Certificate *certificate.Certificate `json:"certificate,omitempty"`
	}
)

func registerCertificateAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc certificate.Service, validate *validator.Validate) {
	api := certificateApi{svc: svc, validate: validate}

	cg := g.Group("/certificates")

	// public
	cg.GET("/verify/*", api.verify)

	ag := cg.Group("", jwt, rolesMiddleware(writeRoles...))
	ag.GET("/templates", api.queryTemplates)
	ag.POST("/templates", api.createTemplate)
	ag.GET("/templates/:id", api.retrieveTemplate)

	ag.GET("/templates/:id/serials", api.templateSerials)
	ag.GET("/templates/:id/serials/preview", api.previewSerial)
	ag.POST("/templates/:id/serials", api.generateSerial)
	ag.POST("/templates/:id/serials/reset", api.resetSequence)

	ag.GET("/templates/:id/certificates", api.queryCertificates)
	ag.POST("/templates/:id/certificates", api.createCertificate)

	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id/status", api.updateStatus)
	ag.DELETE("/:id", api.destroy)
}

func (api *certificateApi) queryTemplates(ctx echo.Context) error {
	tmpls, err := api.svc.ListTemplates(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing templates")
	}
	if tmpls == nil {
		tmpls = []certificate.Template{}
	}
	return ctx.JSON(http.StatusOK, tmpls)
}

func (api *certificateApi) createTemplate(ctx echo.Context) error {
	var data certificate.NewTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTemplate")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	tmpl, err := api.svc.CreateTemplate(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating template")
	}
	return ctx.JSON(http.StatusCreated, tmpl)
}

func (api *certificateApi) retrieveTemplate(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	tmpl, err := api.svc.GetTemplate(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting template")
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *certificateApi) templateSerials(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	serials, err := api.svc.TemplateSerials(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "listing template serials")
	}
	if serials == nil {
		serials = []certificate.Serial{}
	}
	return ctx.JSON(http.StatusOK, serials)
}

// serialTarget returns the template and the target type of a serial request, the template's one by default.
func (api *certificateApi) serialTarget(ctx echo.Context, targetType string) (certificate.Template, string, error) {
	id, err := paramID(ctx, "id")
	if err != nil {
		return certificate.Template{}, "", err
	}
	tmpl, err := api.svc.GetTemplate(ctx.Request().Context(), id)
	if err != nil {
		return certificate.Template{}, "", errors.Wrap(err, "getting template")
	}
	if targetType = core.CleanString(targetType); targetType == "" {
		targetType = tmpl.TargetType
	}
	return tmpl, targetType, nil
}

func (api *certificateApi) serialResponse(ctx echo.Context, code int, serial string) error {
	parts, err := api.svc.ParseSerialNumber(serial)
	if err != nil {
		return errors.Wrap(err, "parsing serial number")
	}
	return ctx.JSON(code, SerialResponse{SerialNumber: serial, Parts: parts})
}

func (api *certificateApi) previewSerial(ctx echo.Context) error {
	tmpl, targetType, err := api.serialTarget(ctx, ctx.QueryParam("targetType"))
	if err != nil {
		return err
	}
	year, _ := strconv.Atoi(ctx.QueryParam("year"))

	serial, err := api.svc.PreviewSerialNumber(ctx.Request().Context(), tmpl.ID, targetType, year)
	if err != nil {
		return errors.Wrap(err, "previewing serial number")
	}
	return api.serialResponse(ctx, http.StatusOK, serial)
}

func (api *certificateApi) generateSerial(ctx echo.Context) error {
	var data SerialRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SerialRequest")
	}
	tmpl, targetType, err := api.serialTarget(ctx, data.TargetType)
	if err != nil {
		return err
	}

	serial, err := api.svc.GenerateSerialNumber(ctx.Request().Context(), tmpl.ID, targetType, data.Year)
	if err != nil {
		return errors.Wrap(err, "generating serial number")
	}
	return api.serialResponse(ctx, http.StatusCreated, serial)
}

func (api *certificateApi) resetSequence(ctx echo.Context) error {
	var data SerialRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SerialRequest")
	}
	tmpl, targetType, err := api.serialTarget(ctx, data.TargetType)
	if err != nil {
		return err
	}

	if err = api.svc.ResetSequence(ctx.Request().Context(), tmpl.ID, targetType, data.Year); err != nil {
		return errors.Wrap(err, "resetting serial sequence")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Serial sequence has been reset."})
}

func (api *certificateApi) queryCertificates(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	filter := new(certificate.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}

	certs, page, err := api.svc.ListCertificates(ctx.Request().Context(), id, filter, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "listing certificates")
	}
	if certs == nil {
		certs = []certificate.Certificate{}
	}
	return ctx.JSON(http.StatusOK, PageResponse{Data: certs, Pagination: page})
}

func (api *certificateApi) createCertificate(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data certificate.NewCertificate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCertificate")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	cert, err := api.svc.CreateCertificate(ctx.Request().Context(), id, data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "creating certificate")
	}
	return ctx.JSON(http.StatusCreated, cert)
}

func (api *certificateApi) retrieve(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	cert, err := api.svc.GetCertificate(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting certificate")
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *certificateApi) updateStatus(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data certificate.UpdateStatus
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatus")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cert, err := api.svc.UpdateStatus(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating certificate status")
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *certificateApi) destroy(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteCertificate(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting certificate")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// verify looks a certificate up by its serial number, which contains slashes.
func (api *certificateApi) verify(ctx echo.Context) error {
	serial, err := url.PathUnescape(ctx.Param("*"))
	if err != nil {
		return errHttpNotFound
	}
	cert, err := api.svc.GetBySerial(ctx.Request().Context(), core.CleanString(serial))
	if err != nil {
		if errors.Cause(err) == certificate.ErrNotFound {
			return ctx.JSON(http.StatusNotFound, VerifyResponse{Valid: false})
		}
		return errors.Wrap(err, "getting certificate by serial")
	}
	return ctx.JSON(http.StatusOK, VerifyResponse{Valid: cert.Status != certificate.StatusRevoked, Certificate: &cert})
}
