package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/sensor-market/internal/fault"
	"github.com/shinyyama/sensor-market/internal/reqctx"
)

var log = logging.Logger("api")

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: errorPayload{
			Code:    code,
			Message: message,
		},
	}
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(k fault.Kind) int {
	switch k {
	case fault.Validation:
		return http.StatusBadRequest
	case fault.Authorization:
		return http.StatusForbidden
	case fault.Conflict:
		return http.StatusConflict
	case fault.Arithmetic:
		return http.StatusUnprocessableEntity
	case fault.External:
		return http.StatusBadGateway
	case fault.NotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(c echo.Context, err error) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return c.JSON(StatusFor(fe.Kind), NewErrorResponse(fe.Code, fe.Message))
	}
	log.Errorw("request failed", "rid", reqctx.RID(c.Request().Context()), "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "internal error"))
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", message))
}

func currentUID(c echo.Context) string {
	uid, _ := c.Get("uid").(string)
	return uid
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func queryInt(c echo.Context, name string) int {
	v, _ := strconv.Atoi(c.QueryParam(name))
	return v
}
