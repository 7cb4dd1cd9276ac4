package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusError   = "error"
)

// jsendResponse is the envelope every atlas API response uses. Fail carries
// client errors, error carries server-side failures with the HTTP code echoed.
type jsendResponse struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

type listPayload[T any] struct {
	Items []T `json:"items"`
	Limit int `json:"limit"`
}

func success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, jsendResponse{Status: statusSuccess, Data: data})
}

// successList always encodes items as an array, never null.
func successList[T any](c echo.Context, items []T, limit int) error {
	if items == nil {
		items = []T{}
	}
	return success(c, listPayload[T]{Items: items, Limit: limit})
}

func fail(c echo.Context, code int, message string, data any) error {
	return c.JSON(code, jsendResponse{Status: statusFail, Message: message, Data: data})
}

func failField(c echo.Context, field, problem string) error {
	return fail(c, http.StatusBadRequest, "Validation failed", map[string]any{
		"validation_errors": map[string]string{field: problem},
	})
}

func failNotFound(c echo.Context, message string) error {
	return fail(c, http.StatusNotFound, message, nil)
}

func serverError(c echo.Context, code int, message string) error {
	if code < http.StatusInternalServerError {
		code = http.StatusInternalServerError
	}
	return c.JSON(code, jsendResponse{Status: statusError, Message: message, Code: code})
}

func internalError(c echo.Context, message string) error {
	return serverError(c, http.StatusInternalServerError, message)
}
