package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// DataResponse writes the API envelope. The HTTP status matches the
// envelope status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

// SuccessResponse writes success response.
func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// BadRequestResponse writes bad request error.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// InternalServerErrorResponse writes internal server error.
func InternalServerErrorResponse(c echo.Context) error {
	return DataResponse(c, http.StatusInternalServerError, "Something went wrong")
}

// ErrorMapper turns a domain error into an AppError, or returns nil when it
// does not recognise the error.
type ErrorMapper func(error) *AppError

// AppErrorResponse writes application error response. Mappers are tried in
// order when err is not already an AppError.
func AppErrorResponse(c echo.Context, err error, mappers ...ErrorMapper) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return DataResponse(c, appErr.Status, []*AppError{appErr})
	}
	for _, m := range mappers {
		if appErr = m(err); appErr != nil {
			return DataResponse(c, appErr.Status, []*AppError{appErr})
		}
	}
	return InternalServerErrorResponse(c)
}
