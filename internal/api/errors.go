package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/roach88/vacc/internal/channels"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

func newNotFoundError(resource, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

func newInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

func newUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// channelError maps a channels.Server error to its HTTP form.
func channelError(name string, err error) *APIError {
	switch {
	case errors.Is(err, channels.ErrUnknownChannel):
		return newNotFoundError("channel", name)
	case errors.Is(err, channels.ErrReadOnly):
		return &APIError{
			Status:  http.StatusForbidden,
			Code:    "READ_ONLY",
			Message: fmt.Sprintf("channel is read-only: %s", name),
		}
	default:
		return newInternalError("channel access failed", err)
	}
}

// errorHandler renders every error as an APIError.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			apiErr  *APIError
			httpErr *echo.HTTPError
		)
		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		default:
			apiErr = newInternalError("an unexpected error occurred", err)
		}

		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"error", err,
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(apiErr.Status)
		} else {
			werr = c.JSON(apiErr.Status, apiErr)
		}
		if werr != nil {
			logger.Warn("write error response", "error", werr)
		}
	}
}
