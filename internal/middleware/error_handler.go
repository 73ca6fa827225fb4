package middleware

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/apperr"
)

// JSONErrorHandler is the Echo error handler. It maps the application error
// taxonomy onto status codes and the {error, message} response shape.
// Internal errors get a logged cause; details leak to the response only
// outside production.
func JSONErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := map[string]interface{}{
		"error":   string(apperr.CodeInternal),
		"message": "Something went wrong. Please try again later.",
	}

	if appErr, ok := apperr.As(err); ok {
		status = appErr.HTTPStatus()
		body["error"] = string(appErr.Code)
		body["message"] = appErr.Message
	} else if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		body["error"] = string(codeForStatus(he.Code))
		if msg, ok := he.Message.(string); ok && msg != "" {
			body["message"] = msg
		} else {
			body["message"] = http.StatusText(he.Code)
		}
	}

	if status >= http.StatusInternalServerError {
		slog.Error("Request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"error", err,
		)
		if os.Getenv("ENV") != "production" {
			body["details"] = err.Error()
		}
	}

	if writeErr := c.JSON(status, body); writeErr != nil {
		slog.Error("Failed to write error response", "error", writeErr)
	}
}

func codeForStatus(status int) apperr.Code {
	switch status {
	case http.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case http.StatusForbidden:
		return apperr.CodeForbidden
	case http.StatusNotFound:
		return apperr.CodeNotFound
	case http.StatusBadRequest:
		return apperr.CodeInvalid
	default:
		return apperr.CodeInternal
	}
}
