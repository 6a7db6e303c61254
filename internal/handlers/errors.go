package handlers

import (
	"errors"
	"net/http"

	"otmsite/internal/contacts"
	"otmsite/internal/models"

	"github.com/labstack/echo/v4"
)

// statusFor maps store errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, contacts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, contacts.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// adminError writes the failure envelope for an admin operation
func adminError(c echo.Context, err error, message string) error {
	return c.JSON(statusFor(err), models.AdminResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}

func notificationError(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
