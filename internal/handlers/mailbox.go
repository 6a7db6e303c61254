package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"otmsite/internal/email"
	"otmsite/internal/mailbox"
	"otmsite/internal/models"

	"github.com/labstack/echo/v4"
)

// Poller is the part of the mailbox poller the admin panel drives.
type Poller interface {
	PollOnce(ctx context.Context) (*mailbox.PollResult, error)
	Restart(ctx context.Context, interval time.Duration)
	State() mailbox.State
	Interval() time.Duration
}

// TestMailer sends the configuration check email.
type TestMailer interface {
	SendTestEmail(ctx context.Context) error
}

// FetchEmailsHandler runs one mailbox poll now
// @Summary Fetch emails
// @Description Polls the inbox immediately and files unseen mail into contact threads
// @Tags admin
// @Produce json
// @Success 200 {object} models.AdminResponse
// @Failure 409 {object} models.AdminResponse
// @Failure 502 {object} models.AdminResponse
// @Failure 503 {object} models.AdminResponse
// @Security BearerAuth
// @Router /api/admin/fetch-emails [post]
func FetchEmailsHandler(poller Poller) echo.HandlerFunc {
	return func(c echo.Context) error {
		if poller == nil {
			return c.JSON(http.StatusServiceUnavailable, models.AdminResponse{
				Success: false,
				Error:   mailbox.ErrNotConfigured.Error(),
			})
		}

		result, err := poller.PollOnce(c.Request().Context())
		switch {
		case errors.Is(err, mailbox.ErrPollInProgress):
			return c.JSON(http.StatusConflict, models.AdminResponse{
				Success: false,
				Error:   err.Error(),
			})
		case err != nil:
			return c.JSON(http.StatusBadGateway, models.AdminResponse{
				Success: false,
				Message: "Failed to fetch emails",
				Error:   err.Error(),
			})
		}

		return c.JSON(http.StatusOK, models.AdminResponse{
			Success: true,
			Message: fmt.Sprintf("Processed %d of %d unseen emails", result.Processed, result.Found),
			Poll: &models.PollSummary{
				Found:     result.Found,
				Processed: result.Processed,
				Skipped:   result.Skipped,
				Failed:    result.Failed,
			},
		})
	}
}

// RestartEmailServiceHandler restarts the poller, optionally with a new interval
// @Summary Restart email service
// @Tags admin
// @Accept json
// @Produce json
// @Param request body models.RestartEmailServiceRequest false "Interval in minutes"
// @Success 200 {object} models.AdminResponse
// @Failure 400 {object} models.AdminResponse
// @Failure 503 {object} models.AdminResponse
// @Security BearerAuth
// @Router /api/admin/restart-email-service [post]
func RestartEmailServiceHandler(poller Poller, baseCtx context.Context) echo.HandlerFunc {
	return func(c echo.Context) error {
		if poller == nil {
			return c.JSON(http.StatusServiceUnavailable, models.AdminResponse{
				Success: false,
				Error:   mailbox.ErrNotConfigured.Error(),
			})
		}

		var req models.RestartEmailServiceRequest
		if err := c.Bind(&req); err != nil || req.IntervalMinutes < 0 {
			return c.JSON(http.StatusBadRequest, models.AdminResponse{
				Success: false,
				Error:   "Invalid interval",
			})
		}

		// The schedule must outlive this request.
		poller.Restart(baseCtx, time.Duration(req.IntervalMinutes)*time.Minute)

		return c.JSON(http.StatusOK, models.AdminResponse{
			Success: true,
			Message: fmt.Sprintf("Email service restarted, polling every %s", poller.Interval()),
		})
	}
}

// EmailServiceStatusHandler reports the poller's current state
// @Summary Email service status
// @Tags admin
// @Produce json
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /api/admin/email-service [get]
func EmailServiceStatusHandler(poller Poller) echo.HandlerFunc {
	return func(c echo.Context) error {
		if poller == nil {
			return c.JSON(http.StatusOK, map[string]string{
				"state": "disabled",
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"state":    string(poller.State()),
			"interval": poller.Interval().String(),
		})
	}
}

// TestEmailHandler sends the configuration check email to the admin
// @Summary Send test email
// @Tags admin
// @Produce json
// @Success 200 {object} models.AdminResponse
// @Failure 502 {object} models.AdminResponse
// @Failure 503 {object} models.AdminResponse
// @Security BearerAuth
// @Router /api/admin/test-email [post]
func TestEmailHandler(mailer TestMailer) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := mailer.SendTestEmail(c.Request().Context())
		switch {
		case errors.Is(err, email.ErrNotConfigured):
			return c.JSON(http.StatusServiceUnavailable, models.AdminResponse{
				Success: false,
				Error:   err.Error(),
			})
		case err != nil:
			return c.JSON(http.StatusBadGateway, models.AdminResponse{
				Success: false,
				Message: "Test email failed",
				Error:   err.Error(),
			})
		}
		return c.JSON(http.StatusOK, models.AdminResponse{
			Success: true,
			Message: "Test email sent successfully",
		})
	}
}
