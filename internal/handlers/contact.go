package handlers

import (
	"net/http"
	"strings"

	"otmsite/internal/cache"
	"otmsite/internal/contacts"
	"otmsite/internal/emails"
	"otmsite/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	maxNameLength    = 200
	maxMessageLength = 10000
)

// ContactFormHandler handles public contact form submissions
// @Summary Submit the contact form
// @Description Stores the message in its contact thread and notifies the admin. The response never exposes notification failures.
// @Tags contact
// @Accept json
// @Produce json
// @Param request body models.ContactFormRequest true "Contact form"
// @Success 200 {object} models.ContactFormResponse
// @Failure 400 {object} models.ContactFormResponse
// @Failure 429 {object} models.ContactFormResponse
// @Failure 500 {object} models.ContactFormResponse
// @Router /api/contact [post]
func ContactFormHandler(store *contacts.Service, limiter *cache.Counter, limit int, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if limiter != nil && limit > 0 && limiter.Hit(c.RealIP()) > limit {
			logger.Warn().Str("ip", c.RealIP()).Msg("Contact form rate limit exceeded")
			return c.JSON(http.StatusTooManyRequests, models.ContactFormResponse{
				Success: false,
				Message: "Too many messages, please try again in a minute",
			})
		}

		var req models.ContactFormRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ContactFormResponse{
				Success: false,
				Message: "Invalid request body",
			})
		}

		if msg := validateContactForm(&req); msg != "" {
			return c.JSON(http.StatusBadRequest, models.ContactFormResponse{
				Success: false,
				Message: msg,
			})
		}

		result, err := store.AddContact(c.Request().Context(), contacts.NewContact{
			Name:    req.Name,
			Email:   req.Email,
			Message: req.Message,
			Subject: req.Subject,
		})
		if err != nil {
			logger.Error().Err(err).Str("email", models.RedactEmail(req.Email)).Msg("Failed to store contact form")
			return c.JSON(http.StatusInternalServerError, models.ContactFormResponse{
				Success: false,
				Message: "Failed to send message, please try again later",
			})
		}

		logger.Info().
			Str("contact_id", result.Contact.ID).
			Bool("created", result.Created).
			Bool("notified", result.NotificationError == nil).
			Msg("Contact form received")

		return c.JSON(http.StatusOK, models.ContactFormResponse{
			Success: true,
			Message: "Message sent successfully",
		})
	}
}

func validateContactForm(req *models.ContactFormRequest) string {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Message = strings.TrimSpace(req.Message)
	req.Subject = strings.TrimSpace(req.Subject)

	switch {
	case req.Name == "" || req.Email == "" || req.Message == "":
		return "Name, email and message are required"
	case !emails.IsValidAddress(req.Email):
		return "Please provide a valid email address"
	case len(req.Name) > maxNameLength:
		return "Name is too long"
	case len(req.Message) > maxMessageLength:
		return "Message is too long"
	}
	return ""
}
