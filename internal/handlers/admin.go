package handlers

import (
	"fmt"
	"net/http"

	"otmsite/internal/auth"
	"otmsite/internal/contacts"
	"otmsite/internal/models"

	"github.com/labstack/echo/v4"
)

// AdminLoginHandler handles admin authentication
// @Summary Admin login
// @Description Authenticate admin user and receive auth token
// @Tags admin
// @Accept json
// @Produce json
// @Param request body models.AdminAuthRequest true "Login credentials"
// @Success 200 {object} models.AdminAuthResponse
// @Failure 401 {object} models.AdminAuthResponse
// @Router /api/admin/login [post]
func AdminLoginHandler(authManager *auth.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.AdminAuthRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.AdminAuthResponse{
				Success: false,
				Error:   fmt.Sprintf("Invalid request body: %v", err),
			})
		}

		token, err := authManager.Authenticate(req.Username, req.Password)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, models.AdminAuthResponse{
				Success: false,
				Error:   "Invalid username or password",
			})
		}

		return c.JSON(http.StatusOK, models.AdminAuthResponse{
			Success: true,
			Token:   token,
		})
	}
}

// AdminLogoutHandler revokes the caller's token
// @Summary Admin logout
// @Tags admin
// @Produce json
// @Success 200 {object} models.AdminAuthResponse
// @Security BearerAuth
// @Router /api/admin/logout [post]
func AdminLogoutHandler(authManager *auth.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		authManager.Logout(auth.TokenFromContext(c))
		return c.JSON(http.StatusOK, models.AdminAuthResponse{
			Success: true,
			Message: "Logged out",
		})
	}
}

// ListContactsHandler lists every contact thread, newest first
// @Summary List contacts
// @Description Merges threads sharing an address, then returns all threads decrypted, most recently created first
// @Tags admin
// @Produce json
// @Success 200 {object} models.AdminResponse
// @Failure 401 {object} models.AdminResponse
// @Failure 500 {object} models.AdminResponse
// @Security BearerAuth
// @Router /api/admin/contacts [get]
func ListContactsHandler(store *contacts.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := store.GetContacts(c.Request().Context())
		if err != nil {
			return adminError(c, err, "Failed to load contacts")
		}
		return c.JSON(http.StatusOK, models.AdminResponse{
			Success:  true,
			Contacts: list,
		})
	}
}

// GetContactHandler returns one thread
// @Summary Get contact
// @Tags admin
// @Produce json
// @Param id path string true "Contact ID"
// @Success 200 {object} models.AdminResponse
// @Failure 404 {object} models.AdminResponse
// @Security BearerAuth
// @Router /api/admin/contacts/{id} [get]
func GetContactHandler(store *contacts.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		contact, err := store.GetContact(c.Request().Context(), c.Param("id"))
		if err != nil {
			return adminError(c, err, "Contact not found")
		}
		return c.JSON(http.StatusOK, models.AdminResponse{
			Success: true,
			Contact: contact,
		})
	}
}

// UpdateContactStatusHandler sets a thread's status and optionally replies
// @Summary Update contact status
// @Description Sets the status; a non-empty response is stored as an Admin message and emailed to the contact
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Contact ID"
// @Param request body models.UpdateStatusRequest true "Status and optional response"
// @Success 200 {object} models.AdminResponse
// @Failure 400 {object} models.AdminResponse
// @Failure 404 {object} models.AdminResponse
// @Security BearerAuth
// @Router /api/admin/contacts/{id}/status [post]
func UpdateContactStatusHandler(store *contacts.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.UpdateStatusRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.AdminResponse{
				Success: false,
				Error:   "Invalid request body",
			})
		}

		result, err := store.UpdateContactStatus(c.Request().Context(), c.Param("id"), models.ContactStatus(req.Status), req.Response)
		if err != nil {
			return adminError(c, err, "Failed to update contact")
		}

		message := "Status updated"
		if req.Response != "" {
			message = "Response saved"
			if result.NotificationError != nil {
				message = "Response saved but the email could not be sent"
			}
		}
		return c.JSON(http.StatusOK, models.AdminResponse{
			Success:    true,
			Message:    message,
			EmailError: notificationError(result.NotificationError),
			Contact:    &result.Contact,
		})
	}
}

// DeleteContactHandler removes a thread
// @Summary Delete contact
// @Tags admin
// @Produce json
// @Param id path string true "Contact ID"
// @Success 200 {object} models.AdminResponse
// @Failure 404 {object} models.AdminResponse
// @Security BearerAuth
// @Router /api/admin/contacts/{id} [delete]
func DeleteContactHandler(store *contacts.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.DeleteContact(c.Request().Context(), c.Param("id")); err != nil {
			return adminError(c, err, "Failed to delete contact")
		}
		return c.JSON(http.StatusOK, models.AdminResponse{
			Success: true,
			Message: "Contact deleted",
		})
	}
}

// DeleteResponsesHandler clears every message of a thread
// @Summary Delete contact messages
// @Tags admin
// @Produce json
// @Param id path string true "Contact ID"
// @Success 200 {object} models.AdminResponse
// @Failure 404 {object} models.AdminResponse
// @Security BearerAuth
// @Router /api/admin/contacts/{id}/messages [delete]
func DeleteResponsesHandler(store *contacts.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		contact, err := store.DeleteResponses(c.Request().Context(), c.Param("id"))
		if err != nil {
			return adminError(c, err, "Failed to delete messages")
		}
		return c.JSON(http.StatusOK, models.AdminResponse{
			Success: true,
			Message: "Messages deleted",
			Contact: contact,
		})
	}
}

// MergeChatsHandler folds threads that share an address
// @Summary Merge chats
// @Tags admin
// @Produce json
// @Success 200 {object} models.AdminResponse
// @Failure 500 {object} models.AdminResponse
// @Security BearerAuth
// @Router /api/admin/merge-chats [post]
func MergeChatsHandler(store *contacts.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		result := store.MergeChats(c.Request().Context())
		status := http.StatusOK
		if !result.Success {
			status = http.StatusInternalServerError
		}
		return c.JSON(status, models.AdminResponse{
			Success: result.Success,
			Message: result.Message,
		})
	}
}

// DiagnoseHandler reports stored counts and per-field encryption state
// @Summary Diagnose contact store
// @Tags admin
// @Produce json
// @Success 200 {object} models.AdminResponse
// @Failure 500 {object} models.AdminResponse
// @Security BearerAuth
// @Router /api/admin/diagnose [get]
func DiagnoseHandler(store *contacts.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		report, err := store.Diagnose(c.Request().Context())
		if err != nil {
			return adminError(c, err, "Failed to diagnose contact store")
		}
		return c.JSON(http.StatusOK, models.AdminResponse{
			Success: true,
			Report:  report,
		})
	}
}
