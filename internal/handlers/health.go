package handlers

import (
	"context"
	"net/http"
	"time"

	"otmsite/internal/contacts"
	"otmsite/internal/models"

	"github.com/labstack/echo/v4"
)

// HealthHandler handles basic health check requests
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /api/healthz [get]
func HealthHandler(version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		response := models.HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Version:   version,
		}

		return c.JSON(http.StatusOK, response)
	}
}

// StoreHealthHandler checks that the contact document can be loaded
// @Summary Contact store health check
// @Tags health
// @Produce json
// @Success 200 {object} models.StoreHealthResponse
// @Failure 503 {object} models.StoreHealthResponse
// @Router /api/healthz/store [get]
func StoreHealthHandler(repo contacts.Repository) echo.HandlerFunc {
	return func(c echo.Context) error {
		response := models.StoreHealthResponse{
			Status:    "unknown",
			Timestamp: time.Now().UTC(),
		}

		if repo == nil {
			response.Status = "unhealthy"
			response.Error = "Contact store not initialized"
			return c.JSON(http.StatusServiceUnavailable, response)
		}

		// Measure load latency
		start := time.Now()
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		doc, err := repo.Load(ctx)
		response.Latency = time.Since(start)

		if err != nil {
			response.Status = "unhealthy"
			response.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, response)
		}

		response.Status = "healthy"
		response.Readable = true
		response.Contacts = len(doc.Contacts)

		return c.JSON(http.StatusOK, response)
	}
}

// RootHandler handles requests to the root endpoint
func RootHandler(version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"service": "OTM Education API",
			"version": version,
			"status":  "running",
		})
	}
}
