package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"otmsite/internal/contacts"
	"otmsite/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name           string
		version        string
		expectedStatus int
		checkResponse  func(t *testing.T, resp models.HealthResponse)
	}{
		{
			name:           "returns healthy status",
			version:        "1.0.0",
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, resp models.HealthResponse) {
				assert.Equal(t, "healthy", resp.Status)
				assert.Equal(t, "1.0.0", resp.Version)
				assert.WithinDuration(t, time.Now().UTC(), resp.Timestamp, 5*time.Second)
			},
		},
		{
			name:           "returns healthy with empty version",
			version:        "",
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, resp models.HealthResponse) {
				assert.Equal(t, "healthy", resp.Status)
				assert.Equal(t, "", resp.Version)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := HealthHandler(tt.version)(c)

			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, rec.Code)

			var response models.HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			tt.checkResponse(t, response)
		})
	}
}

type stubRepository struct {
	doc *models.ContactDocument
	err error
}

func (r *stubRepository) Load(context.Context) (*models.ContactDocument, error) {
	return r.doc, r.err
}

func (r *stubRepository) Save(context.Context, *models.ContactDocument) error {
	return r.err
}

func TestStoreHealthHandler(t *testing.T) {
	tests := []struct {
		name           string
		repo           contacts.Repository
		expectedStatus int
		checkResponse  func(t *testing.T, resp models.StoreHealthResponse)
	}{
		{
			name: "readable store",
			repo: &stubRepository{doc: &models.ContactDocument{
				Contacts: []models.Contact{{ID: "a"}, {ID: "b"}},
			}},
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, resp models.StoreHealthResponse) {
				assert.Equal(t, "healthy", resp.Status)
				assert.True(t, resp.Readable)
				assert.Equal(t, 2, resp.Contacts)
				assert.Empty(t, resp.Error)
			},
		},
		{
			name:           "nil store",
			repo:           nil,
			expectedStatus: http.StatusServiceUnavailable,
			checkResponse: func(t *testing.T, resp models.StoreHealthResponse) {
				assert.Equal(t, "unhealthy", resp.Status)
				assert.False(t, resp.Readable)
				assert.Equal(t, "Contact store not initialized", resp.Error)
			},
		},
		{
			name:           "load failure",
			repo:           &stubRepository{err: errors.New("failed to read contacts file: permission denied")},
			expectedStatus: http.StatusServiceUnavailable,
			checkResponse: func(t *testing.T, resp models.StoreHealthResponse) {
				assert.Equal(t, "unhealthy", resp.Status)
				assert.False(t, resp.Readable)
				assert.Contains(t, resp.Error, "permission denied")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/healthz/store", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := StoreHealthHandler(tt.repo)(c)

			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, rec.Code)

			var response models.StoreHealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			tt.checkResponse(t, response)
		})
	}
}

func TestRootHandler(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, RootHandler("1.2.3")(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "1.2.3", response["version"])
	assert.Equal(t, "running", response["status"])
}
