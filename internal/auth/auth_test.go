package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"otmsite/internal/config"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAuthenticate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name     string
		cfg      *config.Config
		username string
		password string
		wantErr  bool
	}{
		{"bcrypt hash", &config.Config{AdminUsername: "admin", AdminPasswordHash: string(hash)}, "admin", "s3cret", false},
		{"bcrypt wrong password", &config.Config{AdminUsername: "admin", AdminPasswordHash: string(hash)}, "admin", "nope", true},
		{"hash wins over plaintext", &config.Config{AdminUsername: "admin", AdminPasswordHash: string(hash), AdminPassword: "dev"}, "admin", "dev", true},
		{"plaintext fallback", &config.Config{AdminUsername: "admin", AdminPassword: "dev"}, "admin", "dev", false},
		{"wrong username", &config.Config{AdminUsername: "admin", AdminPassword: "dev"}, "root", "dev", true},
		{"no password configured", &config.Config{AdminUsername: "admin"}, "admin", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			am := NewManager(tt.cfg)
			token, err := am.Authenticate(tt.username, tt.password)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCredentials)
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, token)
			assert.True(t, am.ValidateToken(token))
		})
	}
}

func TestTokenLifecycle(t *testing.T) {
	am := NewManager(&config.Config{AdminUsername: "admin", AdminPassword: "dev"})

	first, err := am.Authenticate("admin", "dev")
	require.NoError(t, err)
	second, err := am.Authenticate("admin", "dev")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	am.Logout(first)
	assert.False(t, am.ValidateToken(first))
	assert.True(t, am.ValidateToken(second))
	assert.False(t, am.ValidateToken(""))
	assert.False(t, am.ValidateToken("made-up"))
}

func TestMiddleware(t *testing.T) {
	am := NewManager(&config.Config{AdminUsername: "admin", AdminPassword: "dev"})
	token, err := am.Authenticate("admin", "dev")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK},
		{"raw header", token, "", http.StatusOK},
		{"query parameter", "", "?token=" + token, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"invalid", "Bearer nope", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/admin/contacts"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := Middleware(am)(func(c echo.Context) error {
				assert.Equal(t, token, TokenFromContext(c))
				return c.NoContent(http.StatusOK)
			})

			require.NoError(t, handler(c))
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), "Unauthorized")
			}
		})
	}
}
