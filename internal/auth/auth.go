package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"otmsite/internal/cache"
	"otmsite/internal/config"
	"otmsite/internal/models"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for a wrong username or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// tokenContextKey holds the validated bearer token in the echo context.
const tokenContextKey = "auth_token"

// Manager handles authentication for admin routes
type Manager struct {
	username     string
	passwordHash []byte
	password     string
	tokens       *cache.Cache[string]
	tokenExpiry  time.Duration
}

// NewManager creates a new authentication manager
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		username:     cfg.AdminUsername,
		passwordHash: []byte(cfg.AdminPasswordHash),
		password:     cfg.AdminPassword,
		tokens:       cache.New[string](),
		tokenExpiry:  24 * time.Hour, // Tokens expire after 24 hours
	}
}

// Configured reports whether any admin password is set.
func (am *Manager) Configured() bool {
	return am.username != "" && (len(am.passwordHash) > 0 || am.password != "")
}

// Authenticate validates username and password and returns a token
func (am *Manager) Authenticate(username, password string) (string, error) {
	if !am.Configured() || !am.checkPassword(username, password) {
		return "", ErrInvalidCredentials
	}

	// Generate a secure random token
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.URLEncoding.EncodeToString(tokenBytes)

	am.tokens.Set(token, username, am.tokenExpiry)
	am.tokens.Purge()

	return token, nil
}

func (am *Manager) checkPassword(username, password string) bool {
	if subtle.ConstantTimeCompare([]byte(username), []byte(am.username)) != 1 {
		return false
	}
	if len(am.passwordHash) > 0 {
		return bcrypt.CompareHashAndPassword(am.passwordHash, []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(am.password)) == 1
}

// ValidateToken checks if a token is valid
func (am *Manager) ValidateToken(token string) bool {
	if token == "" {
		return false
	}
	_, ok := am.tokens.Get(token)
	return ok
}

// Logout revokes a token
func (am *Manager) Logout(token string) {
	am.tokens.Delete(token)
}

// TokenFromContext returns the token stored by Middleware.
func TokenFromContext(c echo.Context) string {
	token, _ := c.Get(tokenContextKey).(string)
	return token
}

// Middleware creates middleware for admin route authentication
func Middleware(authManager *Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Get token from Authorization header or query parameter
			token := c.Request().Header.Get("Authorization")
			if token != "" {
				token = strings.TrimPrefix(token, "Bearer ")
			} else {
				token = c.QueryParam("token")
			}

			if !authManager.ValidateToken(token) {
				return c.JSON(http.StatusUnauthorized, models.AdminResponse{
					Success: false,
					Error:   "Unauthorized. Please login first.",
				})
			}

			c.Set(tokenContextKey, token)

			return next(c)
		}
	}
}
