package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"otmsite/docs"
	"otmsite/internal/auth"
	"otmsite/internal/cache"
	"otmsite/internal/config"
	"otmsite/internal/handlers"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Server represents the application server
type Server struct {
	echo       *echo.Echo
	config     *config.Config
	logger     zerolog.Logger
	components *Components
	auth       *auth.Manager
	limiter    *cache.Counter

	// ctx outlives requests; the poller schedule runs under it.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new server instance
func New(cfg *config.Config, components *Components, logger zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:     cfg,
		logger:     logger,
		components: components,
		auth:       auth.NewManager(cfg),
		limiter:    cache.NewCounter(time.Minute),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			s.logger.Info().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	// Middleware
	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())
	s.echo.Use(middleware.BodyLimit("1M"))

	// Hide Echo banner
	s.echo.HideBanner = true

	if !s.auth.Configured() {
		s.logger.Warn().Msg("No admin password configured, admin login is disabled")
	}

	// Setup routes
	s.setupRoutes()
}

// poller returns the mailbox poller as the handler interface, untyped nil when disabled
func (s *Server) poller() handlers.Poller {
	if s.components.Poller == nil {
		return nil
	}
	return s.components.Poller
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	store := s.components.Store

	// API group with /api prefix
	api := s.echo.Group("/api")

	// Swagger documentation
	docs.SwaggerInfo.Version = s.config.Version
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	api.GET("/", handlers.RootHandler(s.config.Version))
	api.GET("/healthz", handlers.HealthHandler(s.config.Version))
	api.GET("/healthz/store", handlers.StoreHealthHandler(s.components.Repository))

	// Public contact form
	api.POST("/contact", handlers.ContactFormHandler(store, s.limiter, s.config.ContactRateLimit, s.logger))

	// Admin endpoints
	api.POST("/admin/login", handlers.AdminLoginHandler(s.auth))

	admin := api.Group("/admin", auth.Middleware(s.auth))
	admin.POST("/logout", handlers.AdminLogoutHandler(s.auth))
	admin.GET("/contacts", handlers.ListContactsHandler(store))
	admin.GET("/contacts/:id", handlers.GetContactHandler(store))
	admin.POST("/contacts/:id/status", handlers.UpdateContactStatusHandler(store))
	admin.DELETE("/contacts/:id", handlers.DeleteContactHandler(store))
	admin.DELETE("/contacts/:id/messages", handlers.DeleteResponsesHandler(store))
	admin.POST("/merge-chats", handlers.MergeChatsHandler(store))
	admin.GET("/diagnose", handlers.DiagnoseHandler(store))

	admin.POST("/fetch-emails", handlers.FetchEmailsHandler(s.poller()))
	admin.POST("/restart-email-service", handlers.RestartEmailServiceHandler(s.poller(), s.ctx))
	admin.GET("/email-service", handlers.EmailServiceStatusHandler(s.poller()))
	admin.POST("/test-email", handlers.TestEmailHandler(s.components.Mailer))
}

// Start starts the mailbox poller and the HTTP server. It returns nil once
// Shutdown has closed the listener.
func (s *Server) Start() error {
	if p := s.components.Poller; p != nil && s.config.EmailFetchEnabled {
		p.Start(s.ctx)
	}
	go s.purgeLimiter()

	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the poller schedule and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if p := s.components.Poller; p != nil {
		p.Stop()
	}
	return s.echo.Shutdown(ctx)
}

// purgeLimiter drops expired rate-limit windows until shutdown
func (s *Server) purgeLimiter() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Purge(); n > 0 {
				s.logger.Debug().Int("entries", n).Msg("Purged contact form rate limits")
			}
		}
	}
}
