package api

import (
	"github.com/labstack/echo/v4"

	"flowgate/internal/services"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Server holds the dependencies for the API server.
type Server struct {
	Sync    *services.SyncService
	Reviews *services.ReviewService
	Sweeper *services.Sweeper
	Audit   *services.AuditService
	Logger  Logger

	WebhookSecret string
	CleanupSecret string
}

// RegisterRoutes mounts all handlers. authed is the organization-resolving
// middleware applied to the UI-facing API; the webhook and cleanup surfaces
// are shared-secret authenticated instead.
func (s *Server) RegisterRoutes(e *echo.Echo, authed echo.MiddlewareFunc) {
	e.GET("/healthz", s.HandleHealth)

	api := e.Group("/api/v1", authed)
	api.POST("/workflows/:id/activate", s.HandleActivate)
	api.GET("/reviews", s.HandleListPendingReviews)
	api.GET("/reviews/:id", s.HandleGetReview)
	api.POST("/reviews/:id/decision", s.HandleReviewDecision)
	api.POST("/reviews/:id/chat", s.HandleReviewChat)
	api.GET("/audit", s.HandleAuditQuery)
	api.POST("/audit/purge", s.HandleAuditPurge)

	e.POST("/webhooks/engine", s.HandleEngineWebhook)
	e.POST("/cleanup", s.HandleCleanup)
	e.GET("/cleanup", s.HandleCleanupStatus)
}
