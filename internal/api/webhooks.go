package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"flowgate/internal/auth"
	"flowgate/internal/engine"
)

// Header carrying the shared secret on engine webhooks and cleanup calls.
const secretHeader = "X-Flowgate-Secret"

// HandleEngineWebhook receives callbacks from the remote execution engine.
// The engine is just another caller: each event type maps onto the same
// conditional-write command path the UI uses, after shape validation.
// (POST /webhooks/engine)
func (s *Server) HandleEngineWebhook(c echo.Context) error {
	if !auth.SecretEqual(c.Request().Header.Get(secretHeader), s.WebhookSecret) {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "bad webhook secret")
	}

	var event engine.WebhookEvent
	if err := c.Bind(&event); err != nil {
		return problem(c, http.StatusBadRequest, "Invalid request body", err.Error())
	}

	ctx := c.Request().Context()
	switch event.Type {
	case engine.EventReviewRequest:
		payload, err := engine.DecodeReviewRequest(&event)
		if err != nil {
			return mapError(c, err)
		}
		review, err := s.Reviews.CreateFromWebhook(ctx, payload)
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(http.StatusCreated, review)

	case engine.EventExecutionComplete, engine.EventExecutionFailed:
		payload, err := engine.DecodeExecutionEnd(&event)
		if err != nil {
			return mapError(c, err)
		}
		applied, err := s.Reviews.FinishFromWebhook(ctx, payload, event.Type == engine.EventExecutionFailed)
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]bool{"applied": applied})

	default:
		return problem(c, http.StatusBadRequest, "Invalid request body", "unknown event type "+event.Type)
	}
}

// HandleCleanup triggers one sweep run. Intended for an external scheduler.
// (POST /cleanup)
func (s *Server) HandleCleanup(c echo.Context) error {
	if !auth.SecretEqual(c.Request().Header.Get(secretHeader), s.CleanupSecret) {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "bad cleanup secret")
	}

	result, err := s.Sweeper.Run(c.Request().Context())
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// HandleCleanupStatus reports current pending and expiring-soon counts for
// monitoring.
// (GET /cleanup)
func (s *Server) HandleCleanupStatus(c echo.Context) error {
	if !auth.SecretEqual(c.Request().Header.Get(secretHeader), s.CleanupSecret) {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "bad cleanup secret")
	}

	counts, err := s.Sweeper.Counts(c.Request().Context())
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, counts)
}
