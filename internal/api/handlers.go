package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"flowgate/internal/auth"
	"flowgate/internal/services"
	"flowgate/pkg/models"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status (always returns 200 OK)
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "flowgate",
		Version:   "1.0.0",
	})
}

// orgID extracts the organization RequireAuth resolved at the boundary.
func orgID(c echo.Context) (string, error) {
	id, ok := auth.OrgIDFrom(c.Request().Context())
	if !ok {
		return "", problem(c, http.StatusUnauthorized, "Unauthorized", "no organization resolved for caller")
	}
	return id, nil
}

// ActivateRequest is the body of POST /workflows/:id/activate.
type ActivateRequest struct {
	Action string `json:"action"`
}

// HandleActivate drives the sync engine for one workflow.
// (POST /api/v1/workflows/:id/activate)
func (s *Server) HandleActivate(c echo.Context) error {
	ctx := c.Request().Context()
	org, err := orgID(c)
	if err != nil {
		return err
	}

	var req ActivateRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, http.StatusBadRequest, "Invalid request body", err.Error())
	}

	workflowID := c.Param("id")
	switch req.Action {
	case "activate":
		result, err := s.Sync.Activate(ctx, org, workflowID)
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(http.StatusOK, result)
	case "deactivate":
		result, err := s.Sync.Deactivate(ctx, org, workflowID)
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(http.StatusOK, result)
	default:
		return problem(c, http.StatusBadRequest, "Invalid request body", "action must be activate or deactivate")
	}
}

// HandleListPendingReviews returns the organization's open review gates.
// (GET /api/v1/reviews)
func (s *Server) HandleListPendingReviews(c echo.Context) error {
	org, err := orgID(c)
	if err != nil {
		return err
	}
	reviews, err := s.Reviews.ListPending(c.Request().Context(), org)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, reviews)
}

// HandleGetReview returns one review, including its chat thread.
// (GET /api/v1/reviews/:id)
func (s *Server) HandleGetReview(c echo.Context) error {
	org, err := orgID(c)
	if err != nil {
		return err
	}
	review, err := s.Reviews.Get(c.Request().Context(), org, c.Param("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, review)
}

// DecisionRequest is the body of POST /reviews/:id/decision.
type DecisionRequest struct {
	Decision string `json:"decision"`
	Feedback string `json:"feedback,omitempty"`
}

// HandleReviewDecision applies an approve or reject decision. A caller that
// loses a concurrent race gets applied=false and the actual review state
// back, not an error.
// (POST /api/v1/reviews/:id/decision)
func (s *Server) HandleReviewDecision(c echo.Context) error {
	ctx := c.Request().Context()
	org, err := orgID(c)
	if err != nil {
		return err
	}

	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, http.StatusBadRequest, "Invalid request body", err.Error())
	}

	reviewer := auth.EmailFrom(ctx)
	reviewID := c.Param("id")

	var result *services.DecisionResult
	switch req.Decision {
	case "approve":
		result, err = s.Reviews.Approve(ctx, org, reviewID, reviewer, req.Feedback)
	case "reject":
		result, err = s.Reviews.Reject(ctx, org, reviewID, reviewer, req.Feedback)
	default:
		return problem(c, http.StatusBadRequest, "Invalid request body", "decision must be approve or reject")
	}
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// ChatRequest is the body of POST /reviews/:id/chat.
type ChatRequest struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// HandleReviewChat appends a message to a pending review's thread.
// (POST /api/v1/reviews/:id/chat)
func (s *Server) HandleReviewChat(c echo.Context) error {
	org, err := orgID(c)
	if err != nil {
		return err
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, http.StatusBadRequest, "Invalid request body", err.Error())
	}

	msg, err := s.Reviews.AppendChat(c.Request().Context(), org, c.Param("id"), req.Sender, req.Text)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// HandleAuditQuery returns paginated audit rows, or the per-day summary
// rollup when summary=true.
// (GET /api/v1/audit)
func (s *Server) HandleAuditQuery(c echo.Context) error {
	ctx := c.Request().Context()
	org, err := orgID(c)
	if err != nil {
		return err
	}

	filter := models.AuditFilter{
		WorkflowID:  c.QueryParam("workflowId"),
		ExecutionID: c.QueryParam("executionId"),
		EventType:   models.AuditEventType(c.QueryParam("eventType")),
		Actor:       models.AuditActor(c.QueryParam("actor")),
	}
	if v := c.QueryParam("startDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return problem(c, http.StatusBadRequest, "Invalid query", "startDate must be RFC 3339")
		}
		filter.StartDate = &t
	}
	if v := c.QueryParam("endDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return problem(c, http.StatusBadRequest, "Invalid query", "endDate must be RFC 3339")
		}
		filter.EndDate = &t
	}

	if c.QueryParam("summary") == "true" {
		summaries, err := s.Audit.Summarize(ctx, org, filter)
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(http.StatusOK, summaries)
	}

	page := intQuery(c, "page", 1)
	pageSize := intQuery(c, "pageSize", 50)
	result, err := s.Audit.Query(ctx, org, filter, page, pageSize)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// HandleAuditPurge deletes audit rows past retention. Admin only.
// (POST /api/v1/audit/purge)
func (s *Server) HandleAuditPurge(c echo.Context) error {
	ctx := c.Request().Context()
	org, err := orgID(c)
	if err != nil {
		return err
	}

	purged, err := s.Audit.PurgeExpired(ctx, org, auth.IsAdminFrom(ctx))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"purged": purged})
}

func intQuery(c echo.Context, name string, fallback int) int {
	v := c.QueryParam(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
