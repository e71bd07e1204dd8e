package services

import (
	"context"
	"strings"
	"time"

	"flowgate/internal/engine"
	"flowgate/internal/repository"
	"flowgate/pkg/models"
)

// ReviewService arbitrates review gates: the human-in-the-loop checkpoints a
// running execution pauses on. A gate is a one-shot latch; every transition
// out of pending is a single conditional write, so concurrent deciders race
// safely and the loser observes a no-op.
type ReviewService struct {
	store      repository.Store
	dispatcher Dispatcher
	audit      *AuditService
	logger     Logger
	now        func() time.Time
}

// NewReviewService creates a new ReviewService.
func NewReviewService(store repository.Store, dispatcher Dispatcher, audit *AuditService, logger Logger) *ReviewService {
	return &ReviewService{
		store:      store,
		dispatcher: dispatcher,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

// DecisionResult reports what a decide call actually did. Applied=false
// means a concurrent decision already won; Review then holds the re-read
// actual state, which the caller should display instead of its own intent.
type DecisionResult struct {
	Review  *models.ReviewRequest `json:"review"`
	Applied bool                  `json:"applied"`
}

// Approve resolves a pending review as approved and lets the paused
// execution continue. Feedback is optional.
func (s *ReviewService) Approve(ctx context.Context, orgID, reviewID, reviewerID string, feedback string) (*DecisionResult, error) {
	return s.decide(ctx, orgID, reviewID, reviewerID, feedback, models.ReviewStatusApproved)
}

// Reject resolves a pending review as rejected and aborts the paused
// execution. Feedback is mandatory: rejecting without a reason fails
// validation before any state change.
func (s *ReviewService) Reject(ctx context.Context, orgID, reviewID, reviewerID string, feedback string) (*DecisionResult, error) {
	if strings.TrimSpace(feedback) == "" {
		return nil, models.NewValidationError("feedback", "rejection requires a reason")
	}
	return s.decide(ctx, orgID, reviewID, reviewerID, feedback, models.ReviewStatusRejected)
}

func (s *ReviewService) decide(ctx context.Context, orgID, reviewID, reviewerID, feedback string, status models.ReviewStatus) (*DecisionResult, error) {
	review, err := s.store.GetReview(ctx, orgID, reviewID)
	if err != nil {
		return nil, err
	}

	var fb *string
	if feedback != "" {
		fb = &feedback
	}
	applied, err := s.store.DecideReview(ctx, orgID, reviewID, status, reviewerID, fb)
	if err != nil {
		return nil, &models.PersistenceError{Op: "decide review", Err: err}
	}
	if !applied {
		// A concurrent decision won the race. Re-read so the caller sees
		// the actual outcome rather than assuming its command applied.
		current, err := s.store.GetReview(ctx, orgID, reviewID)
		if err != nil {
			return nil, err
		}
		return &DecisionResult{Review: current, Applied: false}, nil
	}

	execution, err := s.store.GetExecution(ctx, orgID, review.ExecutionID)
	if err != nil {
		s.logger.Error("decided review has no loadable execution",
			"review_id", reviewID, "execution_id", review.ExecutionID, "error", err)
	} else {
		s.settleExecution(ctx, execution, status, feedback)
	}

	_ = s.audit.Record(ctx, Event{
		OrganizationID: orgID,
		ExecutionID:    review.ExecutionID,
		EventType:      models.AuditEventReviewResponse,
		Actor:          models.ActorHuman,
		Detail:         string(status) + " by " + reviewerID,
		Payload:        map[string]string{"feedback": feedback},
	})

	decided, err := s.store.GetReview(ctx, orgID, reviewID)
	if err != nil {
		return nil, err
	}
	return &DecisionResult{Review: decided, Applied: true}, nil
}

// settleExecution updates the local execution for the decision and notifies
// the remote engine. Dispatch failures stay internal to the dispatcher.
func (s *ReviewService) settleExecution(ctx context.Context, execution *models.Execution, status models.ReviewStatus, feedback string) {
	if status == models.ReviewStatusApproved {
		if _, err := s.store.ResumeExecution(ctx, execution.ID); err != nil {
			s.logger.Error("failed to mark execution running", "execution_id", execution.ID, "error", err)
		}
		s.dispatcher.Dispatch(ctx, execution, engine.DecisionContinue, feedback)
		return
	}

	errText := "Review rejected: " + feedback
	if _, err := s.store.FinishExecution(ctx, execution.ID, models.ExecutionStatusFailed, &errText); err != nil {
		s.logger.Error("failed to mark execution failed", "execution_id", execution.ID, "error", err)
	}
	s.dispatcher.Dispatch(ctx, execution, engine.DecisionAbort, feedback)
}

// AppendChat adds a message to a pending review's thread, letting a human
// steer the paused agent before deciding. Appending after the gate closed is
// rejected, not dropped, so the UI can tell the user the window closed.
func (s *ReviewService) AppendChat(ctx context.Context, orgID, reviewID, sender, text string) (*models.ChatMessage, error) {
	if strings.TrimSpace(sender) == "" {
		return nil, models.NewValidationError("sender", "required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, models.NewValidationError("text", "required")
	}

	msg := models.ChatMessage{Sender: sender, Text: text, Timestamp: s.now()}
	applied, err := s.store.AppendChat(ctx, orgID, reviewID, msg)
	if err != nil {
		return nil, &models.PersistenceError{Op: "append chat", Err: err}
	}
	if !applied {
		// Either the review does not exist for this organization or it has
		// already been decided; disambiguate for the caller.
		if _, err := s.store.GetReview(ctx, orgID, reviewID); err != nil {
			return nil, err
		}
		return nil, models.NewValidationError("review", "review is no longer pending")
	}
	return &msg, nil
}

// Get returns one review scoped to the caller's organization.
func (s *ReviewService) Get(ctx context.Context, orgID, reviewID string) (*models.ReviewRequest, error) {
	return s.store.GetReview(ctx, orgID, reviewID)
}

// ListPending returns the organization's open review gates, oldest deadline
// first.
func (s *ReviewService) ListPending(ctx context.Context, orgID string) ([]*models.ReviewRequest, error) {
	return s.store.ListPendingReviews(ctx, orgID)
}

// CreateFromWebhook handles the engine's pause callback: it records a
// pending review gate and flips the execution to waiting_review. The owning
// organization is resolved from the referenced workflow, since the engine
// carries no user identity.
func (s *ReviewService) CreateFromWebhook(ctx context.Context, payload *engine.ReviewRequestPayload) (*models.ReviewRequest, error) {
	workflow, err := s.store.GetWorkflowByRemoteID(ctx, payload.RemoteWorkflowID)
	if err != nil {
		return nil, err
	}

	execution, err := s.store.GetExecutionByRemoteID(ctx, payload.RemoteExecutionID)
	if err == nil && execution.OrganizationID != workflow.OrganizationID {
		return nil, models.ErrNotFound
	}
	if err != nil {
		// First time we hear about this execution; mirror it locally.
		execution = &models.Execution{
			OrganizationID:    workflow.OrganizationID,
			WorkflowID:        workflow.ID,
			RemoteExecutionID: payload.RemoteExecutionID,
			Status:            models.ExecutionStatusRunning,
		}
		if err := s.store.CreateExecution(ctx, execution); err != nil {
			return nil, &models.PersistenceError{Op: "create execution", Err: err}
		}
		_ = s.audit.Record(ctx, Event{
			OrganizationID: workflow.OrganizationID,
			WorkflowID:     workflow.ID,
			ExecutionID:    execution.ID,
			EventType:      models.AuditEventExecutionStart,
			Actor:          models.ActorAI,
		})
	}

	review := &models.ReviewRequest{
		OrganizationID: workflow.OrganizationID,
		ExecutionID:    execution.ID,
		StepIndex:      payload.StepIndex,
		ReviewType:     payload.ReviewType,
		Status:         models.ReviewStatusPending,
		TimeoutAt:      s.now().Add(time.Duration(payload.TimeoutSeconds) * time.Second),
	}
	if err := s.store.CreateReview(ctx, review); err != nil {
		return nil, &models.PersistenceError{Op: "create review", Err: err}
	}

	if _, err := s.store.MarkExecutionWaiting(ctx, execution.ID); err != nil {
		s.logger.Error("failed to mark execution waiting", "execution_id", execution.ID, "error", err)
	}

	_ = s.audit.Record(ctx, Event{
		OrganizationID: workflow.OrganizationID,
		WorkflowID:     workflow.ID,
		ExecutionID:    execution.ID,
		EventType:      models.AuditEventReviewRequest,
		Actor:          models.ActorAI,
		Payload:        payload,
	})

	return review, nil
}

// FinishFromWebhook handles the engine's completion and failure callbacks.
// The transition is conditional, so a callback arriving after the sweeper
// already failed the execution is a no-op.
func (s *ReviewService) FinishFromWebhook(ctx context.Context, payload *engine.ExecutionEndPayload, failed bool) (bool, error) {
	execution, err := s.store.GetExecutionByRemoteID(ctx, payload.RemoteExecutionID)
	if err != nil {
		return false, err
	}

	status := models.ExecutionStatusCompleted
	eventType := models.AuditEventExecutionComplete
	var errText *string
	if failed {
		status = models.ExecutionStatusFailed
		eventType = models.AuditEventExecutionFailed
		if payload.Error != "" {
			errText = &payload.Error
		}
	}

	applied, err := s.store.FinishExecution(ctx, execution.ID, status, errText)
	if err != nil {
		return false, &models.PersistenceError{Op: "finish execution", Err: err}
	}
	if applied {
		_ = s.audit.Record(ctx, Event{
			OrganizationID: execution.OrganizationID,
			WorkflowID:     execution.WorkflowID,
			ExecutionID:    execution.ID,
			EventType:      eventType,
			Actor:          models.ActorSystem,
			Detail:         payload.Error,
		})
	}
	return applied, nil
}
