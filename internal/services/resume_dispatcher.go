package services

import (
	"context"

	"flowgate/internal/engine"
	"flowgate/pkg/models"
)

// Dispatcher notifies the remote engine of a decided review gate.
type Dispatcher interface {
	Dispatch(ctx context.Context, execution *models.Execution, decision engine.Decision, feedback string)
}

// ResumeDispatcher delivers review decisions to paused remote executions.
// Dispatch is fire-and-forget: the local decision is already durable, so an
// unreachable engine is logged and audited but never surfaced to the
// reviewer. The engine's own execution timeout is the consistency backstop.
type ResumeDispatcher struct {
	client engine.Client
	audit  *AuditService
	logger Logger
}

// NewResumeDispatcher creates a new ResumeDispatcher.
func NewResumeDispatcher(client engine.Client, audit *AuditService, logger Logger) *ResumeDispatcher {
	return &ResumeDispatcher{client: client, audit: audit, logger: logger}
}

// Dispatch calls the engine's resume endpoint for the execution. Resume is
// idempotent on the engine side: an already-resumed execution no-ops.
func (d *ResumeDispatcher) Dispatch(ctx context.Context, execution *models.Execution, decision engine.Decision, feedback string) {
	err := d.client.Resume(ctx, execution.RemoteExecutionID, decision, feedback)

	detail := "delivered " + string(decision)
	if err != nil {
		detail = "failed to deliver " + string(decision) + ": " + err.Error()
		d.logger.Error("resume dispatch failed",
			"execution_id", execution.ID,
			"remote_execution_id", execution.RemoteExecutionID,
			"decision", decision,
			"error", err,
		)
	}

	_ = d.audit.Record(ctx, Event{
		OrganizationID: execution.OrganizationID,
		WorkflowID:     execution.WorkflowID,
		ExecutionID:    execution.ID,
		EventType:      models.AuditEventResumeDispatch,
		Actor:          models.ActorSystem,
		Detail:         detail,
	})
}
