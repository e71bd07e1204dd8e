package services

import (
	"context"

	"flowgate/internal/engine"
	"flowgate/internal/repository"
	"flowgate/pkg/models"
)

// SyncService keeps an internal workflow definition consistent with its
// mirrored representation in the remote execution engine.
type SyncService struct {
	store  repository.Store
	client engine.Client
	audit  *AuditService
	logger Logger
}

// NewSyncService creates a new SyncService.
func NewSyncService(store repository.Store, client engine.Client, audit *AuditService, logger Logger) *SyncService {
	return &SyncService{store: store, client: client, audit: audit, logger: logger}
}

// ActivationResult reports the outcome of an activate or deactivate call.
type ActivationResult struct {
	Status           models.WorkflowStatus `json:"status"`
	RemoteWorkflowID string                `json:"remote_workflow_id"`
}

// Activate mirrors the workflow into the remote engine and turns it on.
//
// The step sequence is loaded atomically and converted as one value; the
// conversion is deterministic, so re-activating an unchanged workflow
// produces the same remote document and is safe to retry. If the stored
// remote id points at a workflow the engine no longer has, the update falls
// back to a create and the new id is persisted — this reconciles mirrors
// deleted out-of-band. Local status is committed only after the remote
// activation succeeds, so no partial activation is ever visible.
func (s *SyncService) Activate(ctx context.Context, orgID, workflowID string) (*ActivationResult, error) {
	workflow, err := s.store.GetWorkflow(ctx, orgID, workflowID)
	if err != nil {
		return nil, err
	}
	if len(workflow.Steps) == 0 {
		return nil, models.NewValidationError("steps", "cannot activate a workflow with no steps")
	}

	doc, err := engine.Convert(workflow)
	if err != nil {
		return nil, err
	}

	remoteID, err := s.pushDocument(ctx, workflow, doc)
	if err != nil {
		return nil, err
	}

	if err := s.client.Activate(ctx, remoteID); err != nil {
		return nil, err
	}

	// Remote side is now active. A persistence failure past this point is
	// surfaced but the remote workflow is left as is; re-activation
	// reconciles because the conversion is idempotent.
	if err := s.store.SetWorkflowActivation(ctx, orgID, workflowID, models.WorkflowStatusActive, &remoteID); err != nil {
		s.logger.Error("workflow activated remotely but local persist failed",
			"workflow_id", workflowID, "remote_workflow_id", remoteID, "error", err)
		return nil, &models.PersistenceError{Op: "persist activation", Err: err}
	}

	_ = s.audit.Record(ctx, Event{
		OrganizationID: orgID,
		WorkflowID:     workflowID,
		EventType:      models.AuditEventWorkflowActivate,
		Actor:          models.ActorHuman,
		Detail:         "activated, remote id " + remoteID,
		Payload:        doc,
	})

	return &ActivationResult{Status: models.WorkflowStatusActive, RemoteWorkflowID: remoteID}, nil
}

// pushDocument updates the existing remote workflow or creates a new one,
// returning the remote id the activation should target.
func (s *SyncService) pushDocument(ctx context.Context, workflow *models.Workflow, doc *engine.RemoteWorkflow) (string, error) {
	if workflow.RemoteWorkflowID != nil {
		remoteID := *workflow.RemoteWorkflowID
		err := s.client.UpdateWorkflow(ctx, remoteID, doc)
		if err == nil {
			return remoteID, nil
		}
		if !models.IsRemoteNotFound(err) {
			return "", err
		}
		s.logger.Warn("remote workflow missing, falling back to create",
			"workflow_id", workflow.ID, "stale_remote_id", remoteID)
	}

	return s.client.CreateWorkflow(ctx, doc)
}

// Deactivate pauses the workflow. The remote deactivate call is tolerated to
// fail — the user's intent to pause is honored locally regardless, and an
// already-deactivated remote workflow is not an error.
func (s *SyncService) Deactivate(ctx context.Context, orgID, workflowID string) (*ActivationResult, error) {
	workflow, err := s.store.GetWorkflow(ctx, orgID, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.RemoteWorkflowID != nil {
		if err := s.client.Deactivate(ctx, *workflow.RemoteWorkflowID); err != nil {
			s.logger.Warn("remote deactivate failed, pausing locally anyway",
				"workflow_id", workflowID, "error", err)
		}
	}

	if err := s.store.SetWorkflowActivation(ctx, orgID, workflowID, models.WorkflowStatusPaused, workflow.RemoteWorkflowID); err != nil {
		return nil, &models.PersistenceError{Op: "persist deactivation", Err: err}
	}

	_ = s.audit.Record(ctx, Event{
		OrganizationID: orgID,
		WorkflowID:     workflowID,
		EventType:      models.AuditEventWorkflowActivate,
		Actor:          models.ActorHuman,
		Detail:         "deactivated",
	})

	result := &ActivationResult{Status: models.WorkflowStatusPaused}
	if workflow.RemoteWorkflowID != nil {
		result.RemoteWorkflowID = *workflow.RemoteWorkflowID
	}
	return result, nil
}
