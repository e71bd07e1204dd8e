package repository

import (
	"context"
	"time"

	"flowgate/pkg/models"
)

// SweepResult carries the row counts of one cleanup run.
type SweepResult struct {
	ExpiredReviews   int64 `json:"expired_reviews"`
	FailedExecutions int64 `json:"failed_executions"`
	ReapedExecutions int64 `json:"reaped_executions"`
}

// PendingCounts is the monitoring snapshot returned by GET /cleanup.
type PendingCounts struct {
	PendingReviews    int `json:"pending_reviews"`
	ExpiringSoon      int `json:"expiring_soon"`
	WaitingExecutions int `json:"waiting_executions"`
}

// Store is the persistence boundary for the orchestration core. Every state
// transition is a conditional write; methods returning (bool, error) report
// applied=false when the row was not in the expected prior state, which is a
// normal concurrent-loser outcome, not an error.
type Store interface {
	// Organizations
	GetOrganizationByDomain(ctx context.Context, domain string) (*models.Organization, error)
	CreateOrganization(ctx context.Context, org *models.Organization) error

	// Workflows
	GetWorkflow(ctx context.Context, orgID, workflowID string) (*models.Workflow, error)
	GetWorkflowByRemoteID(ctx context.Context, remoteWorkflowID string) (*models.Workflow, error)
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) error
	// SetWorkflowActivation persists status and remote id in a single update.
	SetWorkflowActivation(ctx context.Context, orgID, workflowID string, status models.WorkflowStatus, remoteWorkflowID *string) error

	// Executions
	GetExecution(ctx context.Context, orgID, executionID string) (*models.Execution, error)
	GetExecutionByRemoteID(ctx context.Context, remoteExecutionID string) (*models.Execution, error)
	CreateExecution(ctx context.Context, execution *models.Execution) error
	MarkExecutionWaiting(ctx context.Context, executionID string) (bool, error)
	ResumeExecution(ctx context.Context, executionID string) (bool, error)
	FinishExecution(ctx context.Context, executionID string, status models.ExecutionStatus, errText *string) (bool, error)

	// Review gates
	CreateReview(ctx context.Context, review *models.ReviewRequest) error
	GetReview(ctx context.Context, orgID, reviewID string) (*models.ReviewRequest, error)
	ListPendingReviews(ctx context.Context, orgID string) ([]*models.ReviewRequest, error)
	// DecideReview is the one-shot latch: applies only while status=pending.
	DecideReview(ctx context.Context, orgID, reviewID string, status models.ReviewStatus, reviewedBy string, feedback *string) (bool, error)
	// AppendChat applies only while status=pending.
	AppendChat(ctx context.Context, orgID, reviewID string, msg models.ChatMessage) (bool, error)

	// Cleanup sweeps: bulk conditional updates, safe to re-run.
	ExpireStaleReviews(ctx context.Context, now time.Time, note string) (int64, error)
	FailExecutionsWithExpiredReviews(ctx context.Context) (int64, error)
	ReapStuckExecutions(ctx context.Context, olderThan time.Time) (int64, error)
	CountPending(ctx context.Context, soon time.Time) (*PendingCounts, error)

	// Audit trail
	InsertAudit(ctx context.Context, entry *models.AuditLogEntry) error
	QueryAudit(ctx context.Context, orgID string, filter models.AuditFilter, page, pageSize int) (*models.AuditPage, error)
	SummarizeAudit(ctx context.Context, orgID string, filter models.AuditFilter) ([]*models.AuditDaySummary, error)
	PurgeExpiredAudit(ctx context.Context, orgID string, now time.Time) (int64, error)

	Ping(ctx context.Context) error
}
