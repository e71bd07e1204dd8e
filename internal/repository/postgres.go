package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowgate/pkg/models"
)

// Logger is the minimal logging interface the store needs.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// PostgresStore is the PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool, logger Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Migrate creates the schema if it does not exist. Safe to run repeatedly.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS organizations (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			domain TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS workflows (
			id UUID PRIMARY KEY,
			organization_id UUID NOT NULL REFERENCES organizations(id),
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			remote_workflow_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_org ON workflows(organization_id)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_remote ON workflows(remote_workflow_id)`,
		`CREATE TABLE IF NOT EXISTS workflow_steps (
			id UUID PRIMARY KEY,
			workflow_id UUID NOT NULL REFERENCES workflows(id),
			name TEXT NOT NULL,
			step_type TEXT NOT NULL,
			position INT NOT NULL,
			assignment JSONB,
			requirements JSONB,
			config JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (workflow_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id UUID PRIMARY KEY,
			organization_id UUID NOT NULL REFERENCES organizations(id),
			workflow_id UUID NOT NULL REFERENCES workflows(id),
			remote_execution_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'running',
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_remote ON executions(remote_execution_id)`,
		`CREATE TABLE IF NOT EXISTS review_requests (
			id UUID PRIMARY KEY,
			organization_id UUID NOT NULL REFERENCES organizations(id),
			execution_id UUID NOT NULL REFERENCES executions(id),
			step_index INT NOT NULL,
			review_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			timeout_at TIMESTAMPTZ NOT NULL,
			feedback TEXT,
			reviewed_by TEXT,
			reviewed_at TIMESTAMPTZ,
			chat_history JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_status_timeout ON review_requests(status, timeout_at)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_execution ON review_requests(execution_id)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id UUID PRIMARY KEY,
			organization_id UUID REFERENCES organizations(id),
			workflow_id UUID,
			execution_id UUID,
			event_type TEXT NOT NULL,
			actor TEXT NOT NULL,
			step_name TEXT,
			payload_hash TEXT,
			detail TEXT,
			retention_until TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_org_created ON audit_log(organization_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_retention ON audit_log(retention_until)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// GetOrganizationByDomain retrieves an organization by its email domain.
func (s *PostgresStore) GetOrganizationByDomain(ctx context.Context, domain string) (*models.Organization, error) {
	var org models.Organization
	err := s.db.QueryRow(ctx,
		`SELECT id, name, domain, created_at, updated_at FROM organizations WHERE domain = $1`,
		domain,
	).Scan(&org.ID, &org.Name, &org.Domain, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// CreateOrganization inserts a new organization, assigning an id if missing.
func (s *PostgresStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO organizations (id, name, domain) VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		org.ID, org.Name, org.Domain,
	).Scan(&org.CreatedAt, &org.UpdatedAt)
}

// GetWorkflow loads a workflow and its full ordered step sequence. The step
// list is read in the same call so the sync engine always converts a
// consistent snapshot.
func (s *PostgresStore) GetWorkflow(ctx context.Context, orgID, workflowID string) (*models.Workflow, error) {
	var wf models.Workflow
	err := s.db.QueryRow(ctx,
		`SELECT id, organization_id, name, status, remote_workflow_id, created_at, updated_at
		 FROM workflows WHERE id = $1 AND organization_id = $2`,
		workflowID, orgID,
	).Scan(&wf.ID, &wf.OrganizationID, &wf.Name, &wf.Status, &wf.RemoteWorkflowID, &wf.CreatedAt, &wf.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	steps, err := s.loadSteps(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	wf.Steps = steps
	return &wf, nil
}

// GetWorkflowByRemoteID resolves a workflow from the remote engine's id.
// Used by webhook handlers, which carry no caller organization.
func (s *PostgresStore) GetWorkflowByRemoteID(ctx context.Context, remoteWorkflowID string) (*models.Workflow, error) {
	var wf models.Workflow
	err := s.db.QueryRow(ctx,
		`SELECT id, organization_id, name, status, remote_workflow_id, created_at, updated_at
		 FROM workflows WHERE remote_workflow_id = $1`,
		remoteWorkflowID,
	).Scan(&wf.ID, &wf.OrganizationID, &wf.Name, &wf.Status, &wf.RemoteWorkflowID, &wf.CreatedAt, &wf.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

func (s *PostgresStore) loadSteps(ctx context.Context, workflowID string) ([]models.Step, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, workflow_id, name, step_type, position, assignment, requirements, config, created_at, updated_at
		 FROM workflow_steps WHERE workflow_id = $1 ORDER BY position`,
		workflowID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []models.Step
	for rows.Next() {
		var step models.Step
		var assignment, requirements []byte
		if err := rows.Scan(&step.ID, &step.WorkflowID, &step.Name, &step.Type, &step.Position,
			&assignment, &requirements, &step.Config, &step.CreatedAt, &step.UpdatedAt); err != nil {
			return nil, err
		}
		if len(assignment) > 0 {
			if err := json.Unmarshal(assignment, &step.Assignment); err != nil {
				return nil, fmt.Errorf("step %s: bad assignment: %w", step.ID, err)
			}
		}
		if len(requirements) > 0 {
			if err := json.Unmarshal(requirements, &step.Requirements); err != nil {
				return nil, fmt.Errorf("step %s: bad requirements: %w", step.ID, err)
			}
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// CreateWorkflow inserts a workflow and its steps in a single transaction.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}
	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO workflows (id, organization_id, name, status, remote_workflow_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		workflow.ID, workflow.OrganizationID, workflow.Name, workflow.Status, workflow.RemoteWorkflowID,
	)
	if err != nil {
		return err
	}

	for i := range workflow.Steps {
		step := &workflow.Steps[i]
		if step.ID == "" {
			step.ID = uuid.New().String()
		}
		step.WorkflowID = workflow.ID

		var assignment, requirements []byte
		if step.Assignment != nil {
			if assignment, err = json.Marshal(step.Assignment); err != nil {
				return err
			}
		}
		if step.Requirements != nil {
			if requirements, err = json.Marshal(step.Requirements); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO workflow_steps (id, workflow_id, name, step_type, position, assignment, requirements, config)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			step.ID, step.WorkflowID, step.Name, step.Type, step.Position, assignment, requirements, step.Config,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// SetWorkflowActivation persists the workflow status and remote id as one
// update, committed only after the remote side has been brought in line.
func (s *PostgresStore) SetWorkflowActivation(ctx context.Context, orgID, workflowID string, status models.WorkflowStatus, remoteWorkflowID *string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflows SET status = $1, remote_workflow_id = $2, updated_at = now()
		 WHERE id = $3 AND organization_id = $4`,
		status, remoteWorkflowID, workflowID, orgID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetExecution retrieves an execution scoped to an organization.
func (s *PostgresStore) GetExecution(ctx context.Context, orgID, executionID string) (*models.Execution, error) {
	return s.scanExecution(ctx,
		`SELECT id, organization_id, workflow_id, remote_execution_id, status, error, created_at, completed_at
		 FROM executions WHERE id = $1 AND organization_id = $2`,
		executionID, orgID)
}

// GetExecutionByRemoteID resolves an execution from the remote engine's id.
func (s *PostgresStore) GetExecutionByRemoteID(ctx context.Context, remoteExecutionID string) (*models.Execution, error) {
	return s.scanExecution(ctx,
		`SELECT id, organization_id, workflow_id, remote_execution_id, status, error, created_at, completed_at
		 FROM executions WHERE remote_execution_id = $1`,
		remoteExecutionID)
}

func (s *PostgresStore) scanExecution(ctx context.Context, query string, args ...any) (*models.Execution, error) {
	var e models.Execution
	err := s.db.QueryRow(ctx, query, args...).Scan(
		&e.ID, &e.OrganizationID, &e.WorkflowID, &e.RemoteExecutionID,
		&e.Status, &e.Error, &e.CreatedAt, &e.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateExecution inserts a new execution row.
func (s *PostgresStore) CreateExecution(ctx context.Context, execution *models.Execution) error {
	if execution.ID == "" {
		execution.ID = uuid.New().String()
	}
	if execution.Status == "" {
		execution.Status = models.ExecutionStatusRunning
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO executions (id, organization_id, workflow_id, remote_execution_id, status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		execution.ID, execution.OrganizationID, execution.WorkflowID, execution.RemoteExecutionID, execution.Status,
	).Scan(&execution.CreatedAt)
}

// MarkExecutionWaiting flips a running execution to waiting_review.
func (s *PostgresStore) MarkExecutionWaiting(ctx context.Context, executionID string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE executions SET status = $1 WHERE id = $2 AND status = $3`,
		models.ExecutionStatusWaitingReview, executionID, models.ExecutionStatusRunning,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ResumeExecution flips an execution back to running after its review gate
// was approved.
func (s *PostgresStore) ResumeExecution(ctx context.Context, executionID string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE executions SET status = $1 WHERE id = $2 AND status = $3`,
		models.ExecutionStatusRunning, executionID, models.ExecutionStatusWaitingReview,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FinishExecution transitions an execution to a terminal status. Applies
// only while the execution is still running or waiting on a review.
func (s *PostgresStore) FinishExecution(ctx context.Context, executionID string, status models.ExecutionStatus, errText *string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE executions SET status = $1, error = $2, completed_at = now()
		 WHERE id = $3 AND status IN ($4, $5)`,
		status, errText, executionID,
		models.ExecutionStatusRunning, models.ExecutionStatusWaitingReview,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CreateReview inserts a new pending review request.
func (s *PostgresStore) CreateReview(ctx context.Context, review *models.ReviewRequest) error {
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	if review.Status == "" {
		review.Status = models.ReviewStatusPending
	}
	chat := []byte("[]")
	if review.ChatHistory != nil {
		var err error
		if chat, err = json.Marshal(review.ChatHistory); err != nil {
			return err
		}
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO review_requests (id, organization_id, execution_id, step_index, review_type, status, timeout_at, chat_history)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`,
		review.ID, review.OrganizationID, review.ExecutionID, review.StepIndex,
		review.ReviewType, review.Status, review.TimeoutAt, chat,
	).Scan(&review.CreatedAt)
}

// GetReview retrieves a review request scoped to an organization.
func (s *PostgresStore) GetReview(ctx context.Context, orgID, reviewID string) (*models.ReviewRequest, error) {
	var r models.ReviewRequest
	var chat []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, organization_id, execution_id, step_index, review_type, status, timeout_at,
		        feedback, reviewed_by, reviewed_at, chat_history, created_at
		 FROM review_requests WHERE id = $1 AND organization_id = $2`,
		reviewID, orgID,
	).Scan(&r.ID, &r.OrganizationID, &r.ExecutionID, &r.StepIndex, &r.ReviewType, &r.Status,
		&r.TimeoutAt, &r.Feedback, &r.ReviewedBy, &r.ReviewedAt, &chat, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(chat, &r.ChatHistory); err != nil {
		return nil, fmt.Errorf("review %s: bad chat history: %w", r.ID, err)
	}
	return &r, nil
}

// ListPendingReviews returns all pending reviews for an organization,
// oldest deadline first.
func (s *PostgresStore) ListPendingReviews(ctx context.Context, orgID string) ([]*models.ReviewRequest, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, organization_id, execution_id, step_index, review_type, status, timeout_at,
		        feedback, reviewed_by, reviewed_at, chat_history, created_at
		 FROM review_requests WHERE organization_id = $1 AND status = $2
		 ORDER BY timeout_at`,
		orgID, models.ReviewStatusPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []*models.ReviewRequest
	for rows.Next() {
		var r models.ReviewRequest
		var chat []byte
		if err := rows.Scan(&r.ID, &r.OrganizationID, &r.ExecutionID, &r.StepIndex, &r.ReviewType,
			&r.Status, &r.TimeoutAt, &r.Feedback, &r.ReviewedBy, &r.ReviewedAt, &chat, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(chat, &r.ChatHistory); err != nil {
			return nil, fmt.Errorf("review %s: bad chat history: %w", r.ID, err)
		}
		reviews = append(reviews, &r)
	}
	return reviews, rows.Err()
}

// DecideReview applies a terminal status to a review if and only if it is
// still pending. Zero rows affected means a concurrent decision already won.
func (s *PostgresStore) DecideReview(ctx context.Context, orgID, reviewID string, status models.ReviewStatus, reviewedBy string, feedback *string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE review_requests
		 SET status = $1, reviewed_by = $2, feedback = $3, reviewed_at = now()
		 WHERE id = $4 AND organization_id = $5 AND status = $6`,
		status, reviewedBy, feedback, reviewID, orgID, models.ReviewStatusPending,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AppendChat appends one message to a review's thread while it is pending.
// The append and the pending check are a single statement, so a message can
// never land on a decided review.
func (s *PostgresStore) AppendChat(ctx context.Context, orgID, reviewID string, msg models.ChatMessage) (bool, error) {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE review_requests
		 SET chat_history = chat_history || $1::jsonb
		 WHERE id = $2 AND organization_id = $3 AND status = $4`,
		encoded, reviewID, orgID, models.ReviewStatusPending,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireStaleReviews bulk-expires every pending review whose deadline has
// passed. One conditional statement; re-running finds nothing left.
func (s *PostgresStore) ExpireStaleReviews(ctx context.Context, now time.Time, note string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE review_requests
		 SET status = $1, feedback = $2, reviewed_by = 'system', reviewed_at = now()
		 WHERE status = $3 AND timeout_at < $4`,
		models.ReviewStatusExpired, note, models.ReviewStatusPending, now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FailExecutionsWithExpiredReviews fails every waiting_review execution
// whose reviews have all expired. Pairs with ExpireStaleReviews to restore
// the waiting-implies-pending invariant.
func (s *PostgresStore) FailExecutionsWithExpiredReviews(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE executions SET status = $1, error = $2, completed_at = now()
		 WHERE status = $3
		   AND EXISTS (SELECT 1 FROM review_requests r WHERE r.execution_id = executions.id AND r.status = $4)
		   AND NOT EXISTS (SELECT 1 FROM review_requests r WHERE r.execution_id = executions.id AND r.status = $5)`,
		models.ExecutionStatusFailed, models.ErrMsgReviewTimedOut,
		models.ExecutionStatusWaitingReview,
		models.ReviewStatusExpired, models.ReviewStatusPending,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ReapStuckExecutions force-fails executions stuck in waiting_review without
// any pending review since before olderThan. Backstop for reviews that were
// never created due to a partial failure upstream.
func (s *PostgresStore) ReapStuckExecutions(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE executions SET status = $1, error = $2, completed_at = now()
		 WHERE status = $3 AND created_at < $4
		   AND NOT EXISTS (SELECT 1 FROM review_requests r WHERE r.execution_id = executions.id AND r.status = $5)`,
		models.ExecutionStatusFailed, models.ErrMsgStuckWaiting,
		models.ExecutionStatusWaitingReview, olderThan,
		models.ReviewStatusPending,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountPending returns the monitoring counts for the cleanup endpoint.
func (s *PostgresStore) CountPending(ctx context.Context, soon time.Time) (*PendingCounts, error) {
	var counts PendingCounts
	err := s.db.QueryRow(ctx,
		`SELECT
			(SELECT count(*) FROM review_requests WHERE status = $1),
			(SELECT count(*) FROM review_requests WHERE status = $1 AND timeout_at < $2),
			(SELECT count(*) FROM executions WHERE status = $3)`,
		models.ReviewStatusPending, soon, models.ExecutionStatusWaitingReview,
	).Scan(&counts.PendingReviews, &counts.ExpiringSoon, &counts.WaitingExecutions)
	if err != nil {
		return nil, err
	}
	return &counts, nil
}

// InsertAudit appends one immutable audit row. System rows (the sweeper's
// per-run summary) carry no organization and are stored with a NULL owner.
func (s *PostgresStore) InsertAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	var orgID *string
	if entry.OrganizationID != "" {
		orgID = &entry.OrganizationID
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO audit_log (id, organization_id, workflow_id, execution_id, event_type, actor, step_name, payload_hash, detail, retention_until)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING created_at`,
		entry.ID, orgID, entry.WorkflowID, entry.ExecutionID,
		entry.EventType, entry.Actor, entry.StepName, entry.PayloadHash, entry.Detail, entry.RetentionUntil,
	).Scan(&entry.CreatedAt)
}

// QueryAudit returns one page of audit rows, newest first.
func (s *PostgresStore) QueryAudit(ctx context.Context, orgID string, filter models.AuditFilter, page, pageSize int) (*models.AuditPage, error) {
	where, args := auditWhere(orgID, filter)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM audit_log`+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(
		`SELECT id, organization_id, workflow_id, execution_id, event_type, actor, step_name, payload_hash, detail, retention_until, created_at
		 FROM audit_log%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		where, pageSize, offset,
	)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &models.AuditPage{Entries: []*models.AuditLogEntry{}, Total: total, Page: page, PageSize: pageSize}
	for rows.Next() {
		var e models.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.WorkflowID, &e.ExecutionID, &e.EventType,
			&e.Actor, &e.StepName, &e.PayloadHash, &e.Detail, &e.RetentionUntil, &e.CreatedAt); err != nil {
			return nil, err
		}
		result.Entries = append(result.Entries, &e)
	}
	return result, rows.Err()
}

// SummarizeAudit returns per-day event rollups for compliance reporting.
func (s *PostgresStore) SummarizeAudit(ctx context.Context, orgID string, filter models.AuditFilter) ([]*models.AuditDaySummary, error) {
	where, args := auditWhere(orgID, filter)
	query := `SELECT date_trunc('day', created_at) AS day,
			count(*),
			count(*) FILTER (WHERE event_type = 'review_request'),
			count(*) FILTER (WHERE event_type = 'review_response'),
			count(*) FILTER (WHERE event_type IN ('node_error', 'execution_failed')),
			count(*) FILTER (WHERE actor = 'human'),
			count(*) FILTER (WHERE actor = 'ai')
		 FROM audit_log` + where + ` GROUP BY day ORDER BY day DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*models.AuditDaySummary
	for rows.Next() {
		var d models.AuditDaySummary
		if err := rows.Scan(&d.Day, &d.TotalEvents, &d.ReviewRequests, &d.ReviewResponses,
			&d.Failures, &d.HumanEvents, &d.AIEvents); err != nil {
			return nil, err
		}
		summaries = append(summaries, &d)
	}
	return summaries, rows.Err()
}

// PurgeExpiredAudit deletes rows past their retention window.
func (s *PostgresStore) PurgeExpiredAudit(ctx context.Context, orgID string, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM audit_log WHERE organization_id = $1 AND retention_until < $2`,
		orgID, now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// auditWhere builds the shared WHERE clause for audit queries.
func auditWhere(orgID string, filter models.AuditFilter) (string, []any) {
	clauses := []string{"organization_id = $1"}
	args := []any{orgID}

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.WorkflowID != "" {
		add("workflow_id = $%d", filter.WorkflowID)
	}
	if filter.ExecutionID != "" {
		add("execution_id = $%d", filter.ExecutionID)
	}
	if filter.EventType != "" {
		add("event_type = $%d", string(filter.EventType))
	}
	if filter.Actor != "" {
		add("actor = $%d", string(filter.Actor))
	}
	if filter.StartDate != nil {
		add("created_at >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		add("created_at <= $%d", *filter.EndDate)
	}

	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}
