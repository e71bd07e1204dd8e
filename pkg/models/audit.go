package models

import (
	"time"
)

// AuditEventType classifies an audit log entry
type AuditEventType string

const (
	AuditEventExecutionStart    AuditEventType = "execution_start"
	AuditEventNodeStart         AuditEventType = "node_start"
	AuditEventNodeComplete      AuditEventType = "node_complete"
	AuditEventNodeError         AuditEventType = "node_error"
	AuditEventReviewRequest     AuditEventType = "review_request"
	AuditEventReviewResponse    AuditEventType = "review_response"
	AuditEventExecutionComplete AuditEventType = "execution_complete"
	AuditEventExecutionFailed   AuditEventType = "execution_failed"
	AuditEventCleanupSummary    AuditEventType = "cleanup_summary"
	AuditEventWorkflowActivate  AuditEventType = "workflow_activate"
	AuditEventResumeDispatch    AuditEventType = "resume_dispatch"
)

// AuditActor identifies who caused an audited event
type AuditActor string

const (
	ActorAI     AuditActor = "ai"
	ActorHuman  AuditActor = "human"
	ActorSystem AuditActor = "system"
)

// AuditLogEntry is one immutable row in the audit trail. Sensitive payloads
// are never stored raw; only a one-way hash is kept. Rows are removed solely
// by the retention purge.
type AuditLogEntry struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	WorkflowID     *string        `json:"workflow_id,omitempty"`
	ExecutionID    *string        `json:"execution_id,omitempty"`
	EventType      AuditEventType `json:"event_type"`
	Actor          AuditActor     `json:"actor"`
	StepName       *string        `json:"step_name,omitempty"`
	PayloadHash    *string        `json:"payload_hash,omitempty"`
	Detail         *string        `json:"detail,omitempty"`
	RetentionUntil time.Time      `json:"retention_until"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AuditFilter narrows an audit query. Zero values mean "no constraint".
type AuditFilter struct {
	WorkflowID  string
	ExecutionID string
	EventType   AuditEventType
	Actor       AuditActor
	StartDate   *time.Time
	EndDate     *time.Time
}

// AuditPage is one page of audit results, newest first.
type AuditPage struct {
	Entries  []*AuditLogEntry `json:"entries"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// AuditDaySummary is a per-day compliance rollup returned by summary queries.
type AuditDaySummary struct {
	Day             time.Time `json:"day"`
	TotalEvents     int       `json:"total_events"`
	ReviewRequests  int       `json:"review_requests"`
	ReviewResponses int       `json:"review_responses"`
	Failures        int       `json:"failures"`
	HumanEvents     int       `json:"human_events"`
	AIEvents        int       `json:"ai_events"`
}
