package models

import (
	"time"
)

// ExecutionStatus represents the state of a single workflow run
type ExecutionStatus string

const (
	ExecutionStatusRunning       ExecutionStatus = "running"
	ExecutionStatusWaitingReview ExecutionStatus = "waiting_review"
	ExecutionStatusCompleted     ExecutionStatus = "completed"
	ExecutionStatusFailed        ExecutionStatus = "failed"
)

// Execution is one run of a workflow inside the remote engine, mirrored
// locally so that review gates and cleanup can be arbitrated here.
//
// Invariant: an execution in waiting_review has at least one pending
// ReviewRequest. The sweeper restores this invariant when a review is
// abandoned or was never created.
type Execution struct {
	ID                string          `json:"id"`
	OrganizationID    string          `json:"organization_id"`
	WorkflowID        string          `json:"workflow_id"`
	RemoteExecutionID string          `json:"remote_execution_id"`
	Status            ExecutionStatus `json:"status"`
	Error             *string         `json:"error,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// Error messages written by the sweeper when it force-fails executions.
const (
	ErrMsgReviewTimedOut = "Review request timed out"
	ErrMsgStuckWaiting   = "stuck in waiting state"
)
