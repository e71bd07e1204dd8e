package models

import (
	"time"
)

// ReviewStatus represents the state of a review gate. pending is the only
// non-terminal state; once a review leaves pending no further transition is
// permitted.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
	ReviewStatusExpired  ReviewStatus = "expired"
)

// ChatMessage is a single entry in a review's conversation thread.
type ChatMessage struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ReviewRequest is a human-in-the-loop checkpoint raised by an in-flight
// execution. It is a one-shot latch: created pending, terminated exactly
// once by a decision or by expiry.
type ReviewRequest struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id"`
	ExecutionID    string        `json:"execution_id"`
	StepIndex      int           `json:"step_index"`
	ReviewType     string        `json:"review_type"`
	Status         ReviewStatus  `json:"status"`
	TimeoutAt      time.Time     `json:"timeout_at"`
	Feedback       *string       `json:"feedback,omitempty"`
	ReviewedBy     *string       `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time    `json:"reviewed_at,omitempty"`
	ChatHistory    []ChatMessage `json:"chat_history,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Terminal reports whether the review has left the pending state.
func (r *ReviewRequest) Terminal() bool {
	return r.Status != ReviewStatusPending
}
