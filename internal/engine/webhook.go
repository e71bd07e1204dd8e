package engine

import (
	"encoding/json"
	"fmt"

	"flowgate/pkg/models"
)

// Webhook event types sent by the remote engine.
const (
	EventReviewRequest     = "review_request"
	EventExecutionComplete = "execution_complete"
	EventExecutionFailed   = "execution_failed"
)

// WebhookEvent is the envelope of an inbound engine callback. The payload is
// decoded and validated per event type before anything touches the core.
type WebhookEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ReviewRequestPayload announces that an execution paused at a review gate.
type ReviewRequestPayload struct {
	RemoteWorkflowID  string `json:"workflow_id"`
	RemoteExecutionID string `json:"execution_id"`
	StepIndex         int    `json:"step_index"`
	ReviewType        string `json:"review_type"`
	TimeoutSeconds    int    `json:"timeout_seconds"`
}

// Validate checks the payload shape. Anything malformed is rejected at the
// boundary rather than trusted into the core.
func (p *ReviewRequestPayload) Validate() error {
	if p.RemoteWorkflowID == "" {
		return models.NewValidationError("workflow_id", "required")
	}
	if p.RemoteExecutionID == "" {
		return models.NewValidationError("execution_id", "required")
	}
	if p.StepIndex < 0 {
		return models.NewValidationError("step_index", "must not be negative")
	}
	if p.ReviewType == "" {
		return models.NewValidationError("review_type", "required")
	}
	if p.TimeoutSeconds <= 0 {
		return models.NewValidationError("timeout_seconds", "must be positive")
	}
	return nil
}

// ExecutionEndPayload announces that an execution reached a terminal state
// on the engine's side.
type ExecutionEndPayload struct {
	RemoteExecutionID string `json:"execution_id"`
	Error             string `json:"error,omitempty"`
}

// Validate checks the payload shape.
func (p *ExecutionEndPayload) Validate() error {
	if p.RemoteExecutionID == "" {
		return models.NewValidationError("execution_id", "required")
	}
	return nil
}

// DecodeReviewRequest parses and validates a review_request payload.
func DecodeReviewRequest(event *WebhookEvent) (*ReviewRequestPayload, error) {
	var p ReviewRequestPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return nil, models.NewValidationError("payload", fmt.Sprintf("malformed json: %v", err))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeExecutionEnd parses and validates an execution completion payload.
func DecodeExecutionEnd(event *WebhookEvent) (*ExecutionEndPayload, error) {
	var p ExecutionEndPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return nil, models.NewValidationError("payload", fmt.Sprintf("malformed json: %v", err))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
