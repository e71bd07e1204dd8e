// Package models defines the domain models for the workflow orchestration service
package models

import (
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow definition
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusPaused   WorkflowStatus = "paused"
	WorkflowStatusArchived WorkflowStatus = "archived"
)

// StepType classifies a workflow step
type StepType string

const (
	StepTypeTrigger  StepType = "trigger"
	StepTypeAction   StepType = "action"
	StepTypeDecision StepType = "decision"
	StepTypeEnd      StepType = "end"
)

// AssigneeKind identifies who performs a step
type AssigneeKind string

const (
	AssigneeAI    AssigneeKind = "ai"
	AssigneeHuman AssigneeKind = "human"
)

// Workflow represents an internally stored workflow definition. The remote
// engine holds a mirrored copy once the workflow has been activated;
// RemoteWorkflowID is the foreign key into the engine's namespace and is
// null until the first activation.
type Workflow struct {
	ID               string         `json:"id"`
	OrganizationID   string         `json:"organization_id"`
	Name             string         `json:"name"`
	Status           WorkflowStatus `json:"status"`
	RemoteWorkflowID *string        `json:"remote_workflow_id,omitempty"`
	Steps            []Step         `json:"steps,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Assignment binds a step to an AI agent or a human worker.
type Assignment struct {
	Kind       AssigneeKind `json:"kind"`
	AssigneeID string       `json:"assignee_id"`
}

// Requirements is the allow/deny blueprint restricting what actions a step's
// assignee may take while executing the step.
type Requirements struct {
	AllowedActions []string `json:"allowed_actions,omitempty"`
	DeniedActions  []string `json:"denied_actions,omitempty"`
}

// Step is a single step in a workflow. Identity is immutable; contents are
// edited out of band. The sync engine always converts the full ordered step
// sequence as one value, never a partial prefix.
type Step struct {
	ID           string        `json:"id"`
	WorkflowID   string        `json:"workflow_id"`
	Name         string        `json:"name"`
	Type         StepType      `json:"type"`
	Position     int           `json:"position"`
	Assignment   *Assignment   `json:"assignment,omitempty"`
	Requirements *Requirements `json:"requirements,omitempty"`
	Config       []byte        `json:"config,omitempty"` // JSONB
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
