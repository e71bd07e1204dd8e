// Package engine talks to the remote workflow-execution engine: it converts
// internal workflow definitions into the engine's document format and wraps
// the engine's HTTP API.
package engine

import (
	"fmt"

	"flowgate/pkg/models"
)

// RemoteNode is one node in the engine's workflow graph.
type RemoteNode struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Position   [2]int         `json:"position"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// RemoteConnection is a directed edge between two nodes.
type RemoteConnection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RemoteWorkflow is the engine-side representation of a workflow. It is
// produced atomically from the full step sequence; a partial document is
// never built.
type RemoteWorkflow struct {
	Name        string             `json:"name"`
	Nodes       []RemoteNode       `json:"nodes"`
	Connections []RemoteConnection `json:"connections"`
}

// node type names in the remote engine's vocabulary, keyed by step type.
var remoteNodeTypes = map[models.StepType]string{
	models.StepTypeTrigger:  "flowgate.trigger",
	models.StepTypeAction:   "flowgate.task",
	models.StepTypeDecision: "flowgate.reviewGate",
	models.StepTypeEnd:      "flowgate.end",
}

const nodeSpacing = 200

// Convert translates an internal workflow into the remote engine's document.
// The conversion is pure and deterministic: the same step sequence always
// yields the same document, which is what makes re-activation idempotent.
func Convert(workflow *models.Workflow) (*RemoteWorkflow, error) {
	if len(workflow.Steps) == 0 {
		return nil, models.NewValidationError("steps", "workflow has no steps")
	}

	doc := &RemoteWorkflow{
		Name:        workflow.Name,
		Nodes:       make([]RemoteNode, 0, len(workflow.Steps)),
		Connections: make([]RemoteConnection, 0, len(workflow.Steps)),
	}

	for i, step := range workflow.Steps {
		nodeType, ok := remoteNodeTypes[step.Type]
		if !ok {
			return nil, models.NewValidationError("steps", fmt.Sprintf("step %d has unknown type %q", i, step.Type))
		}

		node := RemoteNode{
			ID:       step.ID,
			Name:     step.Name,
			Type:     nodeType,
			Position: [2]int{i * nodeSpacing, 0},
		}
		params := map[string]any{
			"stepIndex": step.Position,
		}
		if step.Assignment != nil {
			params["assigneeKind"] = string(step.Assignment.Kind)
			params["assigneeId"] = step.Assignment.AssigneeID
		}
		if step.Requirements != nil {
			if len(step.Requirements.AllowedActions) > 0 {
				params["allowedActions"] = step.Requirements.AllowedActions
			}
			if len(step.Requirements.DeniedActions) > 0 {
				params["deniedActions"] = step.Requirements.DeniedActions
			}
		}
		node.Parameters = params
		doc.Nodes = append(doc.Nodes, node)

		if i > 0 {
			doc.Connections = append(doc.Connections, RemoteConnection{
				From: workflow.Steps[i-1].ID,
				To:   step.ID,
			})
		}
	}

	return doc, nil
}
