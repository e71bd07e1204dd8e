package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"flowgate/pkg/models"
)

// Decision is the outcome delivered to a paused execution.
type Decision string

const (
	DecisionContinue Decision = "continue"
	DecisionAbort    Decision = "abort"
)

// Client is the outbound interface to the remote execution engine.
type Client interface {
	// CreateWorkflow mirrors the document into the engine and returns the
	// engine-assigned workflow id.
	CreateWorkflow(ctx context.Context, doc *RemoteWorkflow) (string, error)
	// UpdateWorkflow replaces an existing remote workflow's document.
	UpdateWorkflow(ctx context.Context, remoteWorkflowID string, doc *RemoteWorkflow) error
	Activate(ctx context.Context, remoteWorkflowID string) error
	Deactivate(ctx context.Context, remoteWorkflowID string) error
	// Resume delivers a review decision to a paused execution.
	Resume(ctx context.Context, remoteExecutionID string, decision Decision, feedback string) error
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPClient creates a new HTTPClient. Every call carries the given
// timeout so a hung engine cannot stall a caller indefinitely.
func NewHTTPClient(url, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// CreateWorkflow mirrors the document into the engine.
func (c *HTTPClient) CreateWorkflow(ctx context.Context, doc *RemoteWorkflow) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "create workflow", http.MethodPost, "/api/v1/workflows", doc, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &models.RemoteEngineError{Op: "create workflow", Err: fmt.Errorf("engine returned no workflow id")}
	}
	return created.ID, nil
}

// UpdateWorkflow replaces the remote workflow's document.
func (c *HTTPClient) UpdateWorkflow(ctx context.Context, remoteWorkflowID string, doc *RemoteWorkflow) error {
	return c.do(ctx, "update workflow", http.MethodPut, "/api/v1/workflows/"+remoteWorkflowID, doc, nil)
}

// Activate turns the remote workflow on.
func (c *HTTPClient) Activate(ctx context.Context, remoteWorkflowID string) error {
	return c.do(ctx, "activate workflow", http.MethodPost, "/api/v1/workflows/"+remoteWorkflowID+"/activate", nil, nil)
}

// Deactivate turns the remote workflow off.
func (c *HTTPClient) Deactivate(ctx context.Context, remoteWorkflowID string) error {
	return c.do(ctx, "deactivate workflow", http.MethodPost, "/api/v1/workflows/"+remoteWorkflowID+"/deactivate", nil, nil)
}

// Resume delivers a decision to a paused execution.
func (c *HTTPClient) Resume(ctx context.Context, remoteExecutionID string, decision Decision, feedback string) error {
	body := map[string]string{
		"decision": string(decision),
		"feedback": feedback,
	}
	return c.do(ctx, "resume execution", http.MethodPost, "/api/v1/executions/"+remoteExecutionID+"/resume", body, nil)
}

// do performs one engine call and maps failures onto RemoteEngineError,
// flagging 404 responses so the sync engine can fall back to create.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &models.RemoteEngineError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &models.RemoteEngineError{Op: op, Status: resp.StatusCode, NotFound: true}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &models.RemoteEngineError{Op: op, Status: resp.StatusCode}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &models.RemoteEngineError{Op: op, Err: fmt.Errorf("failed to decode response body: %w", err)}
		}
	}
	return nil
}
