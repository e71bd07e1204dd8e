// Package mcp exposes the review-gate operations as MCP tools so AI digital
// workers can inspect and decide their own pending gates. The tools call the
// same service layer as the HTTP handlers; review state transitions stay
// single conditional writes regardless of which surface drives them.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"flowgate/internal/auth"
	"flowgate/internal/services"
)

type Server struct {
	mcpServer *server.MCPServer
	reviews   *services.ReviewService
}

func NewServer(reviews *services.ReviewService) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Flowgate Review Gates",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		reviews: reviews,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_pending_reviews",
			mcp.WithDescription("List the review gates currently waiting for a decision"),
		),
		s.handleListPending,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"approve_review",
			mcp.WithDescription("Approve a pending review gate so the paused execution continues"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The ID of the review")),
			mcp.WithString("feedback", mcp.Description("Optional feedback for the audit trail")),
		),
		s.handleApprove,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"reject_review",
			mcp.WithDescription("Reject a pending review gate, aborting the paused execution. Feedback is required."),
			mcp.WithString("id", mcp.Required(), mcp.Description("The ID of the review")),
			mcp.WithString("feedback", mcp.Required(), mcp.Description("The reason for the rejection")),
		),
		s.handleReject,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"send_review_message",
			mcp.WithDescription("Append a message to a pending review's conversation thread"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The ID of the review")),
			mcp.WithString("text", mcp.Required(), mcp.Description("The message text")),
		),
		s.handleSendMessage,
	)
}

// callerOrg resolves the organization the auth middleware put on the request
// context. Tools fail closed when it is absent.
func callerOrg(ctx context.Context) (string, bool) {
	return auth.OrgIDFrom(ctx)
}

func stringArg(request mcp.CallToolRequest, name string) (string, bool) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", false
	}
	value, ok := args[name].(string)
	return value, ok && value != ""
}

func (s *Server) handleListPending(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	org, ok := callerOrg(ctx)
	if !ok {
		return mcp.NewToolResultError("No organization resolved for caller"), nil
	}

	reviews, err := s.reviews.ListPending(ctx, org)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list reviews: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(reviews)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleApprove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	org, ok := callerOrg(ctx)
	if !ok {
		return mcp.NewToolResultError("No organization resolved for caller"), nil
	}

	id, ok := stringArg(request, "id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	feedback, _ := stringArg(request, "feedback")

	result, err := s.reviews.Approve(ctx, org, id, reviewerIdentity(ctx), feedback)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to approve: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleReject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	org, ok := callerOrg(ctx)
	if !ok {
		return mcp.NewToolResultError("No organization resolved for caller"), nil
	}

	id, ok := stringArg(request, "id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	feedback, ok := stringArg(request, "feedback")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: feedback"), nil
	}

	result, err := s.reviews.Reject(ctx, org, id, reviewerIdentity(ctx), feedback)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to reject: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	org, ok := callerOrg(ctx)
	if !ok {
		return mcp.NewToolResultError("No organization resolved for caller"), nil
	}

	id, ok := stringArg(request, "id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	text, ok := stringArg(request, "text")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: text"), nil
	}

	msg, err := s.reviews.AppendChat(ctx, org, id, reviewerIdentity(ctx), text)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send message: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(msg)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func reviewerIdentity(ctx context.Context) string {
	if email := auth.EmailFrom(ctx); email != "" {
		return email
	}
	return "ai-worker"
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
