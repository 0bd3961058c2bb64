package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/superego-run/superego/core/request"
)

// evaluateToolName is the single logical tool exposed over stdio MCP, per
// spec.md §4.9 and the original implementation's tool naming
// (original_source/src/superego_mcp/presentation/server.py).
const evaluateToolName = "evaluate_tool_request"

// ServeStdio starts the line-delimited JSON-RPC 2.0 MCP server on stdio
// and blocks until the client disconnects. Responses go to stdout only;
// all logging goes through s.log, which must write to stderr.
func (s *Server) ServeStdio() error {
	srv := mcpserver.NewMCPServer(
		"superego",
		s.version,
		mcpserver.WithRecovery(),
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
	)

	srv.AddTool(
		mcp.NewTool(evaluateToolName,
			mcp.WithDescription("Evaluate whether an AI coding agent may invoke a tool, returning allow or deny"),
			mcp.WithString("tool_name", mcp.Description("Short identifier of the tool the agent wants to invoke"), mcp.Required()),
			mcp.WithObject("parameters", mcp.Description("Parameters the agent intends to pass to the tool")),
			mcp.WithString("agent_id", mcp.Description("Opaque correlation token for the invoking agent"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Opaque correlation token for the agent's session"), mcp.Required()),
			mcp.WithString("cwd", mcp.Description("Absolute working directory of the request"), mcp.Required()),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleEvaluate,
	)

	srv.AddTool(
		mcp.NewTool("health_check",
			mcp.WithDescription("Report liveness/readiness and per-component status"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleHealthCheck,
	)

	srv.AddTool(
		mcp.NewTool("get_server_info",
			mcp.WithDescription("Report server name, version, and protocol version"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetServerInfo,
	)

	s.log.Info("stdio MCP server starting", "tool", evaluateToolName)
	return mcpserver.ServeStdio(srv)
}

func (s *Server) handleEvaluate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	toolName, err := req.RequireString("tool_name")
	if err != nil {
		return mcp.NewToolResultError("VALIDATION: tool_name is required"), nil
	}
	agentID, err := req.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError("VALIDATION: agent_id is required"), nil
	}
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("VALIDATION: session_id is required"), nil
	}
	cwd, err := req.RequireString("cwd")
	if err != nil {
		return mcp.NewToolResultError("VALIDATION: cwd is required"), nil
	}

	var params map[string]any
	if raw, ok := req.GetArguments()["parameters"].(map[string]any); ok {
		params = raw
	}

	dec, err := s.Evaluate(ctx, request.Raw{
		ToolName:   toolName,
		Parameters: params,
		AgentID:    agentID,
		SessionID:  sessionID,
		Cwd:        cwd,
	})
	if err != nil {
		field, msg := validationMessage(err)
		return mcp.NewToolResultError(fmt.Sprintf("VALIDATION[%s]: %s", field, msg)), nil
	}

	data, err := json.Marshal(dec)
	if err != nil {
		return mcp.NewToolResultError("INTERNAL: failed to encode decision"), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleHealthCheck(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec := s.health.Check()
	data, err := json.Marshal(rec)
	if err != nil {
		return mcp.NewToolResultError("INTERNAL: failed to encode health record"), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleGetServerInfo(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(s.info())
	if err != nil {
		return mcp.NewToolResultError("INTERNAL: failed to encode server info"), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
