// Package server implements the multi-transport front-end (C9): stdio
// MCP, HTTP/JSON, and WebSocket adapters that all funnel through the same
// evaluation entry point so a given ToolRequest yields the same Decision
// regardless of transport.
package server

import (
	"context"
	"log/slog"

	"github.com/superego-run/superego/core/apperr"
	"github.com/superego-run/superego/core/engine"
	"github.com/superego-run/superego/core/health"
	"github.com/superego-run/superego/core/request"
)

// protocolVersion is reported by get_server_info / GET /info. It names the
// evaluation contract's revision, not the binary's build version.
const protocolVersion = "1"

// Server wires the decision engine and health checker to every transport
// adapter. Adapters never implement policy themselves: they parse, call
// Evaluate, serialize, and translate errors into their own error shape.
type Server struct {
	eng     *engine.Engine
	health  *health.Checker
	log     *slog.Logger
	version string
}

// New builds a Server. logger should write to stderr (or another sink
// disjoint from the stdio transport's stdout framing) since the stdio
// MCP transport treats stdout as reserved for JSON-RPC responses.
func New(eng *engine.Engine, h *health.Checker, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{eng: eng, health: h, log: logger, version: version}
}

// Evaluate normalizes raw and runs it through the decision engine. The
// only error path is request validation (apperr.Validation); the engine
// itself absorbs advisor failures via the configured fail mode and always
// returns a Decision.
func (s *Server) Evaluate(ctx context.Context, raw request.Raw) (*engine.Decision, error) {
	req, err := request.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return s.eng.Evaluate(ctx, req), nil
}

// serverInfo is the get_server_info / GET /info payload.
type serverInfo struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocol_version"`
}

func (s *Server) info() serverInfo {
	return serverInfo{Name: "superego", Version: s.version, ProtocolVersion: protocolVersion}
}

// validationMessage renders a request-validation failure as a short,
// stable, caller-safe phrase (never a raw Go error string), per the
// propagation policy in spec.md §7.
func validationMessage(err error) (field, message string) {
	if ae, ok := apperr.As(err); ok {
		return ae.Field, ae.UserMessage
	}
	return "", "invalid request"
}
