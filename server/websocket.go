package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/superego-run/superego/core/request"
)

// wsPingInterval matches the documented ping/pong cadence (spec.md §6).
const wsPingInterval = 30 * time.Second

const wsPongWait = wsPingInterval + 10*time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Superego is consulted by local agent hosts, not browsers; any
	// origin may connect, matching the stdio/HTTP transports' lack of
	// caller authentication (spec.md §1 non-goals).
	CheckOrigin: func(r *http.Request) bool { return true },
}

// frame is the inbound WebSocket message shape: { id, type, payload }.
type frame struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// frameResponse echoes the request id and carries either a result or an
// error, never both.
type frameResponse struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ServeWebSocket starts the WebSocket transport on addr and blocks until
// the server stops or ctx is cancelled.
func (s *Server) ServeWebSocket(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.health.SetTransportReachable("websocket", true)
	s.log.Info("websocket transport listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.health.SetTransportReachable("websocket", false)
		return err
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue // malformed frame: no id to correlate a response to
		}

		resp := s.handleFrame(r.Context(), f)
		out, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			return
		}
	}
}

func (s *Server) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, f frame) frameResponse {
	switch f.Type {
	case "ping":
		return frameResponse{ID: f.ID, OK: true, Result: "pong"}
	case "evaluate":
		return s.handleEvaluateFrame(ctx, f)
	default:
		return errFrame(f.ID, "VALIDATION", "unknown frame type")
	}
}

func (s *Server) handleEvaluateFrame(ctx context.Context, f frame) frameResponse {
	var wr wireRequest
	if err := json.Unmarshal(f.Payload, &wr); err != nil {
		return errFrame(f.ID, "VALIDATION", "malformed evaluate payload")
	}

	dec, err := s.Evaluate(ctx, request.Raw{
		ToolName:   wr.ToolName,
		Parameters: wr.Parameters,
		AgentID:    wr.AgentID,
		SessionID:  wr.SessionID,
		Cwd:        wr.Cwd,
		Timestamp:  wr.Timestamp,
	})
	if err != nil {
		_, msg := validationMessage(err)
		return errFrame(f.ID, "VALIDATION", msg)
	}

	return frameResponse{ID: f.ID, OK: true, Result: dec}
}

func errFrame(id, code, message string) frameResponse {
	resp := frameResponse{ID: id, OK: false}
	resp.Error = &struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{Code: code, Message: message}
	return resp
}
