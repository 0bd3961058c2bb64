package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/superego-run/superego/core/request"
)

// wireRequest is the HTTP/JSON wire shape of a ToolRequest (spec.md §6).
type wireRequest struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
	AgentID    string         `json:"agent_id"`
	SessionID  string         `json:"session_id"`
	Cwd        string         `json:"cwd"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
}

// errorBody is the documented {error: {code, message}} shape.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Mux builds the HTTP/JSON transport's handler: POST /v1/evaluate,
// GET /health, GET /info, GET /metrics.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/evaluate", s.handleHTTPEvaluate)
	mux.HandleFunc("/health", s.handleHTTPHealth)
	mux.HandleFunc("/info", s.handleHTTPInfo)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// ServeHTTP starts the HTTP/JSON transport on addr and blocks until the
// server stops or ctx is cancelled.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Mux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.health.SetTransportReachable("http", true)
	s.log.Info("http transport listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.health.SetTransportReachable("http", false)
		return err
	}
	return nil
}

func (s *Server) handleHTTPEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "VALIDATION", "only POST is supported")
		return
	}

	var wr wireRequest
	if err := json.NewDecoder(r.Body).Decode(&wr); err != nil {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION", "malformed JSON body")
		return
	}

	dec, err := s.Evaluate(r.Context(), request.Raw{
		ToolName:   wr.ToolName,
		Parameters: wr.Parameters,
		AgentID:    wr.AgentID,
		SessionID:  wr.SessionID,
		Cwd:        wr.Cwd,
		Timestamp:  wr.Timestamp,
	})
	if err != nil {
		_, msg := validationMessage(err)
		writeJSONError(w, http.StatusBadRequest, "VALIDATION", msg)
		return
	}

	writeJSON(w, http.StatusOK, dec)
}

func (s *Server) handleHTTPHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Check())
}

func (s *Server) handleHTTPInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.info())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}
