// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jeranaias/coprelay/internal/config"
	"github.com/jeranaias/coprelay/internal/copilot"
	"github.com/jeranaias/coprelay/internal/model"
	"github.com/jeranaias/coprelay/internal/storage"
	"github.com/jeranaias/coprelay/internal/telemetry"
	"github.com/jeranaias/coprelay/internal/workspace"
)

// =============================================================================
// REQUEST VALIDATION LIMITS
// =============================================================================

const (
	// maxMessages caps the conversation length per request.
	maxMessages = 50

	// maxMessageBytes caps one message's content length.
	maxMessageBytes = 32 * 1024
)

// validRoles are the roles accepted at the HTTP boundary. Prompt
// assembly would default unknown roles to "user", but malformed clients
// should fail fast instead.
var validRoles = map[string]bool{
	"system":    true,
	"user":      true,
	"assistant": true,
}

// =============================================================================
// SERVER
// =============================================================================

// ChatService is the slice of the copilot service the server needs.
type ChatService interface {
	Chat(ctx context.Context, messages []copilot.ChatMessage, model string) (*copilot.ChatResponse, error)
	Probe(ctx context.Context) copilot.ProbeResult
	DefaultModel() string
}

// Server exposes the Copilot CLI relay over HTTP.
type Server struct {
	config     *config.Config
	copilot    ChatService
	workspaces *workspace.Manager
	tracker    *telemetry.Tracker
	ledger     *storage.Ledger

	stats   *ServerStats
	auth    *AuthConfig
	proxies *proxyList
	limiter *RateLimiter
	router  *http.ServeMux

	httpServer *http.Server
}

// New creates a server wired to the given service and workspace manager.
// Optional collaborators attach through the With methods before Start.
func New(cfg *config.Config, svc ChatService, workspaces *workspace.Manager) *Server {
	s := &Server{
		config:     cfg,
		copilot:    svc,
		workspaces: workspaces,
		stats:      NewServerStats(),
		auth:       NewAuthConfig(cfg.Server),
		proxies:    newProxyList(cfg.Server.TrustedProxies),
		router:     http.NewServeMux(),
	}

	if cfg.Server.RateLimitEnabled {
		s.limiter = NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	}

	s.setupRoutes()
	return s
}

// WithTracker attaches usage telemetry. Without one, requests are served
// but not recorded.
func (s *Server) WithTracker(t *telemetry.Tracker) *Server {
	s.tracker = t
	return s
}

// WithLedger attaches the retained-workspace ledger, used only when the
// workspace manager keeps directories after runs.
func (s *Server) WithLedger(l *storage.Ledger) *Server {
	s.ledger = l
	return s
}

// ApplyRateLimit pushes reloaded limiter numbers into the live per-IP
// buckets. A server built without rate limiting stays unlimited.
func (s *Server) ApplyRateLimit(rps float64, burst int) {
	if s.limiter != nil {
		s.limiter.SetRate(rps, burst)
	}
}

// setupRoutes registers all endpoints using method-qualified patterns.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("POST /api/stream", s.handleStream)
	s.router.HandleFunc("GET /api/health", s.handleHealth)
	s.router.HandleFunc("GET /api/models", s.handleModels)
	s.router.HandleFunc("GET /api/stats", s.handleStats)
	s.router.HandleFunc("POST /v1/chat/completions", s.handleCompletions)
}

// Handler returns the full middleware stack around the router.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.stats, s.proxies),
		CORSMiddleware(s.config.Server.AllowedOrigins),
		RateLimitMiddleware(s.limiter, s.proxies),
		AuthMiddleware(s.auth, s.proxies),
	)(s.router)
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (s *Server) Start() error {
	if !s.auth.Enabled() {
		log.Printf("SECURITY WARNING: no API key configured, accepting unauthenticated requests")
	}

	addr := s.config.ListenAddr()
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// The write timeout must outlast a full CLI run, or long agentic
		// requests get cut off mid-response.
		WriteTimeout: s.config.Copilot.Timeout() + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s", addr, s.config.Version)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests
// up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// errorResponse is the wire shape of every error.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeError writes a flat error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeErrorDetails writes an error response with a details field.
func writeErrorDetails(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{Error: message, Details: details})
}

// =============================================================================
// REQUEST DECODING AND VALIDATION
// =============================================================================

// decodeChatRequest reads and validates a chat request body. On failure
// it writes the error response and returns false.
func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (copilot.ChatRequest, bool) {
	var req copilot.ChatRequest

	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusBadRequest, "Request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		}
		return req, false
	}

	if msg := validateMessages(req.Messages); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return req, false
	}

	return req, true
}

// validateMessages checks the message list against the boundary limits.
// It returns the client-facing error text, or "" when valid.
func validateMessages(messages []copilot.ChatMessage) string {
	if len(messages) == 0 {
		return "Messages are required"
	}
	if len(messages) > maxMessages {
		return fmt.Sprintf("Too many messages (max %d)", maxMessages)
	}
	for _, msg := range messages {
		if !validRoles[msg.Role] {
			return fmt.Sprintf("Invalid message role: %s", msg.Role)
		}
		if len(msg.Content) > maxMessageBytes {
			return fmt.Sprintf("Message content too long (max %d bytes)", maxMessageBytes)
		}
	}
	return ""
}

// =============================================================================
// CHAT HANDLERS
// =============================================================================

// handleChat serves POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}
	s.completeChat(w, r, req)
}

// handleStream serves POST /api/stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}
	s.streamChat(w, r, req)
}

// handleCompletions serves POST /v1/chat/completions, dispatching on the
// stream flag so OpenAI clients work unmodified.
func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}
	if req.Stream {
		s.streamChat(w, r, req)
		return
	}
	s.completeChat(w, r, req)
}

// completeChat runs the CLI and writes the full completion.
func (s *Server) completeChat(w http.ResponseWriter, r *http.Request, req copilot.ChatRequest) {
	start := time.Now()

	resp, err := s.copilot.Chat(r.Context(), req.Messages, req.Model)
	if err != nil {
		s.recordTelemetry(req, nil, err, start, false)
		s.writeChatError(w, err)
		return
	}

	s.recordTelemetry(req, resp, nil, start, false)
	s.recordRetained(req, resp)
	writeJSON(w, http.StatusOK, resp)
}

// streamChat runs the CLI to completion, then replays the response as
// server-sent events. Failures before the first frame still produce a
// clean JSON error with a real status code.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, req copilot.ChatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	start := time.Now()
	resp, err := s.copilot.Chat(r.Context(), req.Messages, req.Model)
	if err != nil {
		s.recordTelemetry(req, nil, err, start, true)
		s.writeChatError(w, err)
		return
	}

	s.recordTelemetry(req, resp, nil, start, true)
	s.recordRetained(req, resp)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	for _, chunk := range copilot.StreamChunks(resp) {
		if !sendEvent(w, flusher, chunk) {
			return
		}
	}
	if files := copilot.BuildFilesChunk(resp); files != nil {
		if !sendEvent(w, flusher, files) {
			return
		}
	}
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// sendEvent writes one SSE frame and flushes it.
func sendEvent(w http.ResponseWriter, flusher http.Flusher, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Failed to marshal stream chunk: %v", err)
		return false
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
	return true
}

// writeChatError maps a service error onto an HTTP response.
func (s *Server) writeChatError(w http.ResponseWriter, err error) {
	switch {
	case copilot.IsTimeout(err):
		writeError(w, http.StatusGatewayTimeout, "Copilot CLI run timed out")
	case copilot.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeErrorDetails(w, http.StatusInternalServerError, "Internal server error", err.Error())
	}
}

// =============================================================================
// TELEMETRY AND RETENTION
// =============================================================================

// recordTelemetry feeds one finished request into the tracker.
func (s *Server) recordTelemetry(req copilot.ChatRequest, resp *copilot.ChatResponse, err error, start time.Time, streamed bool) {
	if s.tracker == nil {
		return
	}

	resolvedModel := req.Model
	if resolvedModel == "" {
		resolvedModel = s.copilot.DefaultModel()
	}

	rec := telemetry.Request{
		Model:      resolvedModel,
		Status:     telemetry.StatusForError(err),
		DurationMs: time.Since(start).Milliseconds(),
		Streamed:   streamed,
	}
	if resp != nil {
		rec.PromptTokens = resp.Usage.PromptTokens
		rec.CompletionTokens = resp.Usage.CompletionTokens
		rec.FilesCount = resp.FilesCount
		rec.WorkspaceID = resp.WorkspaceID
	}

	s.tracker.Record(rec)
}

// recordRetained writes a ledger entry for the kept workspace, so the
// workspaces CLI can list and prune it later. Only runs in keep mode.
func (s *Server) recordRetained(req copilot.ChatRequest, resp *copilot.ChatResponse) {
	if s.ledger == nil || s.workspaces == nil || !s.workspaces.Keep() {
		return
	}

	rec := storage.WorkspaceRecord{
		ID:         resp.WorkspaceID,
		Path:       filepath.Join(s.workspaces.Root(), resp.WorkspaceID),
		Model:      resp.Metadata.Model,
		Prompt:     lastUserContent(req.Messages),
		FilesCount: resp.FilesCount,
	}
	if err := s.ledger.Record(rec); err != nil {
		log.Printf("Failed to record retained workspace %s: %v", resp.WorkspaceID, err)
	}
}

// lastUserContent returns the content of the most recent user message,
// the part of the conversation this run actually answered.
func lastUserContent(messages []copilot.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	if len(messages) > 0 {
		return messages[len(messages)-1].Content
	}
	return ""
}

// =============================================================================
// INFO HANDLERS
// =============================================================================

// healthResponse is the health endpoint wire shape.
type healthResponse struct {
	Status  string              `json:"status"`
	Service string              `json:"service"`
	Version string              `json:"version"`
	Copilot copilot.ProbeResult `json:"copilot"`
}

// handleHealth serves GET /api/health. Degraded state means the server
// is up but the CLI cannot currently serve chats.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	probe := s.copilot.Probe(r.Context())

	resp := healthResponse{
		Status:  "healthy",
		Service: "coprelay",
		Version: s.config.Version,
		Copilot: probe,
	}
	status := http.StatusOK
	if !probe.Available {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

// modelsResponse is the models endpoint wire shape.
type modelsResponse struct {
	Models []model.ModelInfo `json:"models"`
}

// handleModels serves GET /api/models from the static catalog.
func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, modelsResponse{Models: model.Catalog})
}

// statsResponse combines server counters with the usage snapshot.
type statsResponse struct {
	Server StatsSnapshot      `json:"server"`
	Usage  telemetry.Snapshot `json:"usage"`
}

// handleStats serves GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{Server: s.stats.Snapshot()}
	if s.tracker != nil {
		resp.Usage = s.tracker.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}
