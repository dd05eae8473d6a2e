// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/coprelay/internal/config"
	"github.com/jeranaias/coprelay/internal/copilot"
	"github.com/jeranaias/coprelay/internal/model"
	"github.com/jeranaias/coprelay/internal/storage"
	"github.com/jeranaias/coprelay/internal/telemetry"
	"github.com/jeranaias/coprelay/internal/workspace"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

// fakeService is a canned ChatService so no copilot binary is needed.
type fakeService struct {
	resp  *copilot.ChatResponse
	err   error
	probe copilot.ProbeResult

	lastMessages []copilot.ChatMessage
	lastModel    string
}

func (f *fakeService) Chat(_ context.Context, messages []copilot.ChatMessage, model string) (*copilot.ChatResponse, error) {
	f.lastMessages = messages
	f.lastModel = model
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeService) Probe(context.Context) copilot.ProbeResult { return f.probe }

func (f *fakeService) DefaultModel() string { return "claude-sonnet-4" }

// fakeResponse builds a completed chat response the way the service
// assembles one.
func fakeResponse(content string, files []workspace.FileArtifact) *copilot.ChatResponse {
	if files == nil {
		files = []workspace.FileArtifact{}
	}
	return &copilot.ChatResponse{
		ID:      "copilot-copilot_workspace_test0001",
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   "github-copilot-claude-sonnet-4",
		Choices: []copilot.Choice{{
			Message:      copilot.ResponseMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: copilot.Usage{
			PromptTokens:     3,
			CompletionTokens: len(strings.Fields(content)),
			TotalTokens:      3 + len(strings.Fields(content)),
		},
		Files:       files,
		FilesCount:  len(files),
		WorkspaceID: "copilot_workspace_test0001",
		Metadata:    copilot.Metadata{CLIVersion: "copilot-cli", Model: "claude-sonnet-4", WorkspaceUsed: true},
	}
}

// testConfig returns a config suitable for handler tests: rate limiting
// off so repeated requests never trip it, auth off unless a test adds a
// key.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.RateLimitEnabled = false
	return cfg
}

// newTestServer wires a server around the fake service.
func newTestServer(t *testing.T, fake *fakeService, cfg *config.Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	mgr := workspace.NewManager(workspace.Options{Root: t.TempDir()})
	return New(cfg, fake, mgr)
}

// doJSON runs one request through the full middleware stack.
func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// decodeError pulls the error payload out of a response.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("response %q is not an error payload: %v", rec.Body.String(), err)
	}
	return resp
}

const chatBody = `{"messages": [{"role": "user", "content": "write a haiku"}]}`

// =============================================================================
// CHAT HANDLER
// =============================================================================

func TestHandleChat_Success(t *testing.T) {
	fake := &fakeService{resp: fakeResponse("line one done", nil)}
	s := newTestServer(t, fake, nil)

	rec := doJSON(s, http.MethodPost, "/api/chat", `{"messages": [{"role": "user", "content": "write a haiku"}], "model": "gpt-5"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp copilot.ChatResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Content() != "line one done" {
		t.Errorf("content = %q", resp.Content())
	}
	if resp.Object != "chat.completion" {
		t.Errorf("object = %q", resp.Object)
	}
	if resp.Files == nil {
		t.Error("files should serialize as an array, not null")
	}

	if fake.lastModel != "gpt-5" {
		t.Errorf("model passed to service = %q, want gpt-5", fake.lastModel)
	}
	if len(fake.lastMessages) != 1 || fake.lastMessages[0].Content != "write a haiku" {
		t.Errorf("messages passed to service = %+v", fake.lastMessages)
	}
}

func TestHandleChat_Validation(t *testing.T) {
	longContent := strings.Repeat("a", maxMessageBytes+1)
	manyMessages := `{"messages": [` +
		strings.Repeat(`{"role": "user", "content": "hi"},`, maxMessages) +
		`{"role": "user", "content": "one too many"}]}`

	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{"empty messages", `{"messages": []}`, "Messages are required"},
		{"missing messages", `{}`, "Messages are required"},
		{"malformed json", `{"messages": [`, "Invalid JSON in request body"},
		{"not json at all", `hello`, "Invalid JSON in request body"},
		{"unknown role", `{"messages": [{"role": "robot", "content": "hi"}]}`, "Invalid message role: robot"},
		{"too many messages", manyMessages, "Too many messages (max 50)"},
		{"oversized content", `{"messages": [{"role": "user", "content": "` + longContent + `"}]}`,
			"Message content too long (max 32768 bytes)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeService{resp: fakeResponse("unused", nil)}
			s := newTestServer(t, fake, nil)

			rec := doJSON(s, http.MethodPost, "/api/chat", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decodeError(t, rec).Error; got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
			if fake.lastMessages != nil {
				t.Error("service should not run for invalid requests")
			}
		})
	}
}

func TestHandleChat_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxBodyBytes = 1024
	fake := &fakeService{resp: fakeResponse("unused", nil)}
	s := newTestServer(t, fake, cfg)

	big := `{"messages": [{"role": "user", "content": "` + strings.Repeat("x", 2048) + `"}]}`
	rec := doJSON(s, http.MethodPost, "/api/chat", big)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeError(t, rec).Error; got != "Request body too large" {
		t.Errorf("error = %q", got)
	}
}

func TestHandleChat_Timeout(t *testing.T) {
	fake := &fakeService{err: copilot.ErrTimeout}
	s := newTestServer(t, fake, nil)

	rec := doJSON(s, http.MethodPost, "/api/chat", chatBody)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	if got := decodeError(t, rec).Error; got != "Copilot CLI run timed out" {
		t.Errorf("error = %q", got)
	}
}

func TestHandleChat_InternalError(t *testing.T) {
	fake := &fakeService{err: errors.New("spawn failed")}
	s := newTestServer(t, fake, nil)

	rec := doJSON(s, http.MethodPost, "/api/chat", chatBody)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error != "Internal server error" {
		t.Errorf("error = %q", resp.Error)
	}
	if resp.Details != "spawn failed" {
		t.Errorf("details = %q", resp.Details)
	}
}

func TestHandleChat_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &fakeService{}, nil)

	rec := doJSON(s, http.MethodGet, "/api/chat", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/chat status = %d, want 405", rec.Code)
	}
}

// =============================================================================
// STREAM HANDLER
// =============================================================================

// parseSSE splits an event-stream body into its data payloads.
func parseSSE(t *testing.T, body string) []string {
	t.Helper()
	var payloads []string
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		data, ok := strings.CutPrefix(frame, "data: ")
		if !ok {
			t.Fatalf("frame %q does not start with data:", frame)
		}
		payloads = append(payloads, data)
	}
	return payloads
}

func TestHandleStream_Frames(t *testing.T) {
	files := []workspace.FileArtifact{{
		Path: "haiku.txt", Name: "haiku.txt", Size: 14, ContentBase64: "bGluZSBvbmUgZG9uZQ==",
	}}
	fake := &fakeService{resp: fakeResponse("line one done", files)}
	s := newTestServer(t, fake, nil)

	rec := doJSON(s, http.MethodPost, "/api/stream", chatBody)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}
	if ab := rec.Header().Get("X-Accel-Buffering"); ab != "no" {
		t.Errorf("X-Accel-Buffering = %q, want no", ab)
	}

	payloads := parseSSE(t, rec.Body.String())
	// 3 words + files chunk + [DONE]
	if len(payloads) != 5 {
		t.Fatalf("got %d frames, want 5: %v", len(payloads), payloads)
	}
	if payloads[len(payloads)-1] != "[DONE]" {
		t.Errorf("last frame = %q, want [DONE]", payloads[len(payloads)-1])
	}

	// Deltas reassemble the exact content and end with finish_reason stop.
	var content strings.Builder
	var sawStop bool
	for _, payload := range payloads[:3] {
		var chunk copilot.StreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			t.Fatalf("bad delta frame %q: %v", payload, err)
		}
		if chunk.Object != "chat.completion.chunk" {
			t.Errorf("object = %q", chunk.Object)
		}
		content.WriteString(chunk.Choices[0].Delta.Content)
		if fr := chunk.Choices[0].FinishReason; fr != nil {
			if *fr != "stop" {
				t.Errorf("finish_reason = %q", *fr)
			}
			sawStop = true
		}
	}
	if content.String() != "line one done" {
		t.Errorf("reassembled content = %q", content.String())
	}
	if !sawStop {
		t.Error("no delta frame carried finish_reason stop")
	}

	var filesChunk copilot.FilesChunk
	if err := json.Unmarshal([]byte(payloads[3]), &filesChunk); err != nil {
		t.Fatalf("bad files frame: %v", err)
	}
	if filesChunk.Object != "chat.completion.files" || filesChunk.FilesCount != 1 {
		t.Errorf("files frame = %+v", filesChunk)
	}
}

func TestHandleStream_NoFilesNoFilesFrame(t *testing.T) {
	fake := &fakeService{resp: fakeResponse("hello world", nil)}
	s := newTestServer(t, fake, nil)

	rec := doJSON(s, http.MethodPost, "/api/stream", chatBody)

	payloads := parseSSE(t, rec.Body.String())
	// 2 words + [DONE], no files frame in between
	if len(payloads) != 3 {
		t.Fatalf("got %d frames, want 3: %v", len(payloads), payloads)
	}
	if payloads[2] != "[DONE]" {
		t.Errorf("last frame = %q, want [DONE]", payloads[2])
	}

	var content strings.Builder
	for _, payload := range payloads[:2] {
		if strings.Contains(payload, "chat.completion.files") {
			t.Fatalf("unexpected files frame: %q", payload)
		}
		var chunk copilot.StreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			t.Fatalf("bad delta frame %q: %v", payload, err)
		}
		content.WriteString(chunk.Choices[0].Delta.Content)
	}
	if content.String() != "hello world" {
		t.Errorf("reassembled content = %q, want %q", content.String(), "hello world")
	}
}

func TestHandleStream_ErrorStaysJSON(t *testing.T) {
	fake := &fakeService{err: copilot.ErrTimeout}
	s := newTestServer(t, fake, nil)

	rec := doJSON(s, http.MethodPost, "/api/stream", chatBody)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, errors should not be event streams", ct)
	}
	if got := decodeError(t, rec).Error; got != "Copilot CLI run timed out" {
		t.Errorf("error = %q", got)
	}
}

// =============================================================================
// OPENAI-COMPATIBLE ALIAS
// =============================================================================

func TestHandleCompletions_Dispatch(t *testing.T) {
	fake := &fakeService{resp: fakeResponse("alias reply", nil)}
	s := newTestServer(t, fake, nil)

	rec := doJSON(s, http.MethodPost, "/v1/chat/completions",
		`{"messages": [{"role": "user", "content": "hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("non-stream Content-Type = %q", ct)
	}

	rec = doJSON(s, http.MethodPost, "/v1/chat/completions",
		`{"messages": [{"role": "user", "content": "hi"}], "stream": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("stream status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("stream Content-Type = %q", ct)
	}
	payloads := parseSSE(t, rec.Body.String())
	if payloads[len(payloads)-1] != "[DONE]" {
		t.Errorf("stream should terminate with [DONE], got %q", payloads[len(payloads)-1])
	}
}

// =============================================================================
// INFO ENDPOINTS
// =============================================================================

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		probe      copilot.ProbeResult
		wantCode   int
		wantStatus string
	}{
		{"available", copilot.ProbeResult{Available: true, Version: "1.2.3"}, http.StatusOK, "healthy"},
		{"unavailable", copilot.ProbeResult{Available: false, Error: "Copilot CLI not installed"},
			http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeService{probe: tt.probe}, nil)

			rec := doJSON(s, http.MethodGet, "/api/health", "")

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp healthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status field = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Service != "coprelay" {
				t.Errorf("service = %q", resp.Service)
			}
			if resp.Copilot.Available != tt.probe.Available {
				t.Errorf("copilot.available = %v", resp.Copilot.Available)
			}
		})
	}
}

func TestHandleHealth_BypassesAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Server.APIKey = "secret"
	s := newTestServer(t, &fakeService{probe: copilot.ProbeResult{Available: true}}, cfg)

	rec := doJSON(s, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health with auth enabled and no key = %d, want 200", rec.Code)
	}

	rec = doJSON(s, http.MethodGet, "/api/models", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("models without key = %d, want 401", rec.Code)
	}
}

func TestHandleModels(t *testing.T) {
	s := newTestServer(t, &fakeService{}, nil)

	rec := doJSON(s, http.MethodGet, "/api/models", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp modelsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Models) != len(model.Catalog) {
		t.Errorf("got %d models, want %d", len(resp.Models), len(model.Catalog))
	}
	if resp.Models[0].ID != "claude-sonnet-4.5" {
		t.Errorf("first model = %q", resp.Models[0].ID)
	}
}

func TestHandleStats(t *testing.T) {
	tracker, err := telemetry.NewTracker(telemetry.Options{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	fake := &fakeService{resp: fakeResponse("counted reply", nil)}
	s := newTestServer(t, fake, nil).WithTracker(tracker)

	doJSON(s, http.MethodPost, "/api/chat", chatBody)
	doJSON(s, http.MethodPost, "/api/chat", chatBody)

	rec := doJSON(s, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp statsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Server.Requests < 2 {
		t.Errorf("server.requests = %d, want >= 2", resp.Server.Requests)
	}
	if resp.Server.ByRoute["POST /api/chat"] != 2 {
		t.Errorf("by_route = %v", resp.Server.ByRoute)
	}
	if resp.Usage.Totals.Requests != 2 {
		t.Errorf("usage.totals.requests = %d, want 2", resp.Usage.Totals.Requests)
	}
	if resp.Usage.Totals.Succeeded != 2 {
		t.Errorf("usage.totals.succeeded = %d, want 2", resp.Usage.Totals.Succeeded)
	}
}

func TestTelemetryRecordsFailures(t *testing.T) {
	tracker, err := telemetry.NewTracker(telemetry.Options{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	fake := &fakeService{err: copilot.ErrTimeout}
	s := newTestServer(t, fake, nil).WithTracker(tracker)

	doJSON(s, http.MethodPost, "/api/chat", chatBody)

	snap := tracker.Snapshot()
	if snap.Totals.Requests != 1 || snap.Totals.Failed != 1 {
		t.Errorf("totals = %+v, want one failed request", snap.Totals)
	}
	// The request named no model, so the default is attributed.
	if len(snap.PerModel) != 1 || snap.PerModel[0].Model != "claude-sonnet-4" {
		t.Errorf("per-model = %+v", snap.PerModel)
	}
}

// =============================================================================
// WORKSPACE RETENTION
// =============================================================================

func TestRecordRetained_KeepMode(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig()
	mgr := workspace.NewManager(workspace.Options{Root: root, Keep: true})
	ledger, err := storage.NewLedgerWithDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	fake := &fakeService{resp: fakeResponse("kept run", nil)}
	s := New(cfg, fake, mgr).WithLedger(ledger)

	rec := doJSON(s, http.MethodPost, "/api/chat",
		`{"messages": [{"role": "system", "content": "be brief"}, {"role": "user", "content": "make a script"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	got, err := ledger.Get("copilot_workspace_test0001")
	if err != nil {
		t.Fatalf("ledger record not written: %v", err)
	}
	if got.Model != "claude-sonnet-4" {
		t.Errorf("model = %q", got.Model)
	}
	if got.Prompt != "make a script" {
		t.Errorf("prompt = %q, want the last user message", got.Prompt)
	}
	if got.Path != filepath.Join(root, "copilot_workspace_test0001") {
		t.Errorf("path = %q, want under %q", got.Path, root)
	}
}

func TestRecordRetained_SkippedWithoutKeep(t *testing.T) {
	mgr := workspace.NewManager(workspace.Options{Root: t.TempDir()})
	ledger, err := storage.NewLedgerWithDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	fake := &fakeService{resp: fakeResponse("ephemeral run", nil)}
	s := New(testConfig(), fake, mgr).WithLedger(ledger)

	doJSON(s, http.MethodPost, "/api/chat", chatBody)

	recs, err := ledger.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("ledger has %d records, want 0 outside keep mode", len(recs))
	}
}

// =============================================================================
// VALIDATION UNITS
// =============================================================================

func TestValidateMessages(t *testing.T) {
	ok := []copilot.ChatMessage{{Role: "user", Content: "hi"}}
	mixed := []copilot.ChatMessage{
		{Role: "system", Content: "rules"},
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "answer"},
		{Role: "user", Content: "followup"},
	}

	tests := []struct {
		name     string
		messages []copilot.ChatMessage
		want     string
	}{
		{"single user message", ok, ""},
		{"all valid roles", mixed, ""},
		{"nil messages", nil, "Messages are required"},
		{"empty slice", []copilot.ChatMessage{}, "Messages are required"},
		{"unknown role", []copilot.ChatMessage{{Role: "tool", Content: "x"}}, "Invalid message role: tool"},
		{"empty role", []copilot.ChatMessage{{Role: "", Content: "x"}}, "Invalid message role: "},
		{"content at cap", []copilot.ChatMessage{{Role: "user", Content: strings.Repeat("a", maxMessageBytes)}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validateMessages(tt.messages); got != tt.want {
				t.Errorf("validateMessages() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLastUserContent(t *testing.T) {
	tests := []struct {
		name     string
		messages []copilot.ChatMessage
		want     string
	}{
		{"empty", nil, ""},
		{"single user", []copilot.ChatMessage{{Role: "user", Content: "only"}}, "only"},
		{"latest user wins", []copilot.ChatMessage{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "reply"},
			{Role: "user", Content: "second"},
		}, "second"},
		{"no user falls back to last", []copilot.ChatMessage{
			{Role: "system", Content: "a"},
			{Role: "assistant", Content: "b"},
		}, "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lastUserContent(tt.messages); got != tt.want {
				t.Errorf("lastUserContent() = %q, want %q", got, tt.want)
			}
		})
	}
}
