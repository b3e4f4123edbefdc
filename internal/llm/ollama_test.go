package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"drift/internal/plan"
	"drift/internal/safety"
)

const validPlanJSON = `{
	"summary": "list recent python files",
	"risk": "low",
	"commands": [{"command": "find . -name '*.py' -mtime -1", "description": "find files"}]
}`

// planServer records generate requests and plays back scripted responses.
type planServer struct {
	mu        sync.Mutex
	requests  []ollamaGenerateRequest
	responses []string
	server    *httptest.Server
}

func newPlanServer(t *testing.T, responses ...string) *planServer {
	t.Helper()
	ps := &planServer{responses: responses}
	ps.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}

		var req ollamaGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}

		ps.mu.Lock()
		idx := len(ps.requests)
		ps.requests = append(ps.requests, req)
		ps.mu.Unlock()

		if idx >= len(ps.responses) {
			idx = len(ps.responses) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: ps.responses[idx]})
	}))
	t.Cleanup(ps.server.Close)
	return ps
}

func (ps *planServer) client(classifier *safety.Classifier) *OllamaClient {
	return NewOllama(OllamaConfig{BaseURL: ps.server.URL}, classifier)
}

func (ps *planServer) attempts() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.requests)
}

func (ps *planServer) request(i int) ollamaGenerateRequest {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.requests[i]
}

func TestOllamaGeneratePlan(t *testing.T) {
	ps := newPlanServer(t, validPlanJSON)
	client := ps.client(nil)

	p, err := client.GeneratePlan(context.Background(), "recent python files", "cwd: /tmp")
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if p.Summary != "list recent python files" {
		t.Errorf("summary = %q", p.Summary)
	}
	if p.Risk != plan.RiskLow {
		t.Errorf("risk = %s", p.Risk)
	}

	req := ps.request(0)
	if req.Format != "json" {
		t.Errorf("format = %q, want json", req.Format)
	}
	if req.Stream {
		t.Error("stream must be false")
	}
	if req.Options.Temperature != 0.1 {
		t.Errorf("temperature = %v", req.Options.Temperature)
	}
	if req.Options.TopP != 0.9 {
		t.Errorf("top_p = %v", req.Options.TopP)
	}
	if !strings.Contains(req.Prompt, "User query: recent python files") {
		t.Errorf("prompt missing query: %q", req.Prompt)
	}
	if !strings.Contains(req.Prompt, "Context:\ncwd: /tmp") {
		t.Errorf("prompt missing context: %q", req.Prompt)
	}
}

func TestOllamaGeneratePlanRetriesBadJSON(t *testing.T) {
	ps := newPlanServer(t, "run ls, trust me", validPlanJSON)
	client := ps.client(nil)

	p, err := client.GeneratePlan(context.Background(), "list files", "")
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if len(p.Commands) != 1 {
		t.Errorf("commands = %+v", p.Commands)
	}
	if ps.attempts() != 2 {
		t.Fatalf("attempts = %d, want 2", ps.attempts())
	}
	if !strings.Contains(ps.request(1).Prompt, "Your previous reply was not a valid plan") {
		t.Errorf("retry prompt missing feedback: %q", ps.request(1).Prompt)
	}
}

func TestOllamaGeneratePlanGivesUp(t *testing.T) {
	ps := newPlanServer(t, "nope")
	client := ps.client(nil)

	_, err := client.GeneratePlan(context.Background(), "list files", "")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "no usable plan") {
		t.Errorf("err = %v", err)
	}
	if ps.attempts() != maxAttempts {
		t.Errorf("attempts = %d, want %d", ps.attempts(), maxAttempts)
	}
}

func TestOllamaGeneratePlanStructuralErrorFailsFast(t *testing.T) {
	ps := newPlanServer(t, `{"summary": "nothing to do", "risk": "low", "commands": []}`)
	client := ps.client(nil)

	_, err := client.GeneratePlan(context.Background(), "do nothing", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if ps.attempts() != 1 {
		t.Errorf("attempts = %d, want 1 (no retry for structural errors)", ps.attempts())
	}
}

func TestOllamaGeneratePlanClampsRisk(t *testing.T) {
	ps := newPlanServer(t, `{
		"summary": "restart the web server",
		"risk": "low",
		"commands": [{"command": "sudo systemctl restart nginx"}]
	}`)
	client := ps.client(safety.New())

	p, err := client.GeneratePlan(context.Background(), "restart nginx", "")
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if p.Risk != plan.RiskHigh {
		t.Errorf("risk = %s, want high (classifier overrides the model)", p.Risk)
	}
}

func TestOllamaExplain(t *testing.T) {
	ps := newPlanServer(t, "tar extracts archives")
	client := ps.client(nil)

	text, err := client.Explain(context.Background(), "tar -xzf file.tgz")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if text != "tar extracts archives" {
		t.Errorf("explanation = %q", text)
	}

	req := ps.request(0)
	if req.Format != "" {
		t.Errorf("explain format = %q, want empty", req.Format)
	}
	if req.Options.Temperature != 0.3 {
		t.Errorf("explain temperature = %v", req.Options.Temperature)
	}
	if !strings.Contains(req.Prompt, "tar -xzf file.tgz") {
		t.Errorf("prompt missing command: %q", req.Prompt)
	}
}

func TestOllamaServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOllama(OllamaConfig{BaseURL: server.URL}, nil)
	_, err := client.Explain(context.Background(), "ls")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("err = %v", err)
	}
}

func TestOllamaAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	client := NewOllama(OllamaConfig{BaseURL: server.URL}, nil)
	if !client.Available(context.Background()) {
		t.Error("expected available")
	}

	server.Close()
	if client.Available(context.Background()) {
		t.Error("expected unavailable after server close")
	}
}

func TestOllamaGeneratePlanCancelledContext(t *testing.T) {
	ps := newPlanServer(t, validPlanJSON)
	client := ps.client(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.GeneratePlan(ctx, "list files", ""); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
