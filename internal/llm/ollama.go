package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"drift/internal/logging"
	"drift/internal/plan"
	"drift/internal/safety"
)

const (
	// DefaultOllamaURL is the stock local server address.
	DefaultOllamaURL = "http://localhost:11434"
	// DefaultOllamaModel must be small enough to run on a laptop yet
	// reliable at emitting schema-conformant JSON.
	DefaultOllamaModel = "qwen2.5-coder:7b"

	// requestTimeout bounds a single generation request. Local models can
	// be slow on first load.
	requestTimeout = 90 * time.Second

	// maxAttempts is the initial request plus two repair retries for
	// malformed responses.
	maxAttempts = 3
)

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	topP        float64
	httpClient  *http.Client
	classifier  *safety.Classifier
}

// OllamaConfig holds configuration for the Ollama client.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	TopP        float64
	Timeout     time.Duration
}

// NewOllama creates an Ollama-backed client. Zero-value config fields fall
// back to defaults.
func NewOllama(cfg OllamaConfig, classifier *safety.Classifier) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if cfg.TopP == 0 {
		cfg.TopP = 0.9
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = requestTimeout
	}

	return &OllamaClient{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		classifier:  classifier,
	}
}

// Available reports whether the Ollama server answers at all.
func (c *OllamaClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// GeneratePlan converts a query into a Plan, retrying with corrective
// feedback when the model returns malformed JSON.
func (c *OllamaClient) GeneratePlan(ctx context.Context, query, contextBlock string) (*plan.Plan, error) {
	base := systemPrompt + "\n\n" + userPrompt(sanitizeInput(query), contextBlock)
	prompt := base

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := c.generate(ctx, prompt, "json", ollamaOptions{
			Temperature: c.temperature,
			TopP:        c.topP,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			logging.LLMDebug("ollama attempt %d/%d failed: %v", attempt, maxAttempts, err)
			lastErr = err
			continue
		}

		p, retryable, perr := parsePlan(text)
		if perr == nil {
			clampRisk(p, c.classifier)
			logging.LLM("ollama plan: %d commands, risk %s", len(p.Commands), p.Risk)
			return p, nil
		}
		if !retryable {
			return nil, perr
		}
		logging.LLMDebug("ollama attempt %d/%d returned bad JSON: %v", attempt, maxAttempts, perr)
		lastErr = perr
		prompt = retryPrompt(base, perr)
	}

	return nil, fmt.Errorf("no usable plan after %d attempts: %w", maxAttempts, lastErr)
}

// Explain returns a prose explanation of a command.
func (c *OllamaClient) Explain(ctx context.Context, command string) (string, error) {
	text, err := c.generate(ctx, fmt.Sprintf(explainPrompt, command), "", ollamaOptions{
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get explanation: %w", err)
	}
	return text, nil
}

// Close releases idle connections.
func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// generate performs one /api/generate round trip.
func (c *OllamaClient) generate(ctx context.Context, prompt, format string, opts ollamaOptions) (string, error) {
	req := ollamaGenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Format:  format,
		Stream:  false,
		Options: opts,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return strings.TrimSpace(result.Response), nil
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Format  string        `json:"format,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}
