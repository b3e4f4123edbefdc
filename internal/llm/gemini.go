package llm

import (
	"context"
	"fmt"
	"strings"

	"drift/internal/logging"
	"drift/internal/plan"
	"drift/internal/safety"

	"google.golang.org/genai"
)

// DefaultGeminiModel balances latency and quality for short plan requests.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient generates plans through the Google Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float64
	topP        float64
	classifier  *safety.Classifier
}

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	TopP        float64
}

// NewGemini creates a Gemini-backed client.
func NewGemini(cfg GeminiConfig, classifier *safety.Classifier) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if cfg.TopP == 0 {
		cfg.TopP = 0.9
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		classifier:  classifier,
	}, nil
}

// GeneratePlan converts a query into a Plan using Gemini's native JSON
// response mode, retrying with corrective feedback on malformed output.
func (c *GeminiClient) GeneratePlan(ctx context.Context, query, contextBlock string) (*plan.Plan, error) {
	base := userPrompt(sanitizeInput(query), contextBlock)
	prompt := base

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := c.generate(ctx, systemPrompt, prompt, true, c.temperature)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			logging.LLMDebug("gemini attempt %d/%d failed: %v", attempt, maxAttempts, err)
			lastErr = err
			continue
		}

		p, retryable, perr := parsePlan(text)
		if perr == nil {
			clampRisk(p, c.classifier)
			logging.LLM("gemini plan: %d commands, risk %s", len(p.Commands), p.Risk)
			return p, nil
		}
		if !retryable {
			return nil, perr
		}
		logging.LLMDebug("gemini attempt %d/%d returned bad JSON: %v", attempt, maxAttempts, perr)
		lastErr = perr
		prompt = retryPrompt(base, perr)
	}

	return nil, fmt.Errorf("no usable plan after %d attempts: %w", maxAttempts, lastErr)
}

// Explain returns a prose explanation of a command.
func (c *GeminiClient) Explain(ctx context.Context, command string) (string, error) {
	text, err := c.generate(ctx, "", fmt.Sprintf(explainPrompt, command), false, 0.3)
	if err != nil {
		return "", fmt.Errorf("failed to get explanation: %w", err)
	}
	return text, nil
}

// Close closes the underlying API client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *GeminiClient) generate(ctx context.Context, system, prompt string, jsonMode bool, temperature float64) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
		TopP:        genai.Ptr(float32(c.topP)),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if jsonMode {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}
