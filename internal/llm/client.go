// Package llm turns natural language queries into command plans. Providers
// sit behind one interface: a local Ollama server by default, Google Gemini
// when configured. Whatever the provider returns is treated as untrusted
// input: responses are parsed strictly, structurally validated, and the
// declared risk is clamped upward to the classifier's own verdict.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"drift/internal/config"
	"drift/internal/plan"
	"drift/internal/safety"
)

// Client defines the interface for plan-generating providers.
type Client interface {
	// GeneratePlan converts a natural language query into a Plan. The
	// context block carries environment details (cwd, project type,
	// learned preferences) to ground the suggestion.
	GeneratePlan(ctx context.Context, query, contextBlock string) (*plan.Plan, error)
	// Explain returns a prose explanation of a shell command.
	Explain(ctx context.Context, command string) (string, error)
	// Close releases provider resources.
	Close() error
}

// NewFromConfig builds the provider the configuration names. The classifier
// is consulted after every generation so the model cannot understate risk;
// nil disables clamping.
func NewFromConfig(cfg *config.Config, classifier *safety.Classifier) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LLM.Provider)) {
	case "", "ollama":
		return NewOllama(OllamaConfig{
			BaseURL:     cfg.LLM.OllamaURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			TopP:        cfg.LLM.TopP,
		}, classifier), nil
	case "gemini":
		key := cfg.APIKey()
		if key == "" {
			return nil, fmt.Errorf("gemini provider selected but %s is not set", cfg.LLM.APIKeyEnv)
		}
		// The shared model field defaults to an Ollama model name; only
		// honor it when it names a Gemini one.
		model := cfg.LLM.Model
		if !strings.HasPrefix(model, "gemini") {
			model = DefaultGeminiModel
		}
		return NewGemini(GeminiConfig{
			APIKey:      key,
			Model:       model,
			Temperature: cfg.LLM.Temperature,
			TopP:        cfg.LLM.TopP,
		}, classifier)
	default:
		return nil, fmt.Errorf("unknown llm provider %q (use ollama or gemini)", cfg.LLM.Provider)
	}
}

// systemPrompt pins the response contract. Providers that support a native
// JSON response mode still get the schema spelled out so smaller models
// stay on format.
const systemPrompt = `You are Drift, a terminal assistant.
Convert natural language queries into safe, executable shell commands.

CRITICAL: You MUST respond with ONLY valid JSON matching this exact schema:
{
  "summary": "brief summary of what will be done",
  "risk": "low" | "medium" | "high",
  "commands": [
    {
      "command": "actual shell command",
      "description": "what this does",
      "dry_run": "optional dry-run version"
    }
  ],
  "explanation": "detailed explanation of the approach",
  "affected_files": ["optional", "list", "of", "files"],
  "clarification_needed": [
    {
      "question": "question text",
      "options": ["optional", "list"]
    }
  ]
}

RULES:
1. If the query is ambiguous, use "clarification_needed" with questions
2. Assess risk honestly: destructive = high, modifications = medium, reads = low
3. Provide dry-run variants when the tool supports one (rsync -n, rm -i)
4. When uncertain, ask for clarification instead of guessing
5. Prefer common, portable Unix tools
6. NEVER suggest rm -rf /, sudo rm -rf, or other destructive root operations
7. List every file a command modifies in affected_files
8. Keep commands readable and well-explained

Respond with ONLY the JSON object, no other text.`

// explainPrompt asks for prose, not JSON.
const explainPrompt = `Explain this shell command in detail:

Command: %s

Provide:
1. What the command does (brief summary)
2. Breakdown of each flag/argument
3. Potential side effects or risks
4. Example output (if applicable)

Be concise but thorough.`

const maxInputLength = 1000

var newlineRuns = regexp.MustCompile(`\n{3,}`)

// sanitizeInput strips control characters that could smuggle extra prompt
// structure and caps the length.
func sanitizeInput(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	text = newlineRuns.ReplaceAllString(text, " ")
	if len(text) > maxInputLength {
		text = text[:maxInputLength]
	}
	return strings.TrimSpace(text)
}

// userPrompt assembles the query plus optional context block.
func userPrompt(query, contextBlock string) string {
	prompt := "User query: " + query
	if contextBlock != "" {
		prompt += "\n\nContext:\n" + contextBlock
	}
	return prompt
}

// parsePlan decodes a provider response into a Plan. A malformed JSON body
// returns retryable=true so the caller can re-prompt; a well-formed but
// structurally unusable plan does not.
func parsePlan(text string) (*plan.Plan, bool, error) {
	text = strings.TrimSpace(text)
	// Some models wrap the object in a markdown fence despite the format
	// instruction.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var p plan.Plan
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, true, fmt.Errorf("invalid plan JSON: %w", err)
	}

	if len(p.Commands) == 0 && len(p.Clarification) == 0 {
		return nil, false, fmt.Errorf("plan has no commands and no clarification questions")
	}
	for i, cmd := range p.Commands {
		if strings.TrimSpace(cmd.Command) == "" {
			return nil, false, fmt.Errorf("plan command %d is empty", i+1)
		}
	}
	return &p, false, nil
}

// clampRisk raises the plan's declared risk to the classifier's verdict.
// The model's self-assessment can only make a plan look scarier, never
// safer.
func clampRisk(p *plan.Plan, classifier *safety.Classifier) {
	if classifier == nil || len(p.Commands) == 0 {
		return
	}
	verdict := safety.ValidatePlan(classifier, *p)
	if verdict.Overall > p.Risk {
		p.Risk = verdict.Overall
	}
}

// retryPrompt appends corrective feedback for a re-generation attempt.
func retryPrompt(base string, parseErr error) string {
	return base + "\n\nYour previous reply was not a valid plan (" + parseErr.Error() +
		"). Respond again with ONLY the JSON object."
}
