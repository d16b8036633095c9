package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"deckforge/internal/retry"
)

// OllamaConfig configures the local-model suggestion client.
type OllamaConfig struct {
	// BaseURL is the Ollama API endpoint.
	BaseURL string

	// Model is the model name to use.
	Model string

	// InferenceTimeout is the timeout for generation requests.
	InferenceTimeout time.Duration

	// Retry is the per-call retry policy.
	Retry retry.Policy
}

// DefaultOllamaConfig returns sensible defaults.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		BaseURL:          "http://localhost:11434",
		Model:            "qwen3:8b",
		InferenceTimeout: 120 * time.Second,
		Retry:            retry.Policy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 10 * time.Second},
	}
}

// OllamaClient produces deck suggestions from a locally hosted model. It
// speaks the Ollama generate API and asks for raw JSON output, so no API
// key or network egress is needed.
type OllamaClient struct {
	baseURL    string
	model      string
	policy     retry.Policy
	httpClient *http.Client
	logger     *zap.Logger
}

// generateRequest is the Ollama /api/generate request body.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

// generateResponse is the subset of the generate reply we consume.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaClient creates a local-model suggestion client.
func NewOllamaClient(cfg OllamaConfig, logger *zap.Logger) *OllamaClient {
	defaults := DefaultOllamaConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.InferenceTimeout <= 0 {
		cfg.InferenceTimeout = defaults.InferenceTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = defaults.Retry
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaClient{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		policy:     cfg.Retry,
		httpClient: &http.Client{Timeout: cfg.InferenceTimeout},
		logger:     logger,
	}
}

const ollamaSystemPrompt = "You are a Magic: The Gathering deck building assistant. " +
	"Respond with a single JSON object of the form " +
	`{"suggestions":[{"unitId":"...","rating":0,"reason":"...","count":1}]}` +
	" and nothing else. Only use unitId values present in the candidate list."

// Suggest sends one suggestion request to the local model.
func (c *OllamaClient) Suggest(ctx context.Context, req SuggestionRequest) (*SuggestionResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode suggestion request: %w", err)
	}

	var out *SuggestionResponse
	err = retry.Do(ctx, c.policy, func() error {
		start := time.Now()
		raw, err := c.generate(ctx, string(payload))
		if err != nil {
			c.logger.Warn("local model call failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
			return err
		}

		parsed, err := parseSuggestionText(raw)
		if err != nil {
			// Malformed output is worth another attempt; the model is
			// not deterministic.
			c.logger.Warn("local model returned malformed output", zap.Error(err))
			return err
		}
		c.logger.Debug("local model call succeeded",
			zap.Int("suggestions", len(parsed.Suggestions)),
			zap.Duration("elapsed", time.Since(start)))
		out = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OllamaClient) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		System: ollamaSystemPrompt,
		Format: "json",
		Stream: false,
	})
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
		return "", fmt.Errorf("generate request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("generate failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return genResp.Response, nil
}
