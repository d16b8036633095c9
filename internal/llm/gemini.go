package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"deckforge/internal/retry"
)

// GeminiConfig controls the Gemini-backed client.
type GeminiConfig struct {
	APIKey            string
	Model             string
	Retry             retry.Policy
	RequestsPerMinute int
}

// DefaultGeminiConfig returns the default model settings.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:            apiKey,
		Model:             "gemini-2.5-flash",
		Retry:             retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second},
		RequestsPerMinute: 30,
	}
}

// GeminiClient calls the Gemini API with structured JSON output. Identical
// payloads issued concurrently share one in-flight request, and calls are
// rate limited and retried with exponential backoff.
type GeminiClient struct {
	client  *genai.Client
	model   string
	policy  retry.Policy
	group   singleflight.Group
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGeminiClient creates a Gemini-backed suggestion client. An empty API
// key yields ErrUnavailable so callers can degrade instead of crash.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrUnavailable
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiConfig("").Model
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultGeminiConfig("").Retry
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultGeminiConfig("").RequestsPerMinute
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	return &GeminiClient{
		client:  client,
		model:   cfg.Model,
		policy:  cfg.Retry,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute),
		logger:  logger,
	}, nil
}

// suggestionSchema constrains the model to the response shape we parse.
// Ratings are numeric so they can be compared and sorted downstream.
func suggestionSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"suggestions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"unitId": {Type: genai.TypeString},
						"rating": {Type: genai.TypeNumber},
						"reason": {Type: genai.TypeString},
						"count":  {Type: genai.TypeNumber},
					},
					Required: []string{"unitId", "rating", "reason"},
				},
			},
		},
		Required: []string{"suggestions"},
	}
}

// Suggest sends one suggestion request. Concurrent callers with the same
// payload share a single model call.
func (c *GeminiClient) Suggest(ctx context.Context, req SuggestionRequest) (*SuggestionResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode suggestion request: %w", err)
	}

	v, err, shared := c.group.Do(string(payload), func() (any, error) {
		return c.call(ctx, string(payload))
	})
	if shared {
		c.logger.Debug("shared in-flight model call", zap.Int("payload_bytes", len(payload)))
	}
	if err != nil {
		return nil, err
	}
	return v.(*SuggestionResponse), nil
}

func (c *GeminiClient) call(ctx context.Context, payload string) (*SuggestionResponse, error) {
	var out *SuggestionResponse
	err := retry.Do(ctx, c.policy, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		start := time.Now()
		resp, err := c.client.Models.GenerateContent(ctx, c.model,
			[]*genai.Content{genai.NewContentFromText(payload, genai.RoleUser)},
			&genai.GenerateContentConfig{
				ResponseMIMEType: "application/json",
				ResponseSchema:   suggestionSchema(),
			})
		if err != nil {
			c.logger.Warn("model call failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
			return fmt.Errorf("model call failed: %w", err)
		}

		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return retry.Permanent(fmt.Errorf("%w: %s", ErrBlocked, resp.PromptFeedback.BlockReason))
		}

		parsed, err := parseResponse(resp)
		if err != nil {
			// Malformed output is worth another attempt; the model is
			// not deterministic.
			c.logger.Warn("model returned malformed output", zap.Error(err))
			return err
		}
		c.logger.Debug("model call succeeded",
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

func parseResponse(resp *genai.GenerateContentResponse) (*SuggestionResponse, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("model returned no candidates")
	}
	return parseSuggestionText(resp.Candidates[0].Content.Parts[0].Text)
}

// parseSuggestionText decodes the JSON suggestion payload a model produced.
// Some models wrap JSON in a fenced block even when asked for raw JSON.
func parseSuggestionText(text string) (*SuggestionResponse, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var parsed SuggestionResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}
	if parsed.Suggestions == nil {
		return nil, fmt.Errorf("model response missing suggestions field")
	}
	return &parsed, nil
}
