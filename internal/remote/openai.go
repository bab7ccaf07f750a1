package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// openAIPrompt keeps the model on awareness-only language and forces the
// same reply shape as the HTTP analyzer.
const openAIPrompt = `You are a health awareness assistant. Provide general, non-diagnostic guidance.

Rules:
- Do not diagnose diseases.
- Do not recommend medicines or treatment steps.
- Use awareness-based language only, such as "may indicate a potential health concern",
  "consider consulting a healthcare professional", "monitor symptoms and seek help if they persist".
- If the user has not said how long symptoms have lasted, you may ask.

Reply with ONLY a JSON object: {"response": "<2-4 supportive sentences>", "risk_level": "low" | "moderate" | "high"}.`

// OpenAIConfig configures OpenAIClient.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenAIClient answers turns with an OpenAI chat completion.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAIClient creates an OpenAI-backed remote analyzer.
func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Analyze asks the model for a `{response, risk_level}` object.
func (c *OpenAIClient) Analyze(ctx context.Context, req Request) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: openAIPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Message},
		},
		Temperature: 0.3,
		User:        req.SessionID,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
			return nil, fmt.Errorf("openai chat completion: %w", &StatusError{Code: apiErr.HTTPStatusCode})
		}
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformed)
	}

	c.logger.Debug("OpenAI analyzer replied", "session_id", req.SessionID, "model", c.model, "tokens", resp.Usage.TotalTokens)
	return DecodeReply([]byte(resp.Choices[0].Message.Content))
}
