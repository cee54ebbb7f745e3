// Package deepseek implements the chat completion client for the DeepSeek
// API, which is wire-compatible with the OpenAI chat completions endpoint.
package deepseek

import (
	"context"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mozi2244/webot/internal/config"
	"github.com/mozi2244/webot/internal/session"
)

// Apologetic fallbacks shown to the user when the upstream API cannot
// produce a reply. Upstream failures are recovered here; callers never see
// an error for them.
const (
	msgNoAPIKey     = "Sorry, the AI service is not available. Please ask the administrator to configure an API key."
	msgEmptyReply   = "The AI failed to generate a reply. Please try again later."
	msgUpstreamDown = "Sorry, something went wrong while contacting the AI service. Please try again later."
)

// Client generates chat completions. It is stateless; conversation history
// is supplied by the caller on every request.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *slog.Logger
	hasKey      bool
}

// NewClient creates a DeepSeek completion client from configuration. A
// missing API key is not fatal: requests then yield an apologetic message
// instead of a completion, and a warning is logged at startup.
func NewClient(cfg config.AIConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log := logger.With("component", "deepseek_client")

	if cfg.APIKey == "" {
		log.Warn("No DeepSeek API key configured; auto-replies will return a service-unavailable message")
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL

	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		logger:      log,
		hasKey:      cfg.APIKey != "",
	}
}

// GenerateResponse produces a completion for the given system prompt and
// conversation history. Upstream failures are converted into user-facing
// apologetic text; the returned string is always suitable for delivery.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, history []session.Message) string {
	if !c.hasKey {
		return msgNoAPIKey
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: prompt,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == session.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "Chat completion request failed", "model", c.model, "error", err)
		return msgUpstreamDown
	}
	if len(resp.Choices) == 0 {
		c.logger.ErrorContext(ctx, "Chat completion returned no choices", "model", c.model)
		return msgEmptyReply
	}

	return resp.Choices[0].Message.Content
}
