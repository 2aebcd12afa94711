package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/aqs/internal/metrics"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Temperature used for every analysis call.
const analysisTemperature = 0.1

// ErrNoChoices is returned when the service answers without any completion.
var ErrNoChoices = errors.New("LLM returned no choices")

// Request is a single analysis prompt.
type Request struct {
	SystemRole string
	Prompt     string
}

// Response is the raw text answer and the token usage it cost.
type Response struct {
	Text  string
	Usage metrics.TokenUsage
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	limiter *rate.Limiter
}

// New creates a new LLM client. rpm limits requests per minute; zero or
// less means unlimited.
func New(baseURL, apiKey, modelName string, rpm int) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if rpm > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		limiter: limiter,
	}
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string { return c.model }

// Analyze sends one prompt and returns the model's JSON text. Usage is
// filled whenever the service reported it, even if an error is returned.
func (c *Client) Analyze(ctx context.Context, req Request) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limit wait: %w", err)
	}

	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemRole != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemRole})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: analysisTemperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("LLM API call: %w", err)
	}

	out := Response{Usage: usageOf(resp.Usage)}
	if len(resp.Choices) == 0 {
		return out, ErrNoChoices
	}
	out.Text = resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "tokens", out.Usage.TotalTokens, "raw", out.Text)
	return out, nil
}

// Ping checks that the service is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func usageOf(u openai.Usage) metrics.TokenUsage {
	out := metrics.TokenUsage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		out.CachedTokens = u.PromptTokensDetails.CachedTokens
	}
	if u.CompletionTokensDetails != nil {
		out.ThinkingTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	return out.Normalize()
}
