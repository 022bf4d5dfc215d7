package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ivlev/teachme/internal/apperr"
	"github.com/ivlev/teachme/internal/config"
)

// CompletionRequest is the provider-neutral shape of one chat completion.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	Temperature *float32
	MaxTokens   int
	JSON        bool
}

type Completion struct {
	Content          string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// Completer is the completion service seen from the pipeline. Implementations
// make exactly one attempt per call.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// OpenAIClient talks to the OpenAI chat completions API, or to any
// compatible endpoint when BaseURL is set.
type OpenAIClient struct {
	client *openai.Client
	log    *slog.Logger
}

func NewOpenAIClient(cfg config.Config, log *slog.Logger) *OpenAIClient {
	return NewOpenAIClientWithHTTP(cfg, nil, log)
}

// NewOpenAIClientWithHTTP lets callers supply the transport.
func NewOpenAIClientWithHTTP(cfg config.Config, httpClient *http.Client, log *slog.Logger) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		oc.HTTPClient = httpClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(oc), log: log}
}

func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	creq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		MaxCompletionTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		creq.Temperature = *req.Temperature
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	c.log.Debug("completion request", "model", req.Model, "max_tokens", req.MaxTokens, "json", req.JSON)

	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, upstreamError(req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &apperr.UpstreamError{Model: req.Model, Msg: "response contained no choices"}
	}

	choice := resp.Choices[0]
	c.log.Debug("completion response",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", choice.FinishReason,
		"length", len(choice.Message.Content))

	return &Completion{
		Content:          choice.Message.Content,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func upstreamError(model string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &apperr.UpstreamError{Model: model, Status: apiErr.HTTPStatusCode, Msg: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &apperr.UpstreamError{Model: model, Status: reqErr.HTTPStatusCode, Msg: "request failed", Err: reqErr.Err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &apperr.UpstreamError{Model: model, Msg: "timed out", Err: err}
	}
	return &apperr.UpstreamError{Model: model, Msg: "unreachable", Err: err}
}
