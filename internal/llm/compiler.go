// Package llm compiles an animation request into a Manim script by way of
// a chat completion service.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ivlev/teachme/internal/apperr"
	"github.com/ivlev/teachme/internal/config"
	"github.com/ivlev/teachme/internal/prompts"
	"github.com/ivlev/teachme/internal/script"
)

const previewLength = 300

// Compiler is the prompt compiler stage. It never retries on its own.
type Compiler struct {
	client Completer
	cfg    config.Config
	log    *slog.Logger
}

func NewCompiler(client Completer, cfg config.Config, log *slog.Logger) *Compiler {
	if log == nil {
		log = slog.Default()
	}
	return &Compiler{client: client, cfg: cfg, log: log}
}

// BuildRequest is deterministic: equal inputs give equal requests. A request
// carrying a brief is compiled from the brief.
func (c *Compiler) BuildRequest(req config.Request) CompletionRequest {
	user := prompts.Animation(req.Prompt, req.Style)
	if strings.TrimSpace(req.Brief) != "" {
		user = prompts.AnimationFromBrief(req.Prompt, req.Brief, req.Style)
	}
	return c.request(prompts.AnimationSystem, user, c.cfg.Temperature, true)
}

// BuildRepairRequest asks the model to fix code that failed with toolkitErr.
func (c *Compiler) BuildRepairRequest(code, toolkitErr string, attempt, maxAttempts int) CompletionRequest {
	return c.request(prompts.RepairSystem, prompts.Repair(code, toolkitErr, attempt, maxAttempts), config.RepairTemperature, true)
}

// BuildBriefRequest asks for a plain-text brief expanding req.Prompt.
func (c *Compiler) BuildBriefRequest(req config.Request) CompletionRequest {
	return c.request(prompts.BriefSystem, prompts.Brief(req.Prompt), config.BriefTemperature, false)
}

func (c *Compiler) request(system, user string, temperature float64, jsonMode bool) CompletionRequest {
	cr := CompletionRequest{
		Model:     c.cfg.Model,
		System:    system,
		User:      user,
		MaxTokens: c.cfg.MaxTokens,
		JSON:      jsonMode,
	}
	// Reasoning models reject temperature.
	if !c.cfg.ReasoningModel() {
		t := float32(temperature)
		cr.Temperature = &t
	}
	return cr
}

// Compile sends the request once and parses the answer into a script.
func (c *Compiler) Compile(ctx context.Context, req config.Request) (*script.Generated, error) {
	return c.run(ctx, c.BuildRequest(req))
}

// Repair sends a single error-correction request for a failed script.
func (c *Compiler) Repair(ctx context.Context, prev *script.Generated, toolkitErr string, attempt, maxAttempts int) (*script.Generated, error) {
	return c.run(ctx, c.BuildRepairRequest(prev.Code, toolkitErr, attempt, maxAttempts))
}

// Expand sends one request for a written brief and returns its text.
func (c *Compiler) Expand(ctx context.Context, req config.Request) (string, error) {
	completion, err := c.complete(ctx, c.BuildBriefRequest(req))
	if err != nil {
		return "", err
	}
	brief := strings.TrimSpace(completion.Content)
	c.log.Debug("brief preview", "text", preview(brief))
	return brief, nil
}

func (c *Compiler) run(ctx context.Context, cr CompletionRequest) (*script.Generated, error) {
	completion, err := c.complete(ctx, cr)
	if err != nil {
		return nil, err
	}

	c.log.Debug("completion preview", "text", preview(completion.Content))

	g, err := script.ParseResponse(completion.Content)
	if err != nil {
		return nil, &apperr.UpstreamError{Model: cr.Model, Msg: "unusable content", Err: err}
	}
	return g, nil
}

// complete makes the single call and rejects empty answers.
func (c *Compiler) complete(ctx context.Context, cr CompletionRequest) (*Completion, error) {
	if c.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.LLMTimeout)
		defer cancel()
	}

	completion, err := c.client.Complete(ctx, cr)
	if err != nil {
		var upErr *apperr.UpstreamError
		if errors.As(err, &upErr) {
			return nil, err
		}
		return nil, &apperr.UpstreamError{Model: cr.Model, Msg: "completion failed", Err: err}
	}

	if strings.TrimSpace(completion.Content) == "" {
		msg := fmt.Sprintf("empty content (finish reason: %s)", completion.FinishReason)
		if completion.FinishReason == "length" {
			msg = fmt.Sprintf("response truncated at the token limit (%d tokens)", cr.MaxTokens)
		}
		return nil, &apperr.UpstreamError{Model: cr.Model, Msg: msg}
	}
	return completion, nil
}

func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", `\n`)
	if len(s) > previewLength {
		return s[:previewLength] + "..."
	}
	return s
}
