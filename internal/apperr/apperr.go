// Package apperr defines the three failure classes a teachme run can end in
// and maps them to process exit codes.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

const (
	ExitSuccess       = 0
	ExitUnknown       = 1
	ExitConfiguration = 2
	ExitUpstream      = 3
	ExitRender        = 4
)

// ConfigurationError is raised for missing credentials, bad flags or a broken
// local environment. It is always reported before any network call.
type ConfigurationError struct {
	Key string
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Key != "" {
		fmt.Fprintf(&b, " (%s)", e.Key)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Hint() string {
	switch e.Key {
	case "OPENAI_API_KEY":
		return "set OPENAI_API_KEY in the environment or .env, or pass --api-key"
	case "manim":
		return "is Manim installed? run 'manim --version'"
	case "":
		return "check your flags, environment variables and config file"
	}
	return fmt.Sprintf("ensure %s is set to a valid value", e.Key)
}

// UpstreamError covers every way the completion service can fail us:
// transport errors, error statuses and unusable content.
type UpstreamError struct {
	Model  string
	Status int
	Msg    string
	Err    error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString("completion service")
	if e.Model != "" {
		fmt.Fprintf(&b, " (%s)", e.Model)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " returned %d", e.Status)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Hint() string {
	switch {
	case e.Status == 401:
		return "the API key was rejected, check OPENAI_API_KEY"
	case e.Status == 429:
		return "rate limited, wait a moment and try again"
	case strings.Contains(e.Msg, "token limit"):
		return "simplify the prompt or raise max_tokens"
	}
	return "try again, or run with --verbose and a simpler prompt"
}

// RenderError is a non-zero toolkit exit, a rejected script or a missing
// output artifact. Stderr carries the toolkit output verbatim.
type RenderError struct {
	Scene  string
	Msg    string
	Stderr string
	Err    error
}

func (e *RenderError) Error() string {
	var b strings.Builder
	b.WriteString("render failed")
	if e.Scene != "" {
		fmt.Fprintf(&b, " (%s)", e.Scene)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		b.WriteString("\n")
		b.WriteString(s)
	}
	return b.String()
}

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) Hint() string {
	lower := strings.ToLower(e.Msg + " " + e.Stderr)
	switch {
	case strings.Contains(lower, "timed out") || strings.Contains(lower, "deadline"):
		return "simplify the animation or raise render_timeout"
	case strings.Contains(lower, "syntaxerror") || strings.Contains(lower, "nameerror"):
		return "the generated code is broken, retry or enable --repair-attempts"
	}
	return "run with --verbose to see the toolkit output"
}

// Hinter is implemented by every error class in this package.
type Hinter interface {
	Hint() string
}

// ExitCode classifies err into the documented process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var cfgErr *ConfigurationError
	var upErr *UpstreamError
	var renderErr *RenderError
	switch {
	case errors.As(err, &cfgErr):
		return ExitConfiguration
	case errors.As(err, &upErr):
		return ExitUpstream
	case errors.As(err, &renderErr):
		return ExitRender
	}
	return ExitUnknown
}

// HintFor returns the suggestion attached to err, if any.
func HintFor(err error) string {
	var h Hinter
	if errors.As(err, &h) {
		return h.Hint()
	}
	return ""
}

// IsRepairable reports whether a follow-up completion call could fix err.
func IsRepairable(err error) bool {
	var renderErr *RenderError
	return errors.As(err, &renderErr)
}
