package config

import (
	"time"
)

type Style string

const (
	StyleLight Style = "light"
	StyleDark  Style = "dark"
)

type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

const (
	DefaultModel          = "gpt-4o"
	DefaultTemperature    = 0.7
	RepairTemperature     = 0.3
	BriefTemperature      = 0.3
	DefaultMaxTokens      = 20000
	DefaultStyle          = StyleLight
	DefaultQuality        = QualityLow
	DefaultOutputDir      = "./outputs"
	DefaultRenderTimeout  = 180 * time.Second
	DefaultManimBinary    = "manim"
	DefaultConfigFileName = "teachme.yaml"

	AnimationsSubdir = "animations"
	ScriptsSubdir    = "scripts"
)

// Config is resolved once per invocation and handed to every stage by value.
// Nothing below cmd/ reads the process environment.
type Config struct {
	APIKey         string        `key:"OPENAI_API_KEY" validate:"required"`
	BaseURL        string        `key:"OPENAI_BASE_URL" validate:"omitempty,url"`
	Model          string        `key:"model" validate:"required"`
	Temperature    float64       `key:"temperature" validate:"gte=0,lte=2"`
	MaxTokens      int           `key:"max_tokens" validate:"gt=0"`
	Style          Style         `key:"style" validate:"oneof=light dark"`
	Quality        Quality       `key:"quality" validate:"oneof=low medium high"`
	OutputDir      string        `key:"output_dir" validate:"required"`
	Verbose        bool          `key:"verbose"`
	RenderTimeout  time.Duration `key:"render_timeout" validate:"gte=0"`
	LLMTimeout     time.Duration `key:"llm_timeout" validate:"gte=0"`
	RepairAttempts int           `key:"repair_attempts" validate:"gte=0,lte=10"`
	ManimBinary    string        `key:"manim_binary" validate:"required"`
	SaveScripts    bool          `key:"save_scripts"`
	Expand         bool          `key:"expand"`
	ConfigFile     string        `key:"config"`
}

// Request is one animation order taken from the command line.
type Request struct {
	Prompt    string  `key:"prompt" validate:"required"`
	Style     Style   `key:"style" validate:"oneof=light dark"`
	Quality   Quality `key:"quality" validate:"oneof=low medium high"`
	OutputDir string  `key:"output_dir" validate:"required"`
	// Brief is the expanded plan, filled in when expansion is enabled.
	Brief string `key:"brief"`
}

// NewRequest builds and validates the request for prompt using the resolved
// style, quality and output directory.
func (c Config) NewRequest(prompt string) (Request, error) {
	req := Request{
		Prompt:    prompt,
		Style:     c.Style,
		Quality:   c.Quality,
		OutputDir: c.OutputDir,
	}
	if err := validate(req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// ReasoningModel reports whether the configured model rejects a temperature
// parameter (o1/o3/o4 families).
func (c Config) ReasoningModel() bool {
	for _, prefix := range []string{"o1", "o3", "o4"} {
		if len(c.Model) >= len(prefix) && c.Model[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
