package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/teachme/internal/apperr"
)

// FileConfig mirrors teachme.yaml. Every field is optional; credentials are
// never read from it.
type FileConfig struct {
	Model          *string  `yaml:"model"`
	Temperature    *float64 `yaml:"temperature"`
	MaxTokens      *int     `yaml:"max_tokens"`
	Style          *string  `yaml:"style"`
	Quality        *string  `yaml:"quality"`
	OutputDir      *string  `yaml:"output_dir"`
	RenderTimeout  string   `yaml:"render_timeout"`
	LLMTimeout     string   `yaml:"llm_timeout"`
	RepairAttempts *int     `yaml:"repair_attempts"`
	ManimBinary    *string  `yaml:"manim_binary"`
	SaveScripts    *bool    `yaml:"save_scripts"`
	Expand         *bool    `yaml:"expand"`
}

// LoadFile reads a YAML config file
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &fc, nil
}

// WriteFile writes fc as YAML
func WriteFile(fc *FileConfig, path string) error {
	data, err := yaml.Marshal(fc)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (fc *FileConfig) apply(cfg *Config) error {
	if fc.Model != nil {
		cfg.Model = *fc.Model
	}
	if fc.Temperature != nil {
		cfg.Temperature = *fc.Temperature
	}
	if fc.MaxTokens != nil {
		cfg.MaxTokens = *fc.MaxTokens
	}
	if fc.Style != nil {
		cfg.Style = Style(strings.ToLower(*fc.Style))
	}
	if fc.Quality != nil {
		cfg.Quality = Quality(strings.ToLower(*fc.Quality))
	}
	if fc.OutputDir != nil {
		cfg.OutputDir = *fc.OutputDir
	}
	if fc.RepairAttempts != nil {
		cfg.RepairAttempts = *fc.RepairAttempts
	}
	if fc.ManimBinary != nil {
		cfg.ManimBinary = *fc.ManimBinary
	}
	if fc.SaveScripts != nil {
		cfg.SaveScripts = *fc.SaveScripts
	}
	if fc.Expand != nil {
		cfg.Expand = *fc.Expand
	}

	var err error
	if cfg.RenderTimeout, err = parseDuration("render_timeout", fc.RenderTimeout, cfg.RenderTimeout); err != nil {
		return err
	}
	if cfg.LLMTimeout, err = parseDuration("llm_timeout", fc.LLMTimeout, cfg.LLMTimeout); err != nil {
		return err
	}
	return nil
}

func parseDuration(key, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &apperr.ConfigurationError{Key: key, Msg: fmt.Sprintf("not a duration: %q", raw)}
	}
	return d, nil
}

// DefaultFileConfig spells out every default so a fresh teachme.yaml is
// self-documenting.
func DefaultFileConfig() *FileConfig {
	model, style, quality, outputDir, binary := DefaultModel, string(DefaultStyle), string(DefaultQuality), DefaultOutputDir, DefaultManimBinary
	temperature, maxTokens, repairs, save, expand := DefaultTemperature, DefaultMaxTokens, 0, true, false
	return &FileConfig{
		Model:          &model,
		Temperature:    &temperature,
		MaxTokens:      &maxTokens,
		Style:          &style,
		Quality:        &quality,
		OutputDir:      &outputDir,
		RenderTimeout:  DefaultRenderTimeout.String(),
		LLMTimeout:     "0s",
		RepairAttempts: &repairs,
		ManimBinary:    &binary,
		SaveScripts:    &save,
		Expand:         &expand,
	}
}
