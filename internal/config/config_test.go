package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ivlev/teachme/internal/apperr"
)

func strPtr(s string) *string { return &s }

func TestResolveDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Resolve(Flags{}, MapLookup(map[string]string{EnvAPIKey: "sk-env"}))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if cfg.APIKey != "sk-env" {
		t.Errorf("Expected API key from env, got %q", cfg.APIKey)
	}
	if cfg.Model != DefaultModel {
		t.Errorf("Expected model %s, got %s", DefaultModel, cfg.Model)
	}
	if cfg.Temperature != DefaultTemperature {
		t.Errorf("Expected temperature %.1f, got %.1f", DefaultTemperature, cfg.Temperature)
	}
	if cfg.Style != StyleLight || cfg.Quality != QualityLow {
		t.Errorf("Expected light/low, got %s/%s", cfg.Style, cfg.Quality)
	}
	if cfg.OutputDir != DefaultOutputDir {
		t.Errorf("Expected output dir %s, got %s", DefaultOutputDir, cfg.OutputDir)
	}
	if cfg.RepairAttempts != 0 {
		t.Errorf("Repair must be off by default, got %d", cfg.RepairAttempts)
	}
	if cfg.RenderTimeout != DefaultRenderTimeout {
		t.Errorf("Expected render timeout %s, got %s", DefaultRenderTimeout, cfg.RenderTimeout)
	}
}

func TestResolveFlagOverridesEnv(t *testing.T) {
	chdir(t, t.TempDir())

	env := MapLookup(map[string]string{
		EnvAPIKey:      "Y",
		EnvModel:       "gpt-4o-mini",
		EnvTemperature: "0.2",
	})
	temp := 1.1
	cfg, err := Resolve(Flags{APIKey: strPtr("X"), Temperature: &temp}, env)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if cfg.APIKey != "X" {
		t.Errorf("--api-key should win over OPENAI_API_KEY, got %q", cfg.APIKey)
	}
	if cfg.Temperature != 1.1 {
		t.Errorf("--temperature should win over env, got %f", cfg.Temperature)
	}
	if cfg.Model != "gpt-4o-mini" {
		t.Errorf("Expected model from env, got %s", cfg.Model)
	}
}

func TestResolveMissingAPIKey(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Resolve(Flags{APIKey: strPtr("")}, MapLookup(map[string]string{EnvAPIKey: "  "}))

	var cfgErr *apperr.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigurationError, got %v", err)
	}
	if cfgErr.Key != EnvAPIKey {
		t.Errorf("Expected key %s, got %s", EnvAPIKey, cfgErr.Key)
	}
}

func TestResolveInvalidValues(t *testing.T) {
	chdir(t, t.TempDir())

	tests := []struct {
		name    string
		flags   Flags
		env     map[string]string
		wantKey string
	}{
		{"bad temperature env", Flags{}, map[string]string{EnvTemperature: "warm"}, EnvTemperature},
		{"temperature out of range", Flags{}, map[string]string{EnvTemperature: "3.5"}, "temperature"},
		{"bad style", Flags{Style: strPtr("sepia")}, nil, "style"},
		{"bad quality", Flags{Quality: strPtr("ultra")}, nil, "quality"},
		{"empty output dir", Flags{OutputDir: strPtr("")}, nil, "output_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := map[string]string{EnvAPIKey: "sk"}
			for k, v := range tt.env {
				env[k] = v
			}
			_, err := Resolve(tt.flags, MapLookup(env))

			var cfgErr *apperr.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected ConfigurationError, got %v", err)
			}
			if cfgErr.Key != tt.wantKey {
				t.Errorf("Expected key %s, got %s (%v)", tt.wantKey, cfgErr.Key, err)
			}
		})
	}
}

func TestResolveLegacyModelEnv(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Resolve(Flags{}, MapLookup(map[string]string{EnvAPIKey: "sk", EnvLegacyModel: "o3-mini"}))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Model != "o3-mini" {
		t.Errorf("Expected TEACHME_MODEL to apply, got %s", cfg.Model)
	}
	if !cfg.ReasoningModel() {
		t.Error("o3-mini should be treated as a reasoning model")
	}
}

func TestResolveConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")

	model := "gpt-4.1"
	quality := "high"
	attempts := 2
	fc := &FileConfig{
		Model:          &model,
		Quality:        &quality,
		RepairAttempts: &attempts,
		RenderTimeout:  "5m",
	}
	if err := WriteFile(fc, path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	env := MapLookup(map[string]string{EnvAPIKey: "sk", EnvConfigFile: path, EnvModel: "gpt-4o-mini"})
	cfg, err := Resolve(Flags{Quality: strPtr("medium")}, env)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if cfg.Model != "gpt-4o-mini" {
		t.Errorf("Env should win over file, got %s", cfg.Model)
	}
	if cfg.Quality != QualityMedium {
		t.Errorf("Flag should win over file, got %s", cfg.Quality)
	}
	if cfg.RepairAttempts != 2 {
		t.Errorf("Expected repair attempts from file, got %d", cfg.RepairAttempts)
	}
	if cfg.RenderTimeout != 5*time.Minute {
		t.Errorf("Expected 5m render timeout, got %s", cfg.RenderTimeout)
	}
	if cfg.ConfigFile != path {
		t.Errorf("Expected ConfigFile %s, got %s", path, cfg.ConfigFile)
	}
}

func TestResolveExplicitConfigFileMissing(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Resolve(Flags{ConfigFile: "nope.yaml"}, MapLookup(map[string]string{EnvAPIKey: "sk"}))
	if apperr.ExitCode(err) != apperr.ExitConfiguration {
		t.Fatalf("Expected ConfigurationError for a missing explicit config file, got %v", err)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teachme.yaml")
	if err := os.WriteFile(path, []byte("api_key: sk-should-not-be-here\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Error("Expected unknown key api_key to be rejected")
	}
}

func TestNewRequest(t *testing.T) {
	cfg := Config{Style: StyleDark, Quality: QualityHigh, OutputDir: "out"}

	req, err := cfg.NewRequest("explain the Pythagorean theorem")
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if req.Style != StyleDark || req.Quality != QualityHigh || req.OutputDir != "out" {
		t.Errorf("Unexpected request %+v", req)
	}

	_, err = cfg.NewRequest("")
	var cfgErr *apperr.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Key != "prompt" {
		t.Errorf("Expected ConfigurationError on prompt, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("TEACHME_TEST_DOTENV=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEACHME_TEST_DOTENV", "")
	os.Unsetenv("TEACHME_TEST_DOTENV")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("TEACHME_TEST_DOTENV"); got != "from-file" {
		t.Errorf("Expected value from .env, got %q", got)
	}
}

func TestResolveNilLookupIgnoresProcessEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(EnvAPIKey, "sk-process")

	_, err := Resolve(Flags{}, nil)
	var cfgErr *apperr.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Key != EnvAPIKey {
		t.Fatalf("Process env must not be read without a lookup, got %v", err)
	}
}

func TestResolveExpand(t *testing.T) {
	chdir(t, t.TempDir())
	on, off := true, false
	if err := WriteFile(&FileConfig{Expand: &on}, DefaultConfigFileName); err != nil {
		t.Fatal(err)
	}
	env := MapLookup(map[string]string{EnvAPIKey: "sk"})

	cfg, err := Resolve(Flags{}, env)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !cfg.Expand {
		t.Error("Expected expand from the config file")
	}

	cfg, err = Resolve(Flags{Expand: &off}, env)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Expand {
		t.Error("Flag should switch expansion off")
	}
}
