package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/ivlev/teachme/internal/apperr"
)

const (
	EnvAPIKey      = "OPENAI_API_KEY"
	EnvModel       = "OPENAI_MODEL"
	EnvTemperature = "OPENAI_TEMPERATURE"
	EnvBaseURL     = "OPENAI_BASE_URL"
	EnvLegacyModel = "TEACHME_MODEL"
	EnvConfigFile  = "TEACHME_CONFIG"
)

// LookupFunc has the shape of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// MapLookup adapts a plain map for tests and for callers that snapshot the
// environment.
func MapLookup(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

// Flags carries values the user typed explicitly. A nil pointer means the
// flag was not given and lower layers decide.
type Flags struct {
	APIKey         *string
	Model          *string
	Temperature    *float64
	Style          *string
	Quality        *string
	OutputDir      *string
	RepairAttempts *int
	Expand         *bool
	ConfigFile     string
	Verbose        bool
}

var validate = newValidator()

func newValidator() func(any) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("key"); name != "" {
			return name
		}
		return fld.Name
	})

	return func(s any) error {
		err := v.Struct(s)
		if err == nil {
			return nil
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return &apperr.ConfigurationError{Msg: "invalid configuration", Err: err}
		}
		fe := verrs[0]
		msg := fmt.Sprintf("invalid value %v (%s %s)", fe.Value(), fe.Tag(), fe.Param())
		if fe.Tag() == "required" {
			msg = "value is required"
		}
		return &apperr.ConfigurationError{Key: fe.Field(), Msg: strings.TrimSpace(msg)}
	}
}

// Resolve merges flags, environment, config file and defaults, in that order
// of precedence, and validates the result. A missing API key is reported
// before anything touches the network. A nil lookup is an empty environment;
// the process environment is only seen through the lookup cmd/ passes in.
func Resolve(flags Flags, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		lookup = MapLookup(nil)
	}

	cfg := Config{
		Model:         DefaultModel,
		Temperature:   DefaultTemperature,
		MaxTokens:     DefaultMaxTokens,
		Style:         DefaultStyle,
		Quality:       DefaultQuality,
		OutputDir:     DefaultOutputDir,
		RenderTimeout: DefaultRenderTimeout,
		ManimBinary:   DefaultManimBinary,
		SaveScripts:   true,
		Verbose:       flags.Verbose,
	}

	// 1. Файл конфигурации (самый низкий приоритет после дефолтов)
	path, explicit := configFilePath(flags, lookup)
	if path != "" {
		fc, err := LoadFile(path)
		switch {
		case err == nil:
			if err := fc.apply(&cfg); err != nil {
				return Config{}, err
			}
			cfg.ConfigFile = path
		case !explicit && errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, &apperr.ConfigurationError{Key: "config", Msg: "cannot load " + path, Err: err}
		}
	}

	// 2. Переменные окружения
	if v, ok := nonEmpty(lookup, EnvAPIKey); ok {
		cfg.APIKey = v
	}
	if v, ok := nonEmpty(lookup, EnvBaseURL); ok {
		cfg.BaseURL = v
	}
	if v, ok := nonEmpty(lookup, EnvModel); ok {
		cfg.Model = v
	} else if v, ok := nonEmpty(lookup, EnvLegacyModel); ok {
		cfg.Model = v
	}
	if v, ok := nonEmpty(lookup, EnvTemperature); ok {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, &apperr.ConfigurationError{Key: EnvTemperature, Msg: fmt.Sprintf("not a number: %q", v)}
		}
		cfg.Temperature = t
	}

	// 3. Явные флаги
	if flags.APIKey != nil && *flags.APIKey != "" {
		cfg.APIKey = *flags.APIKey
	}
	if flags.Model != nil && *flags.Model != "" {
		cfg.Model = *flags.Model
	}
	if flags.Temperature != nil {
		cfg.Temperature = *flags.Temperature
	}
	if flags.Style != nil {
		cfg.Style = Style(strings.ToLower(*flags.Style))
	}
	if flags.Quality != nil {
		cfg.Quality = Quality(strings.ToLower(*flags.Quality))
	}
	if flags.OutputDir != nil {
		cfg.OutputDir = *flags.OutputDir
	}
	if flags.RepairAttempts != nil {
		cfg.RepairAttempts = *flags.RepairAttempts
	}
	if flags.Expand != nil {
		cfg.Expand = *flags.Expand
	}

	if cfg.APIKey == "" {
		return Config{}, &apperr.ConfigurationError{Key: EnvAPIKey, Msg: "no API key found in flags or environment"}
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func configFilePath(flags Flags, lookup LookupFunc) (string, bool) {
	if flags.ConfigFile != "" {
		return flags.ConfigFile, true
	}
	if v, ok := nonEmpty(lookup, EnvConfigFile); ok {
		return v, true
	}
	return DefaultConfigFileName, false
}

func nonEmpty(lookup LookupFunc, key string) (string, bool) {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}
