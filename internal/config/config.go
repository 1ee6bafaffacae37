// Package config provides Viper-based configuration loading for the narrative player.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// Project source modes.
const (
	SourceFile = "file"
	SourceAPI  = "api"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// Output is "stderr", "stdout", or a file path.
	Output string `mapstructure:"output"`
}

// ProjectConfig selects where the project document comes from.
type ProjectConfig struct {
	// Source is "file" for a local export or "api" for the remote project API.
	Source string `mapstructure:"source"`
	// Path is the local JSON export used when Source is "file".
	Path string `mapstructure:"path"`
	// APIURL is the base URL of the project API.
	APIURL string `mapstructure:"api_url"`
	// APIToken is the bearer token sent to the project API.
	APIToken string `mapstructure:"api_token"`
	// Hash identifies the project on the API.
	Hash string `mapstructure:"hash"`
	// Timeout bounds a single API fetch.
	Timeout time.Duration `mapstructure:"timeout"`
}

// LocaleConfig holds the active locale and the fallback policy applied at
// translation lookups.
type LocaleConfig struct {
	// Enabled turns on localized lookups. When false authored text is used.
	Enabled bool `mapstructure:"enabled"`
	// Locale is the requested locale as a BCP 47 tag (e.g. "en", "fr-CA").
	Locale string `mapstructure:"locale"`
	// FallbackToDefault falls back to the project's default locale on a miss.
	FallbackToDefault bool `mapstructure:"fallback_to_default"`
}

// ScriptingConfig holds script evaluation settings.
type ScriptingConfig struct {
	// InstructionLimit caps Lua opcodes per evaluation. 0 = default limit.
	InstructionLimit int `mapstructure:"instruction_limit"`
	// StripMarkup removes markup from rendered text before it reaches the host.
	StripMarkup bool `mapstructure:"strip_markup"`
}

// FlowConfig holds flow resolution settings.
type FlowConfig struct {
	// MaxHops bounds branch/jumper indirection followed by a single resolve.
	MaxHops int `mapstructure:"max_hops"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Project   ProjectConfig   `mapstructure:"project"`
	Locale    LocaleConfig    `mapstructure:"locale"`
	Scripting ScriptingConfig `mapstructure:"scripting"`
	Flow      FlowConfig      `mapstructure:"flow"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateProject(c.Project); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLocale(c.Locale); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateScripting(c.Scripting); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Flow.MaxHops < 1 {
		errs = append(errs, fmt.Sprintf("flow.max_hops must be >= 1, got %d", c.Flow.MaxHops))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateProject(p ProjectConfig) error {
	var errs []string
	switch p.Source {
	case SourceFile:
		if p.Path == "" {
			errs = append(errs, "project.path must not be empty when project.source is file")
		}
	case SourceAPI:
		if p.APIURL == "" {
			errs = append(errs, "project.api_url must not be empty when project.source is api")
		}
		if p.APIToken == "" {
			errs = append(errs, "project.api_token must not be empty when project.source is api")
		}
		if p.Hash == "" {
			errs = append(errs, "project.hash must not be empty when project.source is api")
		}
	default:
		errs = append(errs, fmt.Sprintf("project.source must be one of [file, api], got %q", p.Source))
	}
	if p.Timeout < 0 {
		errs = append(errs, "project.timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLocale(l LocaleConfig) error {
	if !l.Enabled {
		return nil
	}
	if l.Locale == "" {
		return fmt.Errorf("locale.locale must not be empty when locale.enabled is true")
	}
	if _, err := language.Parse(l.Locale); err != nil {
		return fmt.Errorf("locale.locale %q is not a valid language tag: %v", l.Locale, err)
	}
	return nil
}

func validateScripting(s ScriptingConfig) error {
	if s.InstructionLimit < 0 {
		return fmt.Errorf("scripting.instruction_limit must be >= 0, got %d", s.InstructionLimit)
	}
	return nil
}

// Override sets a value on top of file and environment configuration.
type Override func(v *viper.Viper)

// WithValue returns an Override that sets key to value. Empty strings are
// ignored so unset command-line flags leave the file value in place.
func WithValue(key string, value any) Override {
	return func(v *viper.Viper) {
		if s, ok := value.(string); ok && s == "" {
			return
		}
		v.Set(key, value)
	}
}

// Load reads configuration from the given file path, applies environment variable
// overrides and then overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string, overrides ...Override) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with WEAVE_ prefix
	v.SetEnvPrefix("WEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	for _, o := range overrides {
		o(v)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only default values.
//
// Postcondition: Returns a non-nil Viper; LoadFromViper on it fails only on project settings.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("project.source", SourceFile)
	v.SetDefault("project.api_url", "https://arcweave.com/api")
	v.SetDefault("project.timeout", "30s")

	v.SetDefault("locale.enabled", false)
	v.SetDefault("locale.locale", "en")
	v.SetDefault("locale.fallback_to_default", true)

	v.SetDefault("scripting.instruction_limit", 0)
	v.SetDefault("scripting.strip_markup", true)

	v.SetDefault("flow.max_hops", 64)
}
