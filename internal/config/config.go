// Package config handles loading and validating the parley configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration for the parley daemon.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Languages LanguagesConfig `mapstructure:"languages"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// HTTPConfig configures the HTTP API transport.
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// ProviderConfig selects and configures the generative-AI backend.
type ProviderConfig struct {
	Backend string       `mapstructure:"backend"` // "gemini" or "openai"
	Gemini  GeminiConfig `mapstructure:"gemini"`
	OpenAI  OpenAIConfig `mapstructure:"openai"`
}

// GeminiConfig holds Generative Language API settings.
type GeminiConfig struct {
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	SpeechModel string `mapstructure:"speech_model"`
	Voice       string `mapstructure:"voice"`
	BaseURL     string `mapstructure:"base_url"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	SpeechModel string `mapstructure:"speech_model"`
	Voice       string `mapstructure:"voice"`
}

// LanguagesConfig defines the study pair the assistant tutors between.
// Native is the learner's own language, Target the one being learned.
// Both are ISO-639-1 codes.
type LanguagesConfig struct {
	Native string `mapstructure:"native"`
	Target string `mapstructure:"target"`
}

// SpeechConfig controls synthesized-audio handling.
type SpeechConfig struct {
	// LocalPlayback additionally plays synthesized speech on the host's
	// default output device (kiosk mode). The HTTP response is unaffected.
	LocalPlayback bool `mapstructure:"local_playback"`
}

// CaptureConfig controls the microphone capture used for voice notes.
type CaptureConfig struct {
	SampleRate int `mapstructure:"sample_rate"`
	// MaxSeconds caps a single capture session's recording length.
	MaxSeconds int `mapstructure:"max_seconds"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./parley.yaml, ./configs/parley.yaml, /etc/parley/parley.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("http.port", 8080)
	v.SetDefault("provider.backend", "gemini")
	v.SetDefault("provider.gemini.api_key", "${GEMINI_API_KEY}")
	v.SetDefault("provider.gemini.model", "gemini-2.0-flash")
	v.SetDefault("provider.gemini.speech_model", "gemini-2.5-flash-preview-tts")
	v.SetDefault("provider.gemini.voice", "Kore")
	v.SetDefault("provider.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("provider.openai.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("provider.openai.model", "gpt-4o-mini")
	v.SetDefault("provider.openai.speech_model", "tts-1")
	v.SetDefault("provider.openai.voice", "alloy")
	v.SetDefault("languages.native", "en")
	v.SetDefault("languages.target", "es")
	v.SetDefault("speech.local_playback", false)
	v.SetDefault("capture.sample_rate", 16000)
	v.SetDefault("capture.max_seconds", 60)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("parley")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/parley")
	}

	// Environment variables: PARLEY_HTTP_PORT, PARLEY_PROVIDER_BACKEND, etc.
	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional — env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${GEMINI_API_KEY}").
	// An unresolved or empty key is NOT an error here: the contract is that a
	// missing credential surfaces on the first provider call, not at startup.
	cfg.Provider.Gemini.APIKey = resolveEnvRef(cfg.Provider.Gemini.APIKey)
	cfg.Provider.OpenAI.APIKey = resolveEnvRef(cfg.Provider.OpenAI.APIKey)

	if cfg.Languages.Native == cfg.Languages.Target {
		return nil, fmt.Errorf("languages.native and languages.target must differ (both %q)", cfg.Languages.Native)
	}

	return &cfg, nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
// An unset variable resolves to the empty string rather than the literal pattern.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
