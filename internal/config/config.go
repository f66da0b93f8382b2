// Package config loads biocurator settings from the environment, an
// optional YAML file and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable, e.g. BIOCURATOR_MODEL.
const EnvPrefix = "BIOCURATOR"

// LLM providers for section mode.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// Remote assistant service
	APIKey               string        `envconfig:"OPENAI_API_KEY" yaml:"api_key"`
	BaseURL              string        `envconfig:"BASE_URL" yaml:"base_url"`
	Model                string        `envconfig:"MODEL" default:"gpt-4o" yaml:"model"`
	AssistantName        string        `envconfig:"ASSISTANT_NAME" default:"Biocurator" yaml:"assistant_name"`
	AssistantDescription string        `envconfig:"ASSISTANT_DESCRIPTION" default:"Assistant for Biocuration" yaml:"assistant_description"`
	Instructions         string        `envconfig:"INSTRUCTIONS" yaml:"instructions"`
	TimeoutSeconds       int           `envconfig:"TIMEOUT_SECONDS" default:"600" yaml:"timeout_seconds"`
	PollInterval         time.Duration `envconfig:"POLL_INTERVAL" default:"5s" yaml:"poll_interval"`

	// Batch input and output
	InputDir    string `envconfig:"INPUT_DIR" default:"input" yaml:"input_dir"`
	OutputDir   string `envconfig:"OUTPUT_DIR" default:"output" yaml:"output_dir"`
	PromptsFile string `envconfig:"PROMPTS_FILE" default:"prompts.yaml" yaml:"prompts_file"`
	ToolsFile   string `envconfig:"TOOLS_FILE" yaml:"tools_file"`

	// Self-correction
	SelfCorrect    bool   `envconfig:"SELF_CORRECT" yaml:"self_correct"`
	ReasoningField string `envconfig:"REASONING_FIELD" default:"reasoning" yaml:"reasoning_field"`
	DecisionField  string `envconfig:"DECISION_FIELD" default:"triage_result" yaml:"decision_field"`

	// Section mode
	MaxTokens       int      `envconfig:"MAX_TOKENS" default:"8000" yaml:"max_tokens"`
	TokensPerMinute int      `envconfig:"TOKENS_PER_MINUTE" default:"9000" yaml:"tokens_per_minute"`
	Sections        []string `envconfig:"SECTIONS" default:"RESULTS,DISCUSSION" yaml:"sections"`
	Encoding        string   `envconfig:"ENCODING" default:"cl100k_base" yaml:"encoding"`
	LLMProvider     string   `envconfig:"LLM_PROVIDER" default:"openai" yaml:"llm_provider"`
	LLMModel        string   `envconfig:"LLM_MODEL" default:"gpt-4o" yaml:"llm_model"`
	OllamaHost      string   `envconfig:"OLLAMA_HOST" default:"http://localhost:11434" yaml:"ollama_host"`
	AnthropicAPIKey string   `envconfig:"ANTHROPIC_API_KEY" yaml:"anthropic_api_key"`
	AWSRegion       string   `envconfig:"AWS_REGION" yaml:"aws_region"`

	// Logging and metrics
	LogFile     string `envconfig:"LOG_FILE" yaml:"log_file"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"INFO" yaml:"log_level"`
	MetricsFile string `envconfig:"METRICS_FILE" yaml:"metrics_file"`
}

// Load reads configuration from environment variables and then overlays
// the YAML file at path, if path is not empty. Keys absent from the file
// keep their environment or default values.
func Load(path string) (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every missing or out-of-range setting needed to run a
// curation batch.
func (c Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("api key is required (OPENAI_API_KEY or --api-key)"))
	}
	if c.InputDir == "" {
		errs = append(errs, errors.New("input directory is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.PromptsFile == "" {
		errs = append(errs, errors.New("prompts file is required"))
	}
	if c.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	return errors.Join(errs...)
}

// ValidateSections reports settings needed by section mode.
func (c Config) ValidateSections() error {
	var errs []error
	if c.PromptsFile == "" {
		errs = append(errs, errors.New("prompts file is required"))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens))
	}
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderBedrock:
	default:
		errs = append(errs, fmt.Errorf("unsupported llm_provider %q", c.LLMProvider))
	}
	return errors.Join(errs...)
}

// Timeout returns the per-run timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Level returns the parsed log level.
func (c Config) Level() slog.Level {
	return parseLogLevel(c.LogLevel)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
