// Package config loads and validates the tutoring engine configuration.
//
// Configuration comes from a YAML file with ${VAR} environment expansion.
// A .env file next to the working directory is loaded first (best-effort).
// Every section follows the same contract: SetDefaults() fills zero values,
// Validate() rejects inconsistent settings.
package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the tutoring engine.
type Config struct {
	Logger   LoggerConfig   `yaml:"logger,omitempty" json:"logger,omitempty" jsonschema:"title=Logger,description=Logging configuration"`
	LLM      LLMConfig      `yaml:"llm,omitempty" json:"llm,omitempty" jsonschema:"title=LLM,description=LLM provider configuration"`
	Embedder EmbedderConfig `yaml:"embedder,omitempty" json:"embedder,omitempty" jsonschema:"title=Embedder,description=Embedding provider configuration"`
	Vector   VectorConfig   `yaml:"vector,omitempty" json:"vector,omitempty" jsonschema:"title=Vector Store,description=Vector store configuration"`
	Tutoring TutoringConfig `yaml:"tutoring,omitempty" json:"tutoring,omitempty" jsonschema:"title=Tutoring,description=Dialog engine thresholds and bounds"`

	// Database enables durable session persistence. When nil, sessions are
	// kept in memory only.
	Database *DatabaseConfig `yaml:"database,omitempty" json:"database,omitempty" jsonschema:"title=Database,description=Session persistence database"`

	Observability ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty" jsonschema:"title=Observability,description=Tracing and metrics"`
}

// ObservabilityConfig toggles tracing and metrics.
type ObservabilityConfig struct {
	TracingEnabled bool    `yaml:"tracing_enabled,omitempty" json:"tracing_enabled,omitempty"`
	MetricsEnabled bool    `yaml:"metrics_enabled,omitempty" json:"metrics_enabled,omitempty"`
	SamplingRate   float64 `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty"`
	ServiceName    string  `yaml:"service_name,omitempty" json:"service_name,omitempty"`
}

// LoggerConfig configures the slog logger.
type LoggerConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`

	// File is the log file path. Empty logs to stderr.
	File string `yaml:"file,omitempty" json:"file,omitempty"`

	// Format is "simple" or "verbose".
	Format string `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"enum=simple,enum=verbose,default=simple"`
}

func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

func (c *LoggerConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with environment values. Unset
// variables expand to the empty string.
func expandEnv(content []byte) []byte {
	return envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Load reads, expands, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	// .env is optional; ignore a missing file.
	_ = godotenv.Load()

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	content = expandEnv(content)

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a zero-config setup: local Ollama for generation and
// embeddings, embedded chromem vector store, in-memory sessions.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies defaults to all sections.
func (c *Config) SetDefaults() {
	c.Logger.SetDefaults()
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults()
	c.Vector.SetDefaults()
	c.Tutoring.SetDefaults()
	if c.Database != nil {
		c.Database.SetDefaults()
	}
	if c.Observability.SamplingRate == 0 {
		c.Observability.SamplingRate = 1.0
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "llm-ta"
	}
}

// Validate checks all sections.
func (c *Config) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if err := c.Vector.Validate(); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	if err := c.Tutoring.Validate(); err != nil {
		return fmt.Errorf("tutoring: %w", err)
	}
	if c.Database != nil {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}
