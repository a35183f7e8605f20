package config

import "fmt"

// LLMConfig configures the local inference endpoint used for both the
// analysis call and the tutor-response call.
type LLMConfig struct {
	// Host is the inference server base URL.
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"default=http://localhost:11434"`

	// Model is the model name passed in each request.
	Model string `yaml:"model,omitempty" json:"model,omitempty" jsonschema:"default=qwen2.5:7b"`

	// Temperature for generation.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty" jsonschema:"minimum=0,maximum=2,default=0.7"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" jsonschema:"minimum=1,default=1024"`

	// TimeoutSeconds is the total budget for one generation call.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty" jsonschema:"default=30"`

	// MaxRetries bounds retries of transport-level failures. HTTP errors are
	// never retried.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"default=2"`

	// EnableFallback returns FallbackText instead of an error when all
	// retries fail. The student never sees an exception.
	EnableFallback *bool `yaml:"enable_fallback,omitempty" json:"enable_fallback,omitempty" jsonschema:"default=true"`

	// FallbackText is the degraded response body.
	FallbackText string `yaml:"fallback_text,omitempty" json:"fallback_text,omitempty"`
}

func (c *LLMConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = "qwen2.5:7b"
	}
	if c.Temperature == nil {
		temp := 0.7
		c.Temperature = &temp
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.EnableFallback == nil {
		enabled := true
		c.EnableFallback = &enabled
	}
	if c.FallbackText == "" {
		c.FallbackText = "I'm having a little trouble right now. Keep going with your reasoning and I'll catch up."
	}
}

func (c *LLMConfig) Validate() error {
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must be non-negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	return nil
}

// EmbedderConfig configures the embedding endpoint owned by the retrieval
// port.
type EmbedderConfig struct {
	// Host is the embedding server base URL.
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"default=http://localhost:11434"`

	// Model is the embedding model name.
	Model string `yaml:"model,omitempty" json:"model,omitempty" jsonschema:"default=nomic-embed-text"`

	// Dimension of produced vectors.
	Dimension int `yaml:"dimension,omitempty" json:"dimension,omitempty" jsonschema:"default=768"`

	// TimeoutSeconds per embedding request.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty" jsonschema:"default=10"`

	// MaxRetries for transient embedding failures.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"default=3"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = "nomic-embed-text"
	}
	if c.Dimension == 0 {
		c.Dimension = 768
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 10
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

func (c *EmbedderConfig) Validate() error {
	if c.Dimension < 0 {
		return fmt.Errorf("dimension must be non-negative")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must be non-negative")
	}
	return nil
}
