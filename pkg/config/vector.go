package config

import "fmt"

// VectorConfig selects and configures the vector store backend.
type VectorConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"enum=chromem,enum=qdrant,default=chromem"`

	// Collection is the corpus collection name.
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty" jsonschema:"default=tutoring_corpus"`

	// PersistPath enables file persistence for the chromem backend.
	PersistPath string `yaml:"persist_path,omitempty" json:"persist_path,omitempty"`

	// Compress enables gzip compression for chromem persistence.
	Compress bool `yaml:"compress,omitempty" json:"compress,omitempty"`

	// Host is the Qdrant server hostname.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port is the Qdrant gRPC port.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// APIKey for authenticated Qdrant access.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// UseTLS enables TLS for Qdrant connections.
	UseTLS bool `yaml:"use_tls,omitempty" json:"use_tls,omitempty"`
}

func (c *VectorConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "chromem"
	}
	if c.Collection == "" {
		c.Collection = "tutoring_corpus"
	}
	if c.Provider == "qdrant" {
		if c.Host == "" {
			c.Host = "localhost"
		}
		if c.Port == 0 {
			c.Port = 6334
		}
	}
}

func (c *VectorConfig) Validate() error {
	switch c.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("invalid provider %q (valid: chromem, qdrant)", c.Provider)
	}
	return nil
}
