package vector

import (
	"fmt"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/config"
)

// New constructs the provider named by cfg.Provider.
func New(cfg *config.VectorConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vector config is required")
	}

	switch cfg.Provider {
	case "", "chromem":
		return NewChromemProvider(ChromemConfig{
			PersistPath: cfg.PersistPath,
			Compress:    cfg.Compress,
		})
	case "qdrant":
		return NewQdrantProvider(QdrantConfig{
			Host:   cfg.Host,
			Port:   cfg.Port,
			APIKey: cfg.APIKey,
			UseTLS: cfg.UseTLS,
		})
	default:
		return nil, fmt.Errorf("unknown vector provider: %s (supported: chromem, qdrant)", cfg.Provider)
	}
}
