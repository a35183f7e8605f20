package embedders

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/config"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/httpclient"
)

// Global mutex to serialize Ollama embedding requests.
// Ollama's llama runner crashes when receiving concurrent embedding requests.
var ollamaEmbedMu sync.Mutex

// OllamaEmbedder produces embeddings via the Ollama /api/embeddings endpoint.
type OllamaEmbedder struct {
	config *config.EmbedderConfig
	client *httpclient.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaEmbedder creates an embedder from config.
func NewOllamaEmbedder(cfg *config.EmbedderConfig) (*OllamaEmbedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	return &OllamaEmbedder{
		config: cfg,
		client: httpclient.New(cfg.Host,
			httpclient.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
			httpclient.WithMaxRetries(cfg.MaxRetries),
		),
	}, nil
}

// Embed implements Embedder.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	// Serialize all Ollama embedding requests to prevent runner crashes.
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	slog.Debug("Ollama embedding request", "model", e.config.Model, "text_length", len(text))

	request := ollamaEmbedRequest{
		Model:  e.config.Model,
		Prompt: text,
	}

	resp, err := e.client.PostJSON(ctx, "/api/embeddings", request)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API returned status %d: %s", resp.StatusCode, string(body))
	}

	var response ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Embedding) == 0 {
		return nil, fmt.Errorf("received empty embedding from Ollama")
	}

	return response.Embedding, nil
}

// Dimension implements Embedder.
func (e *OllamaEmbedder) Dimension() int {
	return e.config.Dimension
}

// ModelName implements Embedder.
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Close implements Embedder.
func (e *OllamaEmbedder) Close() error {
	return nil
}

var _ Embedder = (*OllamaEmbedder)(nil)
