package embedders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/config"
)

func embedderConfig(host string) *config.EmbedderConfig {
	cfg := &config.EmbedderConfig{Host: host}
	cfg.SetDefaults()
	return cfg
}

func TestOllamaEmbedderWireContract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req["model"])
		assert.Equal(t, "solve for x", req["prompt"])

		json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float32{0.1, 0.2, 0.3},
		})
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(embedderConfig(server.URL))
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "solve for x")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOllamaEmbedderEmptyEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{}})
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(embedderConfig(server.URL))
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "anything")
	assert.Error(t, err)
}

func TestOllamaEmbedderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(embedderConfig(server.URL))
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
