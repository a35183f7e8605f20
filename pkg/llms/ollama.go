package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/config"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/httpclient"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/observability"
)

// OllamaProvider talks to the Ollama /api/generate endpoint.
type OllamaProvider struct {
	config *config.LLMConfig
	client *httpclient.Client
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// NewOllamaProvider creates a provider from config.
func NewOllamaProvider(cfg *config.LLMConfig) (*OllamaProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	baseURL := strings.TrimSuffix(cfg.Host, "/")

	return &OllamaProvider{
		config: cfg,
		client: httpclient.New(baseURL,
			httpclient.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
			httpclient.WithMaxRetries(cfg.MaxRetries),
		),
	}, nil
}

// Generate implements Provider.
func (p *OllamaProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Result, error) {
	startTime := time.Now()

	tracer := observability.GetTracer("llms")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, p.config.Model),
			attribute.String("provider", "ollama"),
		),
	)
	defer span.End()

	response, err := p.makeRequest(ctx, p.buildRequest(prompt, opts))
	duration := time.Since(startTime)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.GetGlobalMetrics().RecordLLMCall(ctx, duration, 0, 0, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int(observability.AttrLLMTokensInput, response.PromptEvalCount),
		attribute.Int(observability.AttrLLMTokensOutput, response.EvalCount),
	)
	span.SetStatus(codes.Ok, "success")
	observability.GetGlobalMetrics().RecordLLMCall(ctx, duration, response.PromptEvalCount, response.EvalCount, nil)

	return &Result{
		Text:         response.Response,
		Model:        response.Model,
		PromptTokens: response.PromptEvalCount,
		OutputTokens: response.EvalCount,
		Elapsed:      duration,
	}, nil
}

// GenerateStream implements StreamingProvider. Fragments arrive as Ollama
// emits them, one JSON object per line.
func (p *OllamaProvider) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error) {
	request := p.buildRequest(prompt, opts)
	request.Stream = true

	outputCh := make(chan StreamChunk, 100)

	go func() {
		defer close(outputCh)

		if err := p.makeStreamingRequest(ctx, request, outputCh); err != nil {
			outputCh <- StreamChunk{Err: err}
		}
	}()

	return outputCh, nil
}

// ModelName implements Provider.
func (p *OllamaProvider) ModelName() string {
	return p.config.Model
}

// Close implements Provider.
func (p *OllamaProvider) Close() error {
	return nil
}

func (p *OllamaProvider) buildRequest(prompt string, opts GenerateOptions) ollamaGenerateRequest {
	request := ollamaGenerateRequest{
		Model:  p.config.Model,
		Prompt: prompt,
		System: opts.System,
		Stream: false,
	}

	temperature := 0.0
	if p.config.Temperature != nil {
		temperature = *p.config.Temperature
	}
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	maxTokens := p.config.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	if temperature > 0 || maxTokens > 0 {
		request.Options = &ollamaOptions{
			Temperature: temperature,
			NumPredict:  maxTokens,
		}
	}

	return request
}

func (p *OllamaProvider) makeRequest(ctx context.Context, request ollamaGenerateRequest) (*ollamaGenerateResponse, error) {
	resp, err := p.client.PostJSON(ctx, "/api/generate", request)
	if err != nil {
		return nil, fmt.Errorf("failed to reach inference server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// 404 means the model was never pulled.
	if resp.StatusCode == http.StatusNotFound {
		return nil, &ModelMissingError{Model: p.config.Model}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response ollamaGenerateResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("Ollama API error: %s", response.Error)
	}

	return &response, nil
}

func (p *OllamaProvider) makeStreamingRequest(ctx context.Context, request ollamaGenerateRequest, outputCh chan<- StreamChunk) error {
	resp, err := p.client.PostJSON(ctx, "/api/generate", request)
	if err != nil {
		return fmt.Errorf("failed to reach inference server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &ModelMissingError{Model: p.config.Model}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var chunk ollamaGenerateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return fmt.Errorf("Ollama API error: %s", chunk.Error)
		}

		if chunk.Response != "" {
			outputCh <- StreamChunk{Text: chunk.Response}
		}
		if chunk.Done {
			outputCh <- StreamChunk{Done: true}
			return nil
		}
	}
}

var _ StreamingProvider = (*OllamaProvider)(nil)
