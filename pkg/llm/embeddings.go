package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// EmbeddingClient turns text into dense vectors suitable for cosine search.
type EmbeddingClient interface {
	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	Model() string
}

// NewEmbeddingClient builds an embedding client for the configured provider.
func NewEmbeddingClient(cfg Config) (EmbeddingClient, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		return newGeminiEmbedder(cfg), nil
	case "openai":
		return newOpenAIEmbedder(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}

// ProbeEmbeddingDimensions embeds a short probe string so callers can size
// storage columns before any real content arrives.
func ProbeEmbeddingDimensions(ctx context.Context, client EmbeddingClient) (int, error) {
	vectors, err := client.Embed(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimensions: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return 0, errors.New("probe embedding dimensions: empty vector")
	}
	return len(vectors[0]), nil
}

type openAIEmbedder struct {
	client *http.Client
	apiKey string
	apiURL string
	model  string
}

func newOpenAIEmbedder(cfg Config) *openAIEmbedder {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1"
	}
	return &openAIEmbedder{
		client: &http.Client{Timeout: 60 * time.Second},
		apiKey: cfg.APIKey,
		apiURL: apiURL,
		model:  cfg.Model,
	}
}

func (e *openAIEmbedder) Model() string { return e.model }

func (e *openAIEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(map[string]any{
		"model": e.model,
		"input": inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: marshal request: %w", err)
	}
	resp, err := doWithRetry(ctx, e.client, func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL+"/embeddings", bytes.NewReader(payload))
		if reqErr != nil {
			return nil, fmt.Errorf("openai embeddings: create request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		if e.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai embeddings: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("openai embeddings: decode response: %w", err)
	}
	if len(decoded.Data) != len(inputs) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(decoded.Data), len(inputs))
	}
	vectors := make([][]float32, len(inputs))
	for _, item := range decoded.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

type geminiEmbedder struct {
	client *http.Client
	apiKey string
	apiURL string
	model  string
}

func newGeminiEmbedder(cfg Config) *geminiEmbedder {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &geminiEmbedder{
		client: &http.Client{Timeout: 60 * time.Second},
		apiKey: cfg.APIKey,
		apiURL: apiURL,
		model:  cfg.Model,
	}
}

func (e *geminiEmbedder) Model() string { return e.model }

func (e *geminiEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	type embedRequest struct {
		Model   string        `json:"model"`
		Content geminiContent `json:"content"`
	}
	requests := make([]embedRequest, 0, len(inputs))
	for _, input := range inputs {
		requests = append(requests, embedRequest{
			Model:   "models/" + e.model,
			Content: geminiContent{Parts: []geminiPart{{Text: input}}},
		})
	}
	payload, err := json.Marshal(map[string]any{"requests": requests})
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", e.apiURL, e.model)

	resp, err := doWithRetry(ctx, e.client, func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if reqErr != nil {
			return nil, fmt.Errorf("gemini embeddings: create request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		if e.apiKey != "" {
			req.Header.Set("x-goog-api-key", e.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini embeddings: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Embeddings []struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("gemini embeddings: decode response: %w", err)
	}
	if len(decoded.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("gemini embeddings: got %d vectors for %d inputs", len(decoded.Embeddings), len(inputs))
	}
	vectors := make([][]float32, len(inputs))
	for i, item := range decoded.Embeddings {
		vectors[i] = item.Values
	}
	return vectors, nil
}
