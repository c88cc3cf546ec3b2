package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultPerplexityURL = "https://api.perplexity.ai"

const broadResearchPrompt = "Summarize the topics currently generating the most discussion " +
	"across tech and developer communities. Cover concrete events and announcements, not evergreen themes."

// PerplexityProvider summarizes recent web material through the Perplexity
// chat completions API.
type PerplexityProvider struct {
	apiKey string
	apiURL string
	model  string
	client *http.Client
}

// NewPerplexityProvider creates a Perplexity research provider.
func NewPerplexityProvider(apiKey, apiURL, model string) (*PerplexityProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("perplexity api key is required")
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultPerplexityURL
	}
	if strings.TrimSpace(model) == "" {
		model = "sonar"
	}
	return &PerplexityProvider{
		apiKey: apiKey,
		apiURL: strings.TrimRight(apiURL, "/"),
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type perplexityRequest struct {
	Model    string              `json:"model"`
	Messages []perplexityMessage `json:"messages"`
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Research executes a research query, returning the model's prose summary.
// Failures come back as a *ResearchError.
func (p *PerplexityProvider) Research(ctx context.Context, topic string) (string, error) {
	summary, err := p.research(ctx, topic)
	if err != nil {
		return "", &ResearchError{Topic: strings.TrimSpace(topic), Err: err}
	}
	return summary, nil
}

func (p *PerplexityProvider) research(ctx context.Context, topic string) (string, error) {
	prompt := broadResearchPrompt
	if strings.TrimSpace(topic) != "" {
		prompt = fmt.Sprintf("Summarize the latest news, discussions, and notable takes about: %s. "+
			"Prefer events from the last week and include specifics.", topic)
	}

	reqBody := perplexityRequest{
		Model: p.model,
		Messages: []perplexityMessage{
			{Role: "system", Content: "You are a research assistant. Respond with a dense factual summary, no preamble."},
			{Role: "user", Content: prompt},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal perplexity request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create perplexity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("perplexity request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("perplexity request failed with status %d", resp.StatusCode)
	}

	var decoded perplexityResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode perplexity response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("perplexity returned no choices")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}
