// Package ai holds the client for the local model server the inference
// route proxies to.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// OllamaClient speaks the Ollama HTTP API. Only non-streaming generation
// is used; the route returns the full completion in one response.
type OllamaClient struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
}

// OllamaOption configures the client.
type OllamaOption func(*OllamaClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) OllamaOption {
	return func(o *OllamaClient) {
		if c != nil {
			o.httpClient = c
		}
	}
}

func NewOllamaClient(baseURL, defaultModel string, opts ...OllamaOption) *OllamaClient {
	c := &OllamaClient{
		baseURL:      baseURL,
		defaultModel: defaultModel,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate requests a completion. A blank model falls back to the
// configured default.
func (c *OllamaClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = c.defaultModel
	}
	body, err := json.Marshal(generateRequest{Model: model, Prompt: prompt})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama decode: %w", err)
	}
	return out.Response, nil
}
