// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embedclient is the default HTTP-backed EmbeddingGateway adapter.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/pdiddy/idea2paper/internal/gateway"
	"github.com/pdiddy/idea2paper/internal/httputil"
	"github.com/pdiddy/idea2paper/pkg/types"
)

var embeddingAPIURL = "https://api.anthropic.com/v1/embeddings"

// HTTPGateway implements gateway.EmbeddingGateway over a generic REST
// embeddings endpoint, truncating each input at gateway.MaxEmbeddingInputChars.
type HTTPGateway struct {
	APIKey     string
	Client     *http.Client
	MaxRetries int
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed implements gateway.EmbeddingGateway.
func (g *HTTPGateway) Embed(ctx context.Context, texts []string, model string) ([][]float64, error) {
	truncated := make([]string, len(texts))
	for i, t := range texts {
		if utf8.RuneCountInString(t) > gateway.MaxEmbeddingInputChars {
			t = string([]rune(t)[:gateway.MaxEmbeddingInputChars])
		}
		truncated[i] = t
	}

	body, err := json.Marshal(embedRequest{Model: model, Input: truncated})
	if err != nil {
		return nil, fmt.Errorf("marshaling embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, embeddingAPIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.APIKey)

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, g.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("calling embedding gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &types.RateLimited{RetryAfterSeconds: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding gateway returned %d", resp.StatusCode)
	}

	var eResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&eResp); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}

	vectors := make([][]float64, len(eResp.Data))
	for i, d := range eResp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// parseRetryAfter parses a Retry-After header value in seconds, returning 0
// (let the caller fall back to its own configured backoff) when absent or
// malformed.
func parseRetryAfter(header string) float64 {
	if header == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil {
		return 0
	}
	return seconds
}
