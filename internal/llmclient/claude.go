// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llmclient is the default HTTP-backed LLMGateway adapter, calling
// the Claude Messages API.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pdiddy/idea2paper/internal/gateway"
	"github.com/pdiddy/idea2paper/internal/httputil"
)

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeGateway implements gateway.LLMGateway against the Claude Messages API.
type ClaudeGateway struct {
	APIKey     string
	Client     *http.Client
	MaxRetries int
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
	Usage   claudeUsage     `json:"usage"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Chat implements gateway.LLMGateway.
func (c *ClaudeGateway) Chat(ctx context.Context, req gateway.ChatRequest) (gateway.ChatResponse, error) {
	var system string
	messages := make([]claudeMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		messages = append(messages, claudeMessage{Role: m.Role, Content: m.Content})
	}

	body := claudeRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      system,
		Messages:    messages,
	}
	if req.ResponseFormat == gateway.ResponseFormatJSON {
		body.System += "\nRespond with JSON only. Do not include any text outside the JSON object."
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return gateway.ChatResponse{}, fmt.Errorf("marshaling chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return gateway.ChatResponse{}, fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := httputil.DoWithRetry(ctx, client, httpReq, c.MaxRetries)
	if err != nil {
		return gateway.ChatResponse{}, &transportErr{op: "chat", err: err}
	}
	defer resp.Body.Close()
	latency := time.Since(start).Seconds()

	if resp.StatusCode == http.StatusTooManyRequests {
		return gateway.ChatResponse{}, &rateLimitErr{}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return gateway.ChatResponse{}, &transportErr{op: "chat", err: fmt.Errorf("claude API returned %d: %s", resp.StatusCode, string(respBody))}
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return gateway.ChatResponse{}, fmt.Errorf("decoding claude response: %w", err)
	}

	var text string
	for _, block := range cResp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return gateway.ChatResponse{}, fmt.Errorf("claude API returned no text content")
	}

	return gateway.ChatResponse{
		Text: text,
		Usage: gateway.Usage{
			PromptTokens:     cResp.Usage.InputTokens,
			CompletionTokens: cResp.Usage.OutputTokens,
		},
		Latency: latency,
	}, nil
}

type transportErr struct {
	op  string
	err error
}

func (e *transportErr) Error() string { return fmt.Sprintf("transport error during %s: %v", e.op, e.err) }
func (e *transportErr) Unwrap() error { return e.err }

type rateLimitErr struct{}

func (e *rateLimitErr) Error() string { return "rate limited" }
