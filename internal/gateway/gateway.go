// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gateway defines the two external LLM/embedding capability
// contracts the engine consumes. No transport detail leaks past this
// package boundary; concrete adapters live in internal/llmclient and
// internal/embedclient.
package gateway

import "context"

// ResponseFormat hints how the caller wants the LLM's text shaped. It is a
// hint only — callers must still validate the returned text.
type ResponseFormat string

const (
	ResponseFormatText ResponseFormat = ""
	ResponseFormatJSON ResponseFormat = "json"
)

// ChatMessage is one turn in an LLM chat request.
type ChatMessage struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// ChatRequest is a single LLMGateway.Chat call's parameters.
type ChatRequest struct {
	Messages       []ChatMessage
	Model          string
	Temperature    float64
	MaxTokens      int
	ResponseFormat ResponseFormat
}

// Usage reports token accounting for one chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// ChatResponse is the result of one LLMGateway.Chat call.
type ChatResponse struct {
	Text    string
	Usage   Usage
	Latency float64 // seconds
}

// LLMGateway is the engine's single required LLM capability.
type LLMGateway interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// MaxEmbeddingInputChars bounds a single embedding text input; longer
// inputs are truncated before dispatch.
const MaxEmbeddingInputChars = 2000

// EmbeddingGateway produces fixed-dimension vectors for a model.
type EmbeddingGateway interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float64, error)
}
