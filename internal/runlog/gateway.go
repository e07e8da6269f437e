// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package runlog

import (
	"context"
	"time"

	"github.com/pdiddy/idea2paper/internal/gateway"
)

// LLMGateway decorates a gateway.LLMGateway, appending one LLMCallRecord to
// the run log per call. Stage tags which pipeline component issued the
// call, since one Logger is shared across every component in a run.
type LLMGateway struct {
	Inner  gateway.LLMGateway
	Logger *Logger
	Stage  string
}

// Chat implements gateway.LLMGateway.
func (g *LLMGateway) Chat(ctx context.Context, req gateway.ChatRequest) (gateway.ChatResponse, error) {
	promptChars := 0
	for _, m := range req.Messages {
		promptChars += len(m.Content)
	}

	resp, err := g.Inner.Chat(ctx, req)

	rec := LLMCallRecord{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Stage:         g.Stage,
		Model:         req.Model,
		PromptChars:   promptChars,
		ResponseChars: len(resp.Text),
	}
	if err != nil {
		rec.Err = err.Error()
	}
	_ = g.Logger.LLMCall(rec)

	return resp, err
}

// EmbeddingGateway decorates a gateway.EmbeddingGateway, appending one
// EmbeddingCallRecord to the run log per call.
type EmbeddingGateway struct {
	Inner  gateway.EmbeddingGateway
	Logger *Logger
	Stage  string
}

// Embed implements gateway.EmbeddingGateway.
func (g *EmbeddingGateway) Embed(ctx context.Context, texts []string, model string) ([][]float64, error) {
	vectors, err := g.Inner.Embed(ctx, texts, model)

	rec := EmbeddingCallRecord{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Stage:      g.Stage,
		Model:      model,
		InputCount: len(texts),
	}
	if err != nil {
		rec.Err = err.Error()
	}
	_ = g.Logger.EmbeddingCall(rec)

	return vectors, err
}
