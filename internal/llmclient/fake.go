// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llmclient

import (
	"context"
	"sync"

	"github.com/pdiddy/idea2paper/internal/gateway"
)

// FakeGateway is a deterministic in-memory gateway.LLMGateway used by the
// engine's own test suite. Responses is consumed in order; a call past the
// end of Responses reuses the last entry so callers do not need to size the
// slice exactly to the number of expected calls. Safe for concurrent use,
// since the critic issues one call per role in parallel.
type FakeGateway struct {
	Responses []string
	Calls     []gateway.ChatRequest

	mu   sync.Mutex
	next int
}

// Chat implements gateway.LLMGateway.
func (f *FakeGateway) Chat(_ context.Context, req gateway.ChatRequest) (gateway.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, req)
	if len(f.Responses) == 0 {
		return gateway.ChatResponse{Text: "{}"}, nil
	}
	idx := f.next
	if idx >= len(f.Responses) {
		idx = len(f.Responses) - 1
	} else {
		f.next++
	}
	return gateway.ChatResponse{Text: f.Responses[idx]}, nil
}
