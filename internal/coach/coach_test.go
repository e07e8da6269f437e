// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package coach

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/idea2paper/internal/llmclient"
	"github.com/pdiddy/idea2paper/pkg/types"
)

const coachJSON = `{"field_feedback":{"title":"tighten"},"suggested_edits":[{"field":"title","action":"rewrite","content":"shorter title"}],"priority":["title"]}`

func TestAdvise_ParsesResponse(t *testing.T) {
	fake := &llmclient.FakeGateway{Responses: []string{coachJSON}}
	c := &Coach{LLM: fake, Config: types.SamplingConfig{JSONRetries: 1}}

	result, err := c.Advise(context.Background(), types.Story{Title: "t"}, types.CriticAudit{})
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, result.Priority)
	assert.Len(t, result.SuggestedEdits, 1)
}

func TestAdvise_RepairsOnBadJSON(t *testing.T) {
	fake := &llmclient.FakeGateway{Responses: []string{"nope", coachJSON}}
	c := &Coach{LLM: fake, Config: types.SamplingConfig{JSONRetries: 2}}

	_, err := c.Advise(context.Background(), types.Story{}, types.CriticAudit{})
	require.NoError(t, err)
	assert.Len(t, fake.Calls, 2)
}
