// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package runlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpen_WritesMetaAndAppendsLines(t *testing.T) {
	dir := t.TempDir()
	logger, err := Open(dir, "run-1", "an idea", time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.NoError(t, logger.Event(Event{Timestamp: "t1", Stage: "recall", Message: "started"}))
	require.NoError(t, logger.LLMCall(LLMCallRecord{Timestamp: "t2", Stage: "story", Model: "m1", PromptChars: 10, ResponseChars: 20}))
	require.NoError(t, logger.EmbeddingCall(EmbeddingCallRecord{Timestamp: "t3", Stage: "recall", Model: "e1", InputCount: 3}))
	require.NoError(t, logger.Close())

	metaBytes, err := os.ReadFile(filepath.Join(dir, "run-1", metaFile))
	require.NoError(t, err)
	var meta Meta
	require.NoError(t, json.Unmarshal(metaBytes, &meta))
	require.Equal(t, "run-1", meta.RunID)
	require.Equal(t, "an idea", meta.UserIdea)

	requireOneLine(t, filepath.Join(dir, "run-1", eventsFile))
	requireOneLine(t, filepath.Join(dir, "run-1", llmCallsFile))
	requireOneLine(t, filepath.Join(dir, "run-1", embeddingCallsFile))
}

func requireOneLine(t *testing.T, path string) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		count++
	}
	require.Equal(t, 1, count)
}
