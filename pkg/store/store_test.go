package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdhe/essay-forge/pkg/dispatch"
)

func sampleResults() []dispatch.Result {
	return []dispatch.Result{
		{ID: uuid.NewString(), Content: "one", ModelName: "A", ModelID: "openai/gpt-4o", PromptHash: dispatch.HashPrompt("p1"), WordCount: 1, Metadata: map[string]any{"stance": "pro"}},
		{ID: uuid.NewString(), Content: "two", ModelName: "B", ModelID: "gemini/gemini-2.5-pro", PromptHash: dispatch.HashPrompt("p1"), WordCount: 1},
	}
}

func TestJSONLWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "essays.jsonl")
	w, err := NewJSONLWriter(path)
	require.NoError(t, err)

	results := sampleResults()
	require.NoError(t, w.Save(context.Background(), results[:1]))
	require.NoError(t, w.Save(context.Background(), results[1:]))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var got dispatch.Result
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, results[0].ID, got.ID)
	assert.Equal(t, "pro", got.Metadata["stance"])

	// Reopening appends rather than truncating.
	w, err = NewJSONLWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Save(context.Background(), results[:1]))
	require.NoError(t, w.Close())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	s := NewRedisStore(addr, os.Getenv("REDIS_PASSWORD"), 0, time.Minute)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))

	results := sampleResults()
	require.NoError(t, s.Save(ctx, results))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, ok, err := s.Get(ctx, results[1].ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", got.Content)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	seen, err := s.Seen(ctx, "openai/gpt-4o", dispatch.HashPrompt("p1"))
	require.NoError(t, err)
	assert.True(t, seen)
	seen, err = s.Seen(ctx, "openai/gpt-4o", dispatch.HashPrompt("never"))
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisStoreKeys(t *testing.T) {
	s := NewRedisStore("localhost:0", "", 0, 0)
	defer s.Close()
	require.NotEmpty(t, s.RunID())
	assert.Equal(t, "essay:"+s.RunID()+":abc", s.essayKey("abc"))
	assert.Equal(t, "essays:"+s.RunID(), s.listKey())
	assert.Equal(t, "prompts:openai/gpt-4o", promptsKey("openai/gpt-4o"))
}
