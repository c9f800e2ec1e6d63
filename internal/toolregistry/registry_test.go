package toolregistry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triad/internal/agent/ports"
)

type countingTool struct {
	name     string
	readOnly bool
	calls    int
	err      error
}

func (t *countingTool) Name() string        { return t.name }
func (t *countingTool) Description() string { return t.name + " tool" }
func (t *countingTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{Name: t.name, Description: t.Description()}
}
func (t *countingTool) ReadOnly() bool { return t.readOnly }
func (t *countingTool) Invoke(_ context.Context, args map[string]any) (string, error) {
	t.calls++
	if t.err != nil {
		return "", t.err
	}
	return t.name + " result", nil
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r, err := NewRegistry(DefaultCacheConfig(), &countingTool{name: "b"}, &countingTool{name: "a"})
	require.NoError(t, err)

	assert.Error(t, r.Register(&countingTool{name: "a"}))
	assert.Equal(t, []string{"a", "b"}, r.Names())

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].Name)

	_, ok := r.Get("missing")
	assert.False(t, ok)
}

func TestReadOnlyResultsAreCached(t *testing.T) {
	read := &countingTool{name: "file_read", readOnly: true}
	r, err := NewRegistry(DefaultCacheConfig(), read)
	require.NoError(t, err)
	tool, ok := r.Get("file_read")
	require.True(t, ok)

	ctx := context.Background()
	for range 3 {
		out, err := tool.Invoke(ctx, map[string]any{"path": "a.go", "limit": 10.0})
		require.NoError(t, err)
		assert.Equal(t, "file_read result", out)
	}
	_, err = tool.Invoke(ctx, map[string]any{"limit": 10.0, "path": "b.go"})
	require.NoError(t, err)

	assert.Equal(t, 2, read.calls)
	hits, misses := r.CacheStats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(2), misses)
}

func TestMutatingToolPurgesCache(t *testing.T) {
	read := &countingTool{name: "file_read", readOnly: true}
	write := &countingTool{name: "file_write"}
	r, err := NewRegistry(DefaultCacheConfig(), read, write)
	require.NoError(t, err)
	ctx := context.Background()
	args := map[string]any{"path": "a.go"}

	readTool, _ := r.Get("file_read")
	writeTool, _ := r.Get("file_write")

	_, _ = readTool.Invoke(ctx, args)
	_, _ = writeTool.Invoke(ctx, args)
	_, _ = writeTool.Invoke(ctx, args)
	_, _ = readTool.Invoke(ctx, args)

	assert.Equal(t, 2, read.calls)
	assert.Equal(t, 2, write.calls)
}

func TestCacheExpiresAndSkipsErrors(t *testing.T) {
	read := &countingTool{name: "list_dir", readOnly: true}
	r, err := NewRegistry(CacheConfig{TTL: time.Minute}, read)
	require.NoError(t, err)
	now := time.Now()
	r.cache.now = func() time.Time { return now }

	tool, _ := r.Get("list_dir")
	ctx := context.Background()
	_, _ = tool.Invoke(ctx, nil)
	now = now.Add(2 * time.Minute)
	_, _ = tool.Invoke(ctx, nil)
	assert.Equal(t, 2, read.calls)

	read.err = errors.New("boom")
	read.calls = 0
	r.cache.entries.Purge()
	_, err = tool.Invoke(ctx, nil)
	assert.Error(t, err)
	_, err = tool.Invoke(ctx, nil)
	assert.Error(t, err)
	assert.Equal(t, 2, read.calls)
}

func TestDisabledCacheCallsThrough(t *testing.T) {
	read := &countingTool{name: "file_read", readOnly: true}
	r, err := NewRegistry(CacheConfig{Disabled: true}, read)
	require.NoError(t, err)
	tool, _ := r.Get("file_read")
	_, _ = tool.Invoke(context.Background(), nil)
	_, _ = tool.Invoke(context.Background(), nil)
	assert.Equal(t, 2, read.calls)
}
