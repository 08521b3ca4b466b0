package patterns

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
pdf_types:
  only:
    family: stream
    detect: [ONLY]
    stream: {amount_offset: 0, description_offsets: [1]}
categories:
  - {name: %s, patterns: [X]}
`

func writeConfig(t *testing.T, path, category string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(minimalConfig, category)), 0o600))
}

func TestCache_Get(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	writeConfig(t, path, "First")

	c := NewCache(time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	first, err := c.Get(path)
	require.NoError(t, err)
	assert.Equal(t, "First", first.Categories[0].Name)

	again, err := c.Get(path)
	require.NoError(t, err)
	assert.Same(t, first, again, "unchanged file should hit the cache")

	writeConfig(t, path, "SecondEdit")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	reloaded, err := c.Get(path)
	require.NoError(t, err)
	assert.Equal(t, "SecondEdit", reloaded.Categories[0].Name)
	assert.Equal(t, "First", first.Categories[0].Name, "earlier snapshots stay untouched")

	c.Invalidate(path)
	fresh, err := c.Get(path)
	require.NoError(t, err)
	assert.NotSame(t, reloaded, fresh)
}

func TestCache_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pdf_types: [\n"), 0o600))

	c := NewCache(time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := c.Get(path)
	assert.ErrorIs(t, err, ErrConfig)
}
