package speech

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	v := Voice{ID: "Samantha"}

	k1 := Key(v, "hello")
	k2 := Key(v, "hello")
	assert.Equal(t, k1, k2, "same input must address the same artifact")
	assert.Len(t, k1, 32)

	assert.NotEqual(t, k1, Key(v, "goodbye"))
	assert.NotEqual(t, k1, Key(Voice{ID: "Daniel"}, "hello"))

	// The voice/text separator keeps boundary-shifted inputs apart.
	assert.NotEqual(t, Key(Voice{ID: "ab"}, "c"), Key(Voice{ID: "a"}, "bc"))
}

func TestCache_PutGet(t *testing.T) {
	c := NewCache(t.TempDir())

	_, ok := c.Get("claude", "deadbeef", ".wav")
	assert.False(t, ok)

	path, err := c.Put("claude", "deadbeef", ".wav", []byte("audio"))
	require.NoError(t, err)
	assert.Equal(t, c.Path("claude", "deadbeef", ".wav"), path)

	got, ok := c.Get("claude", "deadbeef", ".wav")
	require.True(t, ok)
	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), data)

	// Same key under a different profile is a distinct artifact.
	_, ok = c.Get("codex", "deadbeef", ".wav")
	assert.False(t, ok)
}

func TestCache_GetRejectsEmptyArtifact(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "claude"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "claude", "empty.wav"), nil, 0o600))

	_, ok := c.Get("claude", "empty", ".wav")
	assert.False(t, ok, "a zero-byte artifact is treated as a miss")
}

func TestCache_PathDefaultsExtension(t *testing.T) {
	c := NewCache("/cache")
	assert.Equal(t, filepath.Join("/cache", "p", "k.wav"), c.Path("p", "k", ""))
	assert.Equal(t, filepath.Join("/cache", "p", "k.mp3"), c.Path("p", "k", ".mp3"))
}

func TestCache_SweepOlderThan(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir)

	oldPath, err := c.Put("claude", "old", ".wav", []byte("x"))
	require.NoError(t, err)
	_, err = c.Put("claude", "new", ".wav", []byte("y"))
	require.NoError(t, err)

	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, stale, stale))

	removed, err := c.SweepOlderThan(time.Now().Add(-24 * time.Hour).UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, ok := c.Get("claude", "old", ".wav")
	assert.False(t, ok)
	_, ok = c.Get("claude", "new", ".wav")
	assert.True(t, ok)
}

func TestCache_SweepMissingDir(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "never-created"))
	removed, err := c.SweepOlderThan(time.Now().UnixMilli())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
