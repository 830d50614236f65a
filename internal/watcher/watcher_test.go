package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"talkback/internal/parser"
	"talkback/internal/store"
)

// testRescan keeps tests fast without leaning on fsnotify delivery.
const testRescan = 50 * time.Millisecond

type eventCollector struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (c *eventCollector) handle(_ context.Context, ev ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *eventCollector) all() []ChangeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChangeEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *eventCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func testStates(t *testing.T) *store.WatchStateStore {
	t.Helper()
	st, err := store.NewStore(store.Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return store.NewWatchStateStore(st)
}

func startWatcher(t *testing.T, profile Profile, states *store.WatchStateStore, c *eventCollector) *Watcher {
	t.Helper()
	w, err := New(profile, states, testRescan, c.handle)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { w.Stop() })
	return w
}

// settle waits long enough for a couple of rescan passes.
func settle() {
	time.Sleep(4 * testRescan)
}

func TestWatcher_FirstSightBaselinesWithoutEmitting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("history line\n"), 0o600))

	states := testStates(t)
	c := &eventCollector{}
	startWatcher(t, Profile{
		ID:       "claude",
		Patterns: []string{filepath.Join(dir, "*.jsonl")},
		Mode:     parser.ModeAppend,
	}, states, c)

	settle()
	assert.Zero(t, c.count(), "pre-existing content must never be replayed")

	st, err := states.Get(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, int64(len("history line\n")), st.LastProcessedOffset)
}

func TestWatcher_AppendEmitsOnlyNewBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o600))

	states := testStates(t)
	c := &eventCollector{}
	startWatcher(t, Profile{
		ID:       "claude",
		Patterns: []string{filepath.Join(dir, "*.jsonl")},
		Mode:     parser.ModeAppend,
	}, states, c)
	settle()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("new line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return c.count() >= 1 }, 2*time.Second, 20*time.Millisecond)

	events := c.all()
	require.Len(t, events, 1)
	assert.Equal(t, "claude", events[0].ProfileID)
	assert.Equal(t, path, events[0].Path)
	assert.Equal(t, "new line\n", string(events[0].Data))

	// The offset is durable: the same bytes are not re-emitted.
	settle()
	assert.Equal(t, 1, c.count())

	st, err := states.Get(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, int64(len("old\nnew line\n")), st.LastProcessedOffset)
}

func TestWatcher_OffsetsNeverRegressOnAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	states := testStates(t)
	c := &eventCollector{}
	startWatcher(t, Profile{
		ID:       "claude",
		Patterns: []string{filepath.Join(dir, "*.jsonl")},
		Mode:     parser.ModeAppend,
	}, states, c)
	settle()

	var last int64
	for i := 0; i < 3; i++ {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
		require.NoError(t, err)
		_, err = f.WriteString("line\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())

		want := i + 1
		require.Eventually(t, func() bool { return c.count() >= want }, 2*time.Second, 20*time.Millisecond)

		st, err := states.Get(context.Background(), path)
		require.NoError(t, err)
		require.NotNil(t, st)
		assert.Greater(t, st.LastProcessedOffset, last)
		last = st.LastProcessedOffset
	}
}

func TestWatcher_TruncationResetsToZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("a long original line\n"), 0o600))

	states := testStates(t)
	c := &eventCollector{}
	startWatcher(t, Profile{
		ID:       "claude",
		Patterns: []string{filepath.Join(dir, "*.jsonl")},
		Mode:     parser.ModeAppend,
	}, states, c)
	settle()

	// Rewrite with shorter content, as log rotation in place would.
	require.NoError(t, os.WriteFile(path, []byte("fresh\n"), 0o600))

	require.Eventually(t, func() bool { return c.count() >= 1 }, 2*time.Second, 20*time.Millisecond)

	events := c.all()
	require.Len(t, events, 1)
	assert.Equal(t, "fresh\n", string(events[0].Data), "after truncation the file re-reads from the top")

	st, err := states.Get(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, int64(len("fresh\n")), st.LastProcessedOffset)
}

func TestWatcher_FileCreatedAfterStartIsFullyEmitted(t *testing.T) {
	dir := t.TempDir()

	states := testStates(t)
	c := &eventCollector{}
	startWatcher(t, Profile{
		ID:       "claude",
		Patterns: []string{filepath.Join(dir, "*.jsonl")},
		Mode:     parser.ModeAppend,
	}, states, c)
	settle()

	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("first line\n"), 0o600))

	require.Eventually(t, func() bool { return c.count() >= 1 }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, "first line\n", string(c.all()[0].Data))
}

func TestWatcher_ExcludedPathsIgnored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.jsonl"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.jsonl"), nil, 0o600))

	states := testStates(t)
	c := &eventCollector{}
	startWatcher(t, Profile{
		ID:       "claude",
		Patterns: []string{filepath.Join(dir, "*.jsonl")},
		Excludes: []string{filepath.Join(dir, "skip.jsonl")},
		Mode:     parser.ModeAppend,
	}, states, c)
	settle()

	for _, name := range []string{"keep.jsonl", "skip.jsonl"} {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_WRONLY, 0o600)
		require.NoError(t, err)
		_, err = f.WriteString("data\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	require.Eventually(t, func() bool { return c.count() >= 1 }, 2*time.Second, 20*time.Millisecond)
	settle()

	for _, ev := range c.all() {
		assert.Equal(t, filepath.Join(dir, "keep.jsonl"), ev.Path)
	}
}

func TestWatcher_NewFileModeSkipsPreexisting(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.txt")
	require.NoError(t, os.WriteFile(old, []byte("stale content"), 0o600))

	states := testStates(t)
	c := &eventCollector{}
	startWatcher(t, Profile{
		ID:       "notes",
		Patterns: []string{filepath.Join(dir, "*.txt")},
		Mode:     parser.ModeNewFile,
	}, states, c)
	settle()

	assert.Zero(t, c.count(), "files present at startup are marked seen, not read")

	fresh := filepath.Join(dir, "fresh.txt")
	require.NoError(t, os.WriteFile(fresh, []byte("say this"), 0o600))

	require.Eventually(t, func() bool { return c.count() >= 1 }, 2*time.Second, 20*time.Millisecond)

	events := c.all()
	require.Len(t, events, 1)
	assert.Equal(t, fresh, events[0].Path)
	assert.Equal(t, "say this", string(events[0].Data))

	// A later rewrite of a seen file must not re-trigger.
	require.NoError(t, os.WriteFile(fresh, []byte("say this again"), 0o600))
	settle()
	assert.Equal(t, 1, c.count())
}

func TestWatcher_ConcurrentProcessingEmitsAppendsOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o600))

	states := testStates(t)
	c := &eventCollector{}
	w, err := New(Profile{
		ID:       "claude",
		Patterns: []string{filepath.Join(dir, "*.jsonl")},
		Mode:     parser.ModeAppend,
	}, states, testRescan, c.handle)
	require.NoError(t, err)
	t.Cleanup(func() { w.fsw.Close() })

	ctx := context.Background()
	w.initialScan(ctx)
	w.mu.Lock()
	w.scanned = true
	w.mu.Unlock()

	// Debounce timers and the rescan ticker both land in processPath from
	// different goroutines. Hammer the same path after every append: each
	// appended line must be emitted exactly once, never re-read from a
	// stale offset.
	var want strings.Builder
	for i := 0; i < 50; i++ {
		line := fmt.Sprintf("line %d\n", i)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
		require.NoError(t, err)
		_, err = f.WriteString(line)
		require.NoError(t, err)
		require.NoError(t, f.Close())
		want.WriteString(line)

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.processPath(ctx, path)
			}()
		}
		wg.Wait()
	}

	var got strings.Builder
	for _, ev := range c.all() {
		got.Write(ev.Data)
	}
	assert.Equal(t, want.String(), got.String())
}
