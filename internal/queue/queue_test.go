package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"talkback/internal/events"
	"talkback/internal/metrics"
	"talkback/internal/speech"
	"talkback/internal/store"
	"talkback/pkg/models"
)

type fixture struct {
	records    *store.QueueStore
	cache      *speech.Cache
	queue      *Queue
	bus        *events.Bus
	synthCalls atomic.Int64
}

// newFixture builds a queue over a real store with an instantly-returning
// player ("true" exits 0) and a fake synthesizer.
func newFixture(t *testing.T, playerCmd string) *fixture {
	t.Helper()

	st, err := store.NewStore(store.Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		records: store.NewQueueStore(st),
		cache:   speech.NewCache(t.TempDir()),
	}

	player, err := speech.NewPlayer(playerCmd)
	require.NoError(t, err)

	synth := speech.SynthesizerFunc(func(_ context.Context, text string, _ speech.Voice) ([]byte, error) {
		f.synthCalls.Add(1)
		return []byte("audio:" + text), nil
	})
	resolve := func(string) (speech.Synthesizer, speech.Voice, error) {
		return synth, speech.Voice{ID: "test", Extension: ".wav"}, nil
	}

	f.bus = events.NewBus(64)
	t.Cleanup(f.bus.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f.queue = New(ctx, f.records, f.cache, player, f.bus, resolve, metrics.Noop())
	t.Cleanup(f.queue.Stop)
	return f
}

func (f *fixture) insertQueued(t *testing.T, text string) *models.QueueRecord {
	t.Helper()
	rec, err := f.records.Insert(context.Background(), &models.QueueRecord{
		FilePath:     "/logs/session.jsonl",
		ProfileID:    "claude",
		OriginalText: text,
		FilteredText: text,
		State:        models.StateQueued,
		Role:         models.RoleAssistant,
	})
	require.NoError(t, err)
	return rec
}

func (f *fixture) state(t *testing.T, id int64) models.QueueState {
	t.Helper()
	rec, err := f.records.Get(context.Background(), id)
	require.NoError(t, err)
	return rec.State
}

func waitForState(t *testing.T, f *fixture, id int64, want models.QueueState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.state(t, id) == want
	}, 3*time.Second, 10*time.Millisecond, "record %d never reached %s", id, want)
}

func TestQueue_PlaysAndMarksPlayed(t *testing.T) {
	f := newFixture(t, "true")

	rec := f.insertQueued(t, "hello world")
	f.queue.Enqueue(rec)

	waitForState(t, f, rec.ID, models.StatePlayed)

	got, err := f.records.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "ok", got.APIResponseStatus)
	assert.Equal(t, int64(1), f.synthCalls.Load())

	// The artifact landed in the cache under the content key.
	key := speech.Key(speech.Voice{ID: "test"}, "hello world")
	_, ok := f.cache.Get("claude", key, ".wav")
	assert.True(t, ok)
}

func TestQueue_CacheHitSkipsSynthesis(t *testing.T) {
	f := newFixture(t, "true")

	key := speech.Key(speech.Voice{ID: "test"}, "cached line")
	_, err := f.cache.Put("claude", key, ".wav", []byte("prebaked"))
	require.NoError(t, err)

	rec := f.insertQueued(t, "cached line")
	f.queue.Enqueue(rec)

	waitForState(t, f, rec.ID, models.StatePlayed)
	assert.Zero(t, f.synthCalls.Load(), "a cached artifact plays without a provider call")
}

func TestQueue_DuplicateEnqueueSuppressed(t *testing.T) {
	f := newFixture(t, "true")
	f.queue.Pause() // hold the drain so the FIFO is observable

	rec := f.insertQueued(t, "once")
	f.queue.Enqueue(rec)
	f.queue.Enqueue(rec)
	f.queue.Enqueue(rec)

	assert.Equal(t, 1, f.queue.Size())
}

func TestQueue_MuteSuppressesEnqueue(t *testing.T) {
	f := newFixture(t, "true")
	f.queue.SetMuted(true)

	rec := f.insertQueued(t, "silence")
	f.queue.Enqueue(rec)

	assert.Zero(t, f.queue.Size())
	// The store row keeps its queued state; mute is an in-memory gate.
	assert.Equal(t, models.StateQueued, f.state(t, rec.ID))

	// Unmute does not resurrect suppressed items.
	f.queue.SetMuted(false)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, models.StateQueued, f.state(t, rec.ID))
}

func TestQueue_MuteClearsPending(t *testing.T) {
	f := newFixture(t, "true")
	f.queue.Pause()

	a := f.insertQueued(t, "first")
	b := f.insertQueued(t, "second")
	f.queue.Enqueue(a)
	f.queue.Enqueue(b)
	require.Equal(t, 2, f.queue.Size())

	f.queue.SetMuted(true)
	assert.Zero(t, f.queue.Size())
	assert.Equal(t, models.StateQueued, f.state(t, a.ID))
	assert.Equal(t, models.StateQueued, f.state(t, b.ID))
}

// TestPauseDiscardsQueuedPlayback pins the destructive pause semantics:
// pause kills the active item and drops everything pending, and resume only
// re-opens the drain for items enqueued afterwards.
func TestPauseDiscardsQueuedPlayback(t *testing.T) {
	// tail -f never exits, standing in for long playback.
	f := newFixture(t, "tail -f")

	a := f.insertQueued(t, "long speech")
	b := f.insertQueued(t, "never played")
	f.queue.Enqueue(a)
	f.queue.Enqueue(b)

	waitForState(t, f, a.ID, models.StatePlaying)

	f.queue.Pause()
	assert.True(t, f.queue.Paused())
	assert.Zero(t, f.queue.Size())

	// The killed item lands in error; the pending one was discarded and
	// stays queued in the store.
	waitForState(t, f, a.ID, models.StateError)
	got, err := f.records.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "playback stopped", got.APIResponseMessage)

	f.queue.Resume()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, models.StateQueued, f.state(t, b.ID), "resume must not restart discarded items")
	assert.False(t, f.queue.IsPlaying())
}

func TestQueue_EnqueueWhilePausedWaitsForResume(t *testing.T) {
	f := newFixture(t, "true")
	f.queue.Pause()

	rec := f.insertQueued(t, "after resume")
	f.queue.Enqueue(rec)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, models.StateQueued, f.state(t, rec.ID))

	f.queue.Resume()
	waitForState(t, f, rec.ID, models.StatePlayed)
}

func TestQueue_StopKillsAndClears(t *testing.T) {
	f := newFixture(t, "tail -f")

	a := f.insertQueued(t, "interrupt me")
	b := f.insertQueued(t, "drop me")
	f.queue.Enqueue(a)
	f.queue.Enqueue(b)

	waitForState(t, f, a.ID, models.StatePlaying)
	f.queue.Stop()

	waitForState(t, f, a.ID, models.StateError)
	assert.Zero(t, f.queue.Size())
	assert.Equal(t, models.StateQueued, f.state(t, b.ID))
	assert.False(t, f.queue.Paused(), "stop does not pause future playback")
}

func TestQueue_SkipAdvancesToNext(t *testing.T) {
	f := newFixture(t, "tail -f")

	a := f.insertQueued(t, "skip this")
	b := f.insertQueued(t, "play this")
	f.queue.Enqueue(a)
	f.queue.Enqueue(b)

	waitForState(t, f, a.ID, models.StatePlaying)
	f.queue.Skip()

	waitForState(t, f, a.ID, models.StateError)
	waitForState(t, f, b.ID, models.StatePlaying)
	f.queue.Stop()
}

func TestQueue_AtMostOnePlayingRow(t *testing.T) {
	f := newFixture(t, "true")
	ctx := context.Background()

	// A crash leftover stuck in playing.
	stray := f.insertQueued(t, "stray")
	require.NoError(t, f.records.MarkPlaying(ctx, stray.ID))

	rec := f.insertQueued(t, "fresh")
	f.queue.Enqueue(rec)

	waitForState(t, f, rec.ID, models.StatePlayed)

	// The per-drain sweep reclassified the stray before marking the fresh
	// record playing.
	got, err := f.records.Get(ctx, stray.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateError, got.State)
	assert.Equal(t, "interrupted", got.APIResponseStatus)

	n, err := f.records.CountByState(ctx, models.StatePlaying)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueue_Replay(t *testing.T) {
	f := newFixture(t, "true")
	ctx := context.Background()

	// Count completed playbacks through the status events, since the fast
	// player finishes before a poll could observe the playing state.
	var finished atomic.Int64
	unsub := f.bus.Subscribe(func(e events.Event) {
		if sc, ok := e.(events.StatusChanged); ok && !sc.Playing && sc.PlayedID != nil {
			finished.Add(1)
		}
	}, events.TypeStatusChanged)
	defer unsub()

	rec := f.insertQueued(t, "encore")
	f.queue.Enqueue(rec)
	require.Eventually(t, func() bool { return finished.Load() == 1 }, 3*time.Second, 10*time.Millisecond)

	synthsBefore := f.synthCalls.Load()
	require.NoError(t, f.queue.Replay(ctx, rec.ID))
	require.Eventually(t, func() bool { return finished.Load() == 2 }, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, models.StatePlayed, f.state(t, rec.ID))
	assert.Equal(t, synthsBefore, f.synthCalls.Load(), "replay plays from the cache")
}

func TestQueue_ReplayRejectsNonTerminal(t *testing.T) {
	f := newFixture(t, "true")
	ctx := context.Background()

	queued := f.insertQueued(t, "still waiting")
	err := f.queue.Replay(ctx, queued.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not replayable")

	user, err := f.records.Insert(ctx, &models.QueueRecord{
		FilePath:     "/logs/session.jsonl",
		ProfileID:    "claude",
		OriginalText: "a prompt",
		State:        models.StateUser,
		Role:         models.RoleUser,
	})
	require.NoError(t, err)
	err = f.queue.Replay(ctx, user.ID)
	assert.Error(t, err, "user rows are never spoken")

	err = f.queue.Replay(ctx, 99999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQueue_EnqueueDuringDrainWindDownIsNotStranded(t *testing.T) {
	f := newFixture(t, "true")

	// An instant player drains each item almost immediately, so many of
	// these enqueues land exactly while the previous drain is deciding to
	// exit. Every record must still reach a terminal state without any
	// later kick arriving to rescue it.
	const n = 60
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		rec := f.insertQueued(t, fmt.Sprintf("line %d", i))
		ids = append(ids, rec.ID)
		f.queue.Enqueue(rec)
	}

	for _, id := range ids {
		waitForState(t, f, id, models.StatePlayed)
	}
	assert.Zero(t, f.queue.Size())
}
