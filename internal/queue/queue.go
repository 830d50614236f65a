// Package queue serializes synthesis and playback of queued records. One
// drain loop runs at a time; every state transition is written through the
// store before the next record starts.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"talkback/internal/events"
	"talkback/internal/metrics"
	"talkback/internal/speech"
	"talkback/internal/store"
	"talkback/pkg/models"
)

// VoiceResolver maps a profile to its synthesis capability. The queue calls
// it per record, so profile reconfiguration applies to the next item
// without a restart.
type VoiceResolver func(profileID string) (speech.Synthesizer, speech.Voice, error)

// item is one pending playback.
type item struct {
	id        int64
	profileID string
	text      string
}

// Queue is the single-consumer playback pipeline.
type Queue struct {
	records *store.QueueStore
	cache   *speech.Cache
	player  *speech.Player
	bus     *events.Bus
	resolve VoiceResolver
	metrics *metrics.Metrics

	draining atomic.Bool // single-active-drain invariant

	mu      sync.Mutex
	fifo    []item
	queued  map[int64]bool
	current int64 // record id being played, 0 when idle
	muted   bool
	paused  bool
	gen     uint64 // bumped by stop/pause/skip/mute to void in-flight synthesis

	ctx context.Context
}

// New creates a playback queue. ctx bounds all drain work; cancelling it
// stops the loop after the current record.
func New(ctx context.Context, records *store.QueueStore, cache *speech.Cache, player *speech.Player, bus *events.Bus, resolve VoiceResolver, m *metrics.Metrics) *Queue {
	if m == nil {
		m = metrics.Noop()
	}
	return &Queue{
		records: records,
		cache:   cache,
		player:  player,
		bus:     bus,
		resolve: resolve,
		metrics: m,
		queued:  make(map[int64]bool),
		ctx:     ctx,
	}
}

// Enqueue appends a queued record for playback. Suppressed while muted, and
// for ids already waiting or currently playing.
func (q *Queue) Enqueue(rec *models.QueueRecord) {
	q.mu.Lock()
	if q.muted || q.queued[rec.ID] || q.current == rec.ID {
		q.mu.Unlock()
		return
	}
	q.fifo = append(q.fifo, item{id: rec.ID, profileID: rec.ProfileID, text: rec.FilteredText})
	q.queued[rec.ID] = true
	paused := q.paused
	q.mu.Unlock()

	q.metrics.Enqueued(q.ctx, rec.ProfileID)
	if !paused {
		q.kick()
	}
}

// Replay re-enqueues a finished record under its original id. Only terminal
// playback states replay; user rows and in-flight rows are rejected.
func (q *Queue) Replay(ctx context.Context, id int64) error {
	rec, err := q.records.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.State != models.StatePlayed && rec.State != models.StateError {
		return fmt.Errorf("replay id=%d: state %q is not replayable", id, rec.State)
	}
	if rec.FilteredText == "" {
		return fmt.Errorf("replay id=%d: record has no speakable text", id)
	}

	q.mu.Lock()
	if q.muted || q.queued[id] || q.current == id {
		q.mu.Unlock()
		return nil
	}
	q.fifo = append(q.fifo, item{id: rec.ID, profileID: rec.ProfileID, text: rec.FilteredText})
	q.queued[id] = true
	paused := q.paused
	q.mu.Unlock()

	if !paused {
		q.kick()
	}
	return nil
}

// SetMuted toggles global mute. Muting stops the active playback and clears
// the in-memory queue; store rows stay queued and are not replayed
// automatically when unmuted.
func (q *Queue) SetMuted(muted bool) {
	q.mu.Lock()
	q.muted = muted
	if muted {
		q.fifo = nil
		q.queued = make(map[int64]bool)
	}
	q.mu.Unlock()

	if muted {
		q.interrupt()
	}
}

// interrupt voids in-flight synthesis results and kills active playback.
func (q *Queue) interrupt() {
	q.mu.Lock()
	q.gen++
	q.mu.Unlock()
	q.player.Stop()
}

// Muted reports the mute state.
func (q *Queue) Muted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.muted
}

// Stop kills the active playback and clears the in-memory queue.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.fifo = nil
	q.queued = make(map[int64]bool)
	q.mu.Unlock()

	q.interrupt()
}

// Pause suspends playback. As shipped this is destructive: it behaves
// exactly like Stop (the active item is killed and the pending queue is
// discarded), and Resume only re-opens the drain loop for future items.
// Deliberate behavior carried over from the original pipeline; see the
// pause regression test before changing it.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.fifo = nil
	q.queued = make(map[int64]bool)
	q.mu.Unlock()

	q.interrupt()
}

// Resume re-opens the drain loop. It does not restart the item Pause
// killed.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()

	q.kick()
}

// Paused reports the pause state.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Skip kills the active playback and lets the drain loop continue with the
// next item.
func (q *Queue) Skip() {
	q.interrupt()
}

// Size returns the number of pending items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo)
}

// IsPlaying reports whether a record is being played right now.
func (q *Queue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != 0
}

// kick starts a drain goroutine unless one is already running.
func (q *Queue) kick() {
	if q.draining.CompareAndSwap(false, true) {
		go q.drain()
	}
}

// hasWork reports whether the drain loop has something playable.
func (q *Queue) hasWork() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.paused && !q.muted && len(q.fifo) > 0 && q.ctx.Err() == nil
}

// drain consumes the FIFO until it empties. The draining flag guarantees a
// single consumer; enqueues during a drain just append.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if q.paused || q.muted || len(q.fifo) == 0 || q.ctx.Err() != nil {
			q.mu.Unlock()
			q.draining.Store(false)
			// An enqueue landing after the check above loses its kick to
			// the still-set flag. Re-check and reclaim the work instead of
			// stranding it until the next kick.
			if !q.hasWork() || !q.draining.CompareAndSwap(false, true) {
				return
			}
			continue
		}
		next := q.fifo[0]
		q.fifo = q.fifo[1:]
		delete(q.queued, next.id)
		q.current = next.id
		q.mu.Unlock()

		q.playOne(next)

		q.mu.Lock()
		q.current = 0
		q.mu.Unlock()
	}
}

// playOne runs the full lifecycle of one record: sweep strays, mark
// playing, resolve audio, play, record the outcome. Failures become state
// transitions, never a stopped loop.
func (q *Queue) playOne(it item) {
	ctx := q.ctx
	start := time.Now()

	// Safety net: anything else stuck in playing is a leftover from a
	// crash and would violate the single-playing invariant.
	if n, err := q.records.SweepInterrupted(ctx); err != nil {
		log.Error().Err(err).Msg("Playing-state sweep failed")
	} else if n > 0 {
		log.Warn().Int64("count", n).Msg("Reclassified stuck playing records")
	}

	if err := q.records.MarkPlaying(ctx, it.id); err != nil {
		log.Error().Err(err).Int64("id", it.id).Msg("Mark playing failed")
		return
	}
	q.publishStatus(true, it.id, 0)

	err := q.resolveAndPlay(ctx, it)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		if err := q.records.MarkPlayed(ctx, it.id, "ok", "", elapsed); err != nil {
			log.Error().Err(err).Int64("id", it.id).Msg("Mark played failed")
		}
		q.metrics.Played(ctx, it.profileID, elapsed)
	case errors.Is(err, speech.ErrStopped):
		if err := q.records.MarkError(ctx, it.id, "playback stopped", elapsed); err != nil {
			log.Error().Err(err).Int64("id", it.id).Msg("Mark stopped failed")
		}
		q.metrics.Errored(ctx, it.profileID)
	default:
		log.Warn().Err(err).Int64("id", it.id).Msg("Playback failed")
		if err := q.records.MarkError(ctx, it.id, err.Error(), elapsed); err != nil {
			log.Error().Err(err).Int64("id", it.id).Msg("Mark error failed")
		}
		q.metrics.Errored(ctx, it.profileID)
	}

	q.publishStatus(false, 0, it.id)
}

// resolveAndPlay finds or synthesizes the audio for an item and plays it.
// Cache hits skip the provider entirely.
func (q *Queue) resolveAndPlay(ctx context.Context, it item) error {
	synth, voice, err := q.resolve(it.profileID)
	if err != nil {
		return fmt.Errorf("resolve voice for profile %q: %w", it.profileID, err)
	}

	key := speech.Key(voice, it.text)
	if path, ok := q.cache.Get(it.profileID, key, voice.Extension); ok {
		q.metrics.CacheHit(ctx, it.profileID)
		return q.player.Play(ctx, path)
	}
	q.metrics.CacheMiss(ctx, it.profileID)

	q.mu.Lock()
	genBefore := q.gen
	q.mu.Unlock()

	synthStart := time.Now()
	data, err := synth.Synthesize(ctx, it.text, voice)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	q.metrics.Synthesized(ctx, it.profileID, time.Since(synthStart))

	path, err := q.cache.Put(it.profileID, key, voice.Extension, data)
	// A stop issued while the provider call was in flight discards the
	// result; the artifact stays cached for a later replay.
	q.mu.Lock()
	voided := q.gen != genBefore
	q.mu.Unlock()
	if voided || ctx.Err() != nil {
		return speech.ErrStopped
	}

	if err != nil {
		log.Warn().Err(err).Msg("Audio cache write failed, playing uncached")
		return q.player.PlayBytes(ctx, data, voice.Extension)
	}
	return q.player.Play(ctx, path)
}

func (q *Queue) publishStatus(playing bool, playingID, playedID int64) {
	evt := events.StatusChanged{Playing: playing}
	if playingID != 0 {
		evt.PlayingID = &playingID
	}
	if playedID != 0 {
		evt.PlayedID = &playedID
	}
	q.bus.Publish(evt)
}
