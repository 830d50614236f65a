// Package pipeline connects the watcher to the playback queue: parse the
// new bytes, route by role, run the filter chain, persist, notify.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"talkback/internal/events"
	"talkback/internal/filter"
	"talkback/internal/metrics"
	"talkback/internal/parser"
	"talkback/internal/queue"
	"talkback/internal/store"
	"talkback/internal/watcher"
	"talkback/pkg/models"
)

// profilePipes is the per-profile parser and filter chain pair.
type profilePipes struct {
	parser parser.Parser
	chain  *filter.Chain
}

// Processor converts change events into queue records. Safe for concurrent
// use by multiple watchers; per-event handling is independent.
type Processor struct {
	records *store.QueueStore
	bus     *events.Bus
	queue   *queue.Queue
	metrics *metrics.Metrics

	mu       sync.RWMutex
	profiles map[string]profilePipes
}

// New creates a processor. Profiles are registered afterwards, and may be
// swapped at runtime when configuration reloads.
func New(records *store.QueueStore, bus *events.Bus, q *queue.Queue, m *metrics.Metrics) *Processor {
	if m == nil {
		m = metrics.Noop()
	}
	return &Processor{
		records:  records,
		bus:      bus,
		queue:    q,
		metrics:  m,
		profiles: make(map[string]profilePipes),
	}
}

// SetProfile installs or replaces the parser and filter chain for a
// profile.
func (p *Processor) SetProfile(profileID string, psr parser.Parser, chain *filter.Chain) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[profileID] = profilePipes{parser: psr, chain: chain}
}

// RemoveProfile forgets a profile. In-flight events for it are dropped.
func (p *Processor) RemoveProfile(profileID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.profiles, profileID)
}

// HandleChange processes one change event end to end. Persistence is
// best-effort per message: one failed insert never blocks the rest of the
// batch.
func (p *Processor) HandleChange(ctx context.Context, ev watcher.ChangeEvent) {
	p.mu.RLock()
	pipes, ok := p.profiles[ev.ProfileID]
	p.mu.RUnlock()
	if !ok {
		log.Warn().Str("profile", ev.ProfileID).Msg("Change event for unknown profile")
		return
	}

	msgs := pipes.parser.Parse(ev.Data, ev.Path)
	if len(msgs) == 0 {
		return
	}
	p.metrics.Parsed(ctx, ev.ProfileID, len(msgs))

	for i := range msgs {
		p.handleMessage(ctx, ev, pipes, &msgs[i])
	}
}

func (p *Processor) handleMessage(ctx context.Context, ev watcher.ChangeEvent, pipes profilePipes, msg *models.ParsedMessage) {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	rec := &models.QueueRecord{
		Timestamp:    ts.UnixMilli(),
		FilePath:     ev.Path,
		ProfileID:    ev.ProfileID,
		OriginalText: msg.Content,
		Role:         msg.Role,
		CWD:          msg.CWD,
		ImageCount:   len(msg.Images),
	}

	if msg.Role == models.RoleUser {
		// User turns are logged for context, never spoken.
		rec.State = models.StateUser
		saved, err := p.records.Insert(ctx, rec)
		if err != nil {
			log.Error().Err(err).Str("profile", ev.ProfileID).Msg("Persist user record failed")
			return
		}
		p.bus.Publish(events.LogAdded{Record: *saved})
		return
	}

	filtered := pipes.chain.Apply(msg)
	if filtered == nil {
		// Dropped by the chain: nothing worth speaking, no record.
		return
	}

	rec.FilteredText = filtered.Content
	rec.State = models.StateQueued
	saved, err := p.records.Insert(ctx, rec)
	if err != nil {
		log.Error().Err(err).Str("profile", ev.ProfileID).Msg("Persist queued record failed")
		return
	}

	p.bus.Publish(events.LogAdded{Record: *saved})
	p.queue.Enqueue(saved)
}
