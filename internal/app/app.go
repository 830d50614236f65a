// Package app wires the pipeline together and owns its lifecycle. All
// dependencies travel by handle: the HTTP layer gets the app as its
// Controller, watchers get the store, nothing reaches through globals.
package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm/logger"

	"talkback/internal/config"
	"talkback/internal/events"
	"talkback/internal/filter"
	"talkback/internal/metrics"
	"talkback/internal/parser"
	"talkback/internal/pipeline"
	"talkback/internal/queue"
	"talkback/internal/speech"
	"talkback/internal/store"
	"talkback/internal/watcher"
	"talkback/internal/worker"
	"talkback/pkg/models"
)

// profileRuntime is the live state of one configured profile.
type profileRuntime struct {
	cfg     config.Profile
	enabled bool
	watcher *watcher.Watcher
	synth   speech.Synthesizer
	voice   speech.Voice
}

// App owns every pipeline component and implements worker.Controller.
type App struct {
	cfg *config.Config

	store   *store.Store
	states  *store.WatchStateStore
	records *store.QueueStore
	bus     *events.Bus
	cache   *speech.Cache
	player  *speech.Player
	queue   *queue.Queue
	proc    *pipeline.Processor
	metrics *metrics.Metrics
	parsers map[string]parser.Parser

	ctx context.Context

	mu       sync.Mutex
	profiles map[string]*profileRuntime
}

// New opens the store, recovers crash artifacts, and builds the pipeline.
// A store that cannot open is the only fatal condition.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := config.EnsureAll(); err != nil {
		return nil, fmt.Errorf("ensure data directories: %w", err)
	}

	st, err := store.NewStore(store.Config{
		Path:     config.DBPath(),
		LogLevel: logger.Silent,
	})
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	a := &App{
		cfg:      cfg,
		store:    st,
		states:   store.NewWatchStateStore(st),
		records:  store.NewQueueStore(st),
		bus:      events.NewBus(100),
		cache:    speech.NewCache(config.CacheDir()),
		parsers:  parser.Builtin(),
		profiles: make(map[string]*profileRuntime),
		ctx:      ctx,
	}

	a.player, err = speech.NewPlayer(cfg.PlayerCommand)
	if err != nil {
		st.Close()
		return nil, err
	}

	a.metrics, err = metrics.New(func() int {
		if a.queue == nil {
			return 0
		}
		return a.queue.Size()
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	// Records left playing by a crash are reclassified before anything can
	// enqueue; they are never retried automatically.
	if n, err := a.records.SweepInterrupted(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("startup crash sweep: %w", err)
	} else if n > 0 {
		log.Warn().Int64("count", n).Msg("Recovered records interrupted by previous shutdown")
	}

	a.queue = queue.New(ctx, a.records, a.cache, a.player, a.bus, a.resolveVoice, a.metrics)
	a.proc = pipeline.New(a.records, a.bus, a.queue, a.metrics)

	if err := a.applyConfig(ctx, cfg); err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

// Bus exposes the event bus for transports.
func (a *App) Bus() *events.Bus { return a.bus }

// Run starts watchers, the HTTP control surface, config hot-reload and the
// periodic retention sweep, and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.startWatchers(ctx); err != nil {
		return err
	}

	svc := worker.NewService(a.cfg.Port, a, a.bus)

	cfgWatcher, err := config.NewWatcher(func() { a.reloadConfig(ctx) })
	if err != nil {
		log.Warn().Err(err).Msg("Config hot-reload unavailable")
	} else if err := cfgWatcher.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("Config hot-reload unavailable")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error {
		a.sweepLoop(ctx)
		return nil
	})

	err = g.Wait()

	a.stopWatchers()
	if cfgWatcher != nil {
		_ = cfgWatcher.Stop()
	}
	a.player.Stop()
	a.bus.Close()
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// sweepLoop runs the retention sweep daily.
func (a *App) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			retention := time.Duration(a.cfg.RetentionDays) * 24 * time.Hour
			result, err := a.Sweep(ctx, retention)
			if err != nil {
				log.Error().Err(err).Msg("Retention sweep failed")
				continue
			}
			if result.Records > 0 || result.Artifacts > 0 {
				log.Info().
					Int64("records", result.Records).
					Int64("artifacts", result.Artifacts).
					Msg("Retention sweep completed")
			}
		}
	}
}

// applyConfig builds the per-profile runtimes. A profile that fails to
// build is skipped with a ConfigError; the rest still run.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cfg = cfg
	for id, rt := range a.profiles {
		if rt.watcher != nil {
			_ = rt.watcher.Stop()
		}
		a.proc.RemoveProfile(id)
		delete(a.profiles, id)
	}

	for i := range cfg.Profiles {
		pc := cfg.Profiles[i]
		rt, err := a.buildProfile(pc)
		if err != nil {
			log.Error().Err(err).Str("profile", pc.ID).Msg("Profile configuration invalid, skipping")
			a.bus.Publish(events.ConfigError{Message: fmt.Sprintf("profile %s: %v", pc.ID, err)})
			continue
		}
		a.profiles[pc.ID] = rt
	}
	if len(a.profiles) == 0 {
		return fmt.Errorf("no usable profiles configured")
	}
	return nil
}

// buildProfile compiles one profile's parser, chain, synthesizer and
// watcher, without starting the watcher.
func (a *App) buildProfile(pc config.Profile) (*profileRuntime, error) {
	psr, ok := a.parsers[pc.Parser]
	if !ok {
		return nil, fmt.Errorf("unknown parser %q", pc.Parser)
	}

	chain, err := filter.NewDefaultChain(filter.Options{
		Disabled:       pc.Filters.Disabled,
		URLToken:       pc.Filters.URLToken,
		SpeakParentDir: pc.Filters.SpeakParentDir,
		Lexicon:        pc.Filters.Lexicon,
		MinLength:      pc.Filters.MinLength,
		MaxLength:      pc.Filters.MaxLength,
		Rules:          pc.Filters.Rules,
	})
	if err != nil {
		return nil, fmt.Errorf("build filter chain: %w", err)
	}

	synth, err := a.buildSynthesizer(pc.Synthesis)
	if err != nil {
		return nil, err
	}

	w, err := watcher.New(watcher.Profile{
		ID:       pc.ID,
		Patterns: pc.Patterns,
		Excludes: pc.Excludes,
		Mode:     psr.Mode(),
	}, a.states, time.Duration(a.cfg.RescanSeconds)*time.Second, a.proc.HandleChange)
	if err != nil {
		return nil, fmt.Errorf("build watcher: %w", err)
	}

	a.proc.SetProfile(pc.ID, psr, chain)

	return &profileRuntime{
		cfg:     pc,
		enabled: pc.IsEnabled(),
		watcher: w,
		synth:   synth,
		voice:   speech.Voice{ID: pc.Synthesis.Voice, Extension: pc.Synthesis.Extension},
	}, nil
}

func (a *App) buildSynthesizer(sc config.SynthesisConfig) (speech.Synthesizer, error) {
	switch sc.Provider {
	case "http":
		return speech.NewHTTPProvider(sc.URL, sc.AuthHeader)
	default:
		return speech.NewCommandProvider(sc.Command)
	}
}

func (a *App) startWatchers(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, rt := range a.profiles {
		if !rt.enabled {
			continue
		}
		if err := rt.watcher.Start(ctx); err != nil {
			// One profile failing to watch never stops the others.
			log.Error().Err(err).Str("profile", id).Msg("Watcher failed to start")
			a.bus.Publish(events.ConfigError{Message: fmt.Sprintf("profile %s: %v", id, err)})
		}
	}
	return nil
}

func (a *App) stopWatchers() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rt := range a.profiles {
		if rt.watcher != nil {
			_ = rt.watcher.Stop()
		}
	}
}

// reloadConfig applies a rewritten config file. An invalid file publishes a
// ConfigError and leaves the last good configuration running.
func (a *App) reloadConfig(ctx context.Context) {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Config reload failed, keeping previous configuration")
		a.bus.Publish(events.ConfigError{Message: err.Error()})
		return
	}

	log.Info().Int("profiles", len(cfg.Profiles)).Msg("Configuration changed, applying")
	if err := a.applyConfig(ctx, cfg); err != nil {
		a.bus.Publish(events.ConfigError{Message: err.Error()})
		return
	}
	if err := a.startWatchers(ctx); err != nil {
		a.bus.Publish(events.ConfigError{Message: err.Error()})
	}
}

// resolveVoice is the queue's per-record synthesis lookup.
func (a *App) resolveVoice(profileID string) (speech.Synthesizer, speech.Voice, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rt, ok := a.profiles[profileID]
	if !ok {
		return nil, speech.Voice{}, fmt.Errorf("unknown profile %q", profileID)
	}
	return rt.synth, rt.voice, nil
}

// Pause implements worker.Controller. Pausing discards the pending
// queue; see queue.Pause.
func (a *App) Pause() { a.queue.Pause() }

// Resume implements worker.Controller.
func (a *App) Resume() { a.queue.Resume() }

// Stop implements worker.Controller.
func (a *App) Stop() { a.queue.Stop() }

// Skip implements worker.Controller.
func (a *App) Skip() { a.queue.Skip() }

// SetMuted implements worker.Controller.
func (a *App) SetMuted(muted bool) { a.queue.SetMuted(muted) }

// Replay implements worker.Controller.
func (a *App) Replay(ctx context.Context, id int64) error {
	return a.queue.Replay(ctx, id)
}

// SetFavorite implements worker.Controller.
func (a *App) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	return a.records.SetFavorite(ctx, id, favorite)
}

// SetProfileEnabled implements worker.Controller: starts or stops the
// profile's watcher at runtime.
func (a *App) SetProfileEnabled(ctx context.Context, profileID string, enabled bool) error {
	a.mu.Lock()
	rt, ok := a.profiles[profileID]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("unknown profile %q", profileID)
	}
	if rt.enabled == enabled {
		a.mu.Unlock()
		return nil
	}
	rt.enabled = enabled
	rescan := time.Duration(a.cfg.RescanSeconds) * time.Second
	a.mu.Unlock()

	if enabled {
		// A stopped fsnotify watcher cannot restart; build a fresh one.
		w, err := watcher.New(watcher.Profile{
			ID:       rt.cfg.ID,
			Patterns: rt.cfg.Patterns,
			Excludes: rt.cfg.Excludes,
			Mode:     a.parsers[rt.cfg.Parser].Mode(),
		}, a.states, rescan, a.proc.HandleChange)
		if err != nil {
			return err
		}
		a.mu.Lock()
		rt.watcher = w
		a.mu.Unlock()
		return w.Start(a.ctx)
	}

	return rt.watcher.Stop()
}

// ResetProfile implements worker.Controller: drops the profile's watch
// state so its next startup scan re-baselines.
func (a *App) ResetProfile(ctx context.Context, profileID string) (int64, error) {
	return a.states.DeleteProfile(ctx, profileID)
}

// Status implements worker.Controller.
func (a *App) Status() models.StatusSnapshot {
	a.mu.Lock()
	profiles := make([]models.ProfileStatus, 0, len(a.profiles))
	for _, rt := range a.profiles {
		profiles = append(profiles, models.ProfileStatus{
			ID:      rt.cfg.ID,
			Parser:  rt.cfg.Parser,
			Enabled: rt.enabled,
		})
	}
	a.mu.Unlock()
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })

	return models.StatusSnapshot{
		Muted:     a.queue.Muted(),
		Paused:    a.queue.Paused(),
		Profiles:  profiles,
		QueueSize: a.queue.Size(),
		IsPlaying: a.queue.IsPlaying(),
	}
}

// Logs implements worker.Controller.
func (a *App) Logs(ctx context.Context, q store.LogQuery) ([]models.QueueRecord, error) {
	return a.records.List(ctx, q)
}

// Sweep implements worker.Controller: age-based deletion of terminal
// records (favorites exempt) and stale cache artifacts.
func (a *App) Sweep(ctx context.Context, olderThan time.Duration) (worker.SweepResult, error) {
	cutoff := time.Now().Add(-olderThan)

	records, err := a.records.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return worker.SweepResult{}, err
	}
	artifacts, err := a.cache.SweepOlderThan(cutoff.UnixMilli())
	if err != nil {
		return worker.SweepResult{Records: records}, err
	}
	return worker.SweepResult{Records: records, Artifacts: artifacts}, nil
}
