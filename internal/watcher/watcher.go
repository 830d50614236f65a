// Package watcher observes session log files for one profile and reports
// newly written content. Append-mode files are tracked by byte offset
// through the store; new-file-mode files are processed whole, once, and
// only when they appear after the watcher started.
package watcher

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"talkback/internal/parser"
	"talkback/internal/store"
)

// debounceDelay batches the bursts of write events an appending process
// produces before one read.
const debounceDelay = 200 * time.Millisecond

// ChangeEvent carries newly observed content to the message processor.
type ChangeEvent struct {
	ProfileID string
	Path      string
	Data      []byte
}

// Handler consumes change events. Called from the watcher's goroutine, one
// event at a time.
type Handler func(ctx context.Context, ev ChangeEvent)

// Profile is the watch configuration for one source.
type Profile struct {
	ID       string
	Patterns []string
	Excludes []string
	Mode     parser.GrowthMode
}

// Watcher watches one profile's path patterns.
type Watcher struct {
	profile Profile
	states  *store.WatchStateStore
	handler Handler
	rescan  time.Duration

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	timers  map[string]*time.Timer
	locks   map[string]*sync.Mutex // serializes per-path processing
	seen    map[string]bool        // new-file mode: already-processed paths
	watched map[string]bool        // directories added to fsnotify
	scanned bool                   // initial scan completed
}

// New creates a watcher for the profile. Rescan is the fallback polling
// interval; zero selects the 2s default.
func New(profile Profile, states *store.WatchStateStore, rescan time.Duration, handler Handler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if rescan <= 0 {
		rescan = 2 * time.Second
	}
	return &Watcher{
		profile: profile,
		states:  states,
		handler: handler,
		rescan:  rescan,
		fsw:     fsw,
		timers:  make(map[string]*time.Timer),
		locks:   make(map[string]*sync.Mutex),
		seen:    make(map[string]bool),
		watched: make(map[string]bool),
	}, nil
}

// Start runs the initial scan and begins watching. The initial scan
// baselines append-mode files that have never been seen (offset = current
// size, nothing emitted) and marks pre-existing new-file-mode files as seen
// without reading them, so history is never replayed.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.initialScan(ctx)

	w.mu.Lock()
	w.scanned = true
	w.mu.Unlock()

	go w.loop(ctx)

	log.Info().
		Str("profile", w.profile.ID).
		Strs("patterns", w.profile.Patterns).
		Str("mode", string(w.profile.Mode)).
		Msg("Watcher started")
	return nil
}

// Stop stops the watcher and its timers.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	w.cancel()
	for _, t := range w.timers {
		t.Stop()
	}
	return w.fsw.Close()
}

func (w *Watcher) initialScan(ctx context.Context) {
	for _, path := range w.matchAll() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		switch w.profile.Mode {
		case parser.ModeNewFile:
			w.mu.Lock()
			w.seen[path] = true
			w.mu.Unlock()

		default: // append
			st, err := w.states.Get(ctx, path)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("Watch state lookup failed")
				continue
			}
			if st != nil {
				// A row survives restarts; unread bytes written while we
				// were down are picked up by the first regular pass.
				continue
			}
			// First sight: baseline at the current size, emit nothing.
			if err := w.states.Upsert(ctx, &store.FileWatchState{
				FilePath:            path,
				ProfileID:           w.profile.ID,
				LastModifiedEpoch:   info.ModTime().UnixMilli(),
				FileSize:            info.Size(),
				LastProcessedOffset: info.Size(),
			}); err != nil {
				log.Error().Err(err).Str("path", path).Msg("Watch state baseline failed")
			}
		}
		w.watchDir(filepath.Dir(path))
	}

	for _, pattern := range w.profile.Patterns {
		w.watchDir(patternBase(pattern))
	}
}

// loop multiplexes fsnotify events with the fallback rescan ticker. Both
// paths converge on processPath, so correctness never depends on fsnotify
// delivering events.
func (w *Watcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.rescan)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			path := filepath.Clean(event.Name)
			if !w.matches(path) {
				// A created directory may hold future matches.
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(path); err == nil && info.IsDir() {
						w.watchDir(path)
					}
				}
				continue
			}
			w.debounced(ctx, path)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Str("profile", w.profile.ID).Msg("Watcher error")

		case <-ticker.C:
			w.scanOnce(ctx)
		}
	}
}

// scanOnce re-globs the patterns and processes every match, catching
// changes fsnotify missed and files in directories created since start.
func (w *Watcher) scanOnce(ctx context.Context) {
	for _, path := range w.matchAll() {
		w.processPath(ctx, path)
		w.watchDir(filepath.Dir(path))
	}
}

// debounced schedules one processPath per path after writes settle.
func (w *Watcher) debounced(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.processPath(ctx, path)
	})
}

// processPath reads whatever is new in one file and hands it to the
// handler. A vanished file is a soft miss; any other failure is logged and
// watching continues.
//
// Debounce timers fire on their own goroutines while the rescan ticker runs
// on the loop goroutine, so the get-offset, read, store-offset sequence must
// hold the path's lock or both could read from the same stored offset and
// emit the same bytes twice.
func (w *Watcher) processPath(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}

	l := w.pathLock(path)
	l.Lock()
	defer l.Unlock()

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Stat failed, skipping")
		return
	}
	if info.IsDir() {
		return
	}

	switch w.profile.Mode {
	case parser.ModeNewFile:
		w.processNewFile(ctx, path)
	default:
		w.processAppend(ctx, path, info)
	}
}

func (w *Watcher) processNewFile(ctx context.Context, path string) {
	w.mu.Lock()
	if w.seen[path] {
		w.mu.Unlock()
		return
	}
	w.seen[path] = true
	w.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Read failed, skipping")
		return
	}
	if len(data) == 0 {
		return
	}
	w.handler(ctx, ChangeEvent{ProfileID: w.profile.ID, Path: path, Data: data})
}

func (w *Watcher) processAppend(ctx context.Context, path string, info os.FileInfo) {
	st, err := w.states.Get(ctx, path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Watch state lookup failed")
		return
	}

	var offset int64
	switch {
	case st == nil && !w.initialScanDone():
		// First sight during startup: the initial scan baselines it.
		return
	case st == nil:
		// Appeared after startup: whole file is new content.
		offset = 0
	case info.Size() < st.LastProcessedOffset:
		// Truncated or rotated in place. Resync from the top.
		log.Info().
			Str("path", path).
			Int64("storedOffset", st.LastProcessedOffset).
			Int64("size", info.Size()).
			Msg("File truncated, resetting offset")
		offset = 0
	default:
		offset = st.LastProcessedOffset
	}

	if info.Size() == offset {
		return // nothing unread
	}

	data, err := readFrom(path, offset)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		log.Warn().Err(err).Str("path", path).Msg("Read failed, skipping")
		return
	}

	newOffset := offset + int64(len(data))
	if err := w.states.Upsert(ctx, &store.FileWatchState{
		FilePath:            path,
		ProfileID:           w.profile.ID,
		LastModifiedEpoch:   info.ModTime().UnixMilli(),
		FileSize:            newOffset,
		LastProcessedOffset: newOffset,
	}); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Watch state update failed")
		// Without a durable offset the same bytes would replay next pass;
		// drop this batch rather than double-speak it after a later write.
		return
	}

	if len(data) > 0 {
		w.handler(ctx, ChangeEvent{ProfileID: w.profile.ID, Path: path, Data: data})
	}
}

// pathLock returns the mutex serializing processing of one path.
func (w *Watcher) pathLock(path string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.locks[path]
	if !ok {
		l = &sync.Mutex{}
		w.locks[path] = l
	}
	return l
}

func (w *Watcher) initialScanDone() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scanned
}

// matchAll globs every pattern and drops excluded paths. Duplicates across
// overlapping patterns collapse.
func (w *Watcher) matchAll() []string {
	set := make(map[string]bool)
	var out []string
	for _, pattern := range w.profile.Patterns {
		matches, err := Glob(pattern)
		if err != nil {
			log.Warn().Err(err).Str("pattern", pattern).Msg("Bad watch pattern")
			continue
		}
		for _, m := range matches {
			m = filepath.Clean(m)
			if set[m] || w.excluded(m) {
				continue
			}
			set[m] = true
			out = append(out, m)
		}
	}
	return out
}

// matches reports whether a path belongs to this profile.
func (w *Watcher) matches(path string) bool {
	if w.excluded(path) {
		return false
	}
	for _, pattern := range w.profile.Patterns {
		if MatchPattern(pattern, path) {
			return true
		}
	}
	return false
}

func (w *Watcher) excluded(path string) bool {
	for _, pattern := range w.profile.Excludes {
		if MatchPattern(pattern, path) {
			return true
		}
	}
	return false
}

// watchDir adds a directory to fsnotify once. Failures are logged and
// tolerated; the rescan ticker covers unwatchable directories.
func (w *Watcher) watchDir(dir string) {
	if dir == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[dir] {
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return
	}
	if err := w.fsw.Add(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Failed to add watch")
		return
	}
	w.watched[dir] = true
}

// readFrom returns the file's bytes from offset to EOF.
func readFrom(path string, offset int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return io.ReadAll(f)
}
