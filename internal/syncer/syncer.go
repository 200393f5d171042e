// Package syncer keeps the store in sync with a watched recipe directory
// by polling file modification times.
package syncer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/rezept/internal/models"
	"github.com/hyperjump/rezept/internal/parse"
)

// autoUpdateUser tags change-log entries produced by the synchronizer.
const autoUpdateUser = "auto_update"

// Ingestor is the slice of the store the synchronizer needs.
type Ingestor interface {
	AddOrUpdate(ctx context.Context, recipe *models.Recipe, user string) (*models.UpdateResult, error)
}

// Syncer polls a directory for recipe files and submits new or changed
// files to the store. Modification times decide what changed; an fsnotify
// watch only shortens the wait until the next poll, it never bypasses the
// mtime comparison. Files that disappear are forgotten by the poll state
// but their records are NOT deleted from the store; removal from the
// corpus stays a deliberate, explicit operation.
type Syncer struct {
	dir        string
	extensions []string
	interval   time.Duration
	backoff    time.Duration
	ingestor   Ingestor
	logger     *zap.Logger

	mu       sync.Mutex
	seen     map[string]time.Time
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithLogger sets a logger for sync events.
func WithLogger(l *zap.Logger) SyncerOption {
	return func(s *Syncer) { s.logger = l }
}

// New creates a syncer over dir. extensions filter which files are
// considered (with leading dot, e.g. ".md").
func New(dir string, extensions []string, interval, backoff time.Duration, ingestor Ingestor, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		dir:        dir,
		extensions: extensions,
		interval:   interval,
		backoff:    backoff,
		ingestor:   ingestor,
		logger:     zap.NewNop(),
		seen:       make(map[string]time.Time),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins polling. The first tick runs immediately, so every file
// already in the directory is ingested at startup. Runs until ctx is
// cancelled or Stop is called.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	// The watch is best effort. A failure here just means no early
	// wake-ups; polling alone is sufficient.
	var events chan struct{}
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := watcher.Add(s.dir); err == nil {
			events = make(chan struct{}, 1)
			go s.forwardEvents(watcher, events)
		} else {
			watcher.Close()
			watcher = nil
		}
	}

	s.logger.Info("sync started",
		zap.String("dir", s.dir),
		zap.Strings("extensions", s.extensions),
		zap.Duration("interval", s.interval),
	)
	go s.run(ctx, watcher, events)
	return nil
}

func (s *Syncer) forwardEvents(w *fsnotify.Watcher, nudge chan<- struct{}) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case nudge <- struct{}{}:
			default:
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if err != nil {
				s.logger.Debug("watch error", zap.Error(err))
			}
		}
	}
}

func (s *Syncer) run(ctx context.Context, watcher *fsnotify.Watcher, events <-chan struct{}) {
	if watcher != nil {
		defer watcher.Close()
	}
	wait := time.Duration(0)
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.done:
			timer.Stop()
			return
		case <-events:
			timer.Stop()
		case <-timer.C:
		}

		if err := s.tick(ctx); err != nil {
			s.logger.Warn("sync tick failed", zap.Error(err))
			wait = s.backoff
			continue
		}
		wait = s.interval
	}
}

// tick enumerates matching files and ingests every new or modified one.
// Per-file failures are logged and do not abort the tick; the tick itself
// fails only when the directory cannot be read.
func (s *Syncer) tick(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	present := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !s.matchesExtension(entry.Name()) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		present[path] = struct{}{}

		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("stat failed", zap.String("path", path), zap.Error(err))
			continue
		}
		mtime := info.ModTime()

		s.mu.Lock()
		last, known := s.seen[path]
		s.mu.Unlock()
		// Any mtime change counts, including one moved backwards by a
		// restored backup. Only an identical timestamp is skipped.
		if known && mtime.Equal(last) {
			continue
		}

		s.ingestFile(ctx, path)

		// Recorded even when ingestion failed, so a broken file is not
		// retried every tick until it actually changes again.
		s.mu.Lock()
		s.seen[path] = mtime
		s.mu.Unlock()
	}

	// Disappeared files are dropped from the poll state only; their store
	// records stay.
	s.mu.Lock()
	for path := range s.seen {
		if _, ok := present[path]; !ok {
			delete(s.seen, path)
			s.logger.Info("watched file removed, record retained", zap.String("path", path))
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Syncer) ingestFile(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("read failed", zap.String("path", path), zap.Error(err))
		return
	}
	recipe, err := parse.Parse(string(content), filepath.Base(path))
	if err != nil {
		s.logger.Warn("parse failed", zap.String("path", path), zap.Error(err))
		return
	}
	result, err := s.ingestor.AddOrUpdate(ctx, recipe, autoUpdateUser)
	if err != nil {
		s.logger.Warn("ingest failed", zap.String("path", path), zap.Error(err))
		return
	}
	if result.Action != models.ActionNoChange {
		s.logger.Info("synced recipe",
			zap.String("path", path),
			zap.String("title", result.Title),
			zap.String("action", string(result.Action)),
		)
	}
}

func (s *Syncer) matchesExtension(name string) bool {
	if len(s.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range s.extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// Running reports whether Start has been called and Stop has not.
func (s *Syncer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Stop halts the poll loop. The loop exits before its next tick.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
