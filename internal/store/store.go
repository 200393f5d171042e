// Package store owns the record table, title mapping, change log, and
// vector index, keeping all three consistent under concurrent mutation.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyperjump/rezept/internal/embedding"
	"github.com/hyperjump/rezept/internal/models"
	"github.com/hyperjump/rezept/internal/vector"
)

// compactThreshold triggers a compaction rebuild when more than this
// fraction of slots are tombstoned.
const compactThreshold = 0.5

// Store is the incremental recipe store. A slot is a stable position shared
// by the record table and the vector index; slots are assigned once per
// title and never reused, so in-flight searches can resolve index positions
// safely. Soft deletes tombstone the slot instead of removing it; a
// compaction rebuild is the only operation that renumbers slots.
type Store struct {
	mu          sync.RWMutex
	records     []*models.Recipe
	titleToSlot map[string]int
	changes     []models.ChangeEntry
	index       *vector.FlatIndex
	embedder    embedding.Embedder
	persister   Persister
	logger      *zap.Logger
	seq         atomic.Uint64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets a logger for operational events.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithPersister enables durability: every successful mutation is followed
// by a snapshot write, and New restores the persisted pair at startup.
func WithPersister(p Persister) StoreOption {
	return func(s *Store) { s.persister = p }
}

// New creates a store over the given embedder and index. When a persister
// is configured, the persisted snapshot pair is restored; if no usable pair
// exists the store starts empty.
func New(embedder embedding.Embedder, index *vector.FlatIndex, opts ...StoreOption) (*Store, error) {
	s := &Store{
		titleToSlot: make(map[string]int),
		index:       index,
		embedder:    embedder,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.persister != nil {
		if err := s.restore(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) restore() error {
	snap, err := s.persister.Load(s.embedder.Dimensions())
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			s.logger.Info("no persisted snapshot, starting fresh", zap.Error(err))
			return nil
		}
		return fmt.Errorf("restore snapshot: %w", err)
	}
	if err := s.index.Restore(snap.Rows, snap.Dead); err != nil {
		return fmt.Errorf("restore index: %w", err)
	}
	s.records = snap.Records
	s.changes = snap.Changes
	for slot, r := range snap.Records {
		if !r.Deleted {
			s.titleToSlot[r.Title] = slot
		}
	}
	s.logger.Info("restored snapshot",
		zap.Int("records", len(s.records)),
		zap.Int("changes", len(s.changes)),
	)
	return nil
}

// AddOrUpdate inserts or updates a record keyed by title. A record whose
// content hash is unchanged is a no-op (the synchronizer re-submits every
// watched file each tick, so unchanged files must not thrash the index).
// A persist failure does not roll back the in-memory mutation; it is
// reported through the result's PersistWarning.
func (s *Store) AddOrUpdate(ctx context.Context, recipe *models.Recipe, user string) (*models.UpdateResult, error) {
	if recipe == nil || recipe.Title == "" {
		return nil, fmt.Errorf("recipe must have a title")
	}
	newHash := recipe.ContentHash()

	s.mu.Lock()
	if err := s.checkConsistencyLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	var (
		result *models.UpdateResult
		snap   *Snapshot
	)
	if slot, ok := s.titleToSlot[recipe.Title]; ok {
		oldHash := s.records[slot].ContentHash()
		if oldHash == newHash {
			s.mu.Unlock()
			return &models.UpdateResult{Action: models.ActionNoChange, Title: recipe.Title}, nil
		}
		vec, err := s.embedder.Embed(ctx, recipe.SearchText())
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("embed recipe: %w", err)
		}
		if err := s.index.Replace(slot, vec); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("replace vector: %w", err)
		}
		s.records[slot] = recipe
		s.changes = append(s.changes, models.NewChangeEntry(recipe.Title, models.ActionUpdate, oldHash, newHash, user))
		result = &models.UpdateResult{Action: models.ActionUpdate, Title: recipe.Title}
	} else {
		vec, err := s.embedder.Embed(ctx, recipe.SearchText())
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("embed recipe: %w", err)
		}
		slot, err := s.index.Append(vec)
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("append vector: %w", err)
		}
		if slot != len(s.records) {
			// The append landed somewhere other than the next table slot.
			s.mu.Unlock()
			return nil, &IndexInconsistencyError{TableSize: len(s.records), IndexSize: slot + 1}
		}
		s.records = append(s.records, recipe)
		s.titleToSlot[recipe.Title] = slot
		s.changes = append(s.changes, models.NewChangeEntry(recipe.Title, models.ActionAdd, "", newHash, user))
		result = &models.UpdateResult{Action: models.ActionAdd, Title: recipe.Title}
	}
	snap = s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("recipe stored",
		zap.String("title", recipe.Title),
		zap.String("action", string(result.Action)),
		zap.String("user", user),
	)
	s.persistAfterMutation(snap, result)
	return result, nil
}

// Delete soft-deletes the record for title: the title mapping is cleared
// and the slot tombstoned, but the slot's vector stays physically indexed
// so later slots keep their positions. Returns ErrNotFound for unknown
// titles. When tombstones exceed the compaction threshold, the table and
// index are compacted before the snapshot is taken.
func (s *Store) Delete(ctx context.Context, title, user string) (*models.UpdateResult, error) {
	s.mu.Lock()
	slot, ok := s.titleToSlot[title]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if err := s.checkConsistencyLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	oldHash := s.records[slot].ContentHash()
	if err := s.index.Tombstone(slot); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("tombstone vector: %w", err)
	}
	delete(s.titleToSlot, title)
	s.records[slot] = models.Tombstone(title)
	s.changes = append(s.changes, models.NewChangeEntry(title, models.ActionDelete, oldHash, "", user))

	if s.shouldCompactLocked() {
		if err := s.compactLocked(); err != nil {
			s.logger.Warn("compaction failed", zap.Error(err))
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("recipe deleted", zap.String("title", title), zap.String("user", user))
	result := &models.UpdateResult{Action: models.ActionDelete, Title: title}
	s.persistAfterMutation(snap, result)
	return result, nil
}

// Get returns a copy of the record for title. Tombstoned titles are not
// found (their mapping is removed on delete).
func (s *Store) Get(title string) (*models.Recipe, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.titleToSlot[title]
	if !ok {
		return nil, false
	}
	return s.records[slot].Clone(), true
}

// GetAll returns copies of every record, tombstoned entries included.
// Callers filter by the Deleted flag.
func (s *Store) GetAll() []*models.Recipe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Recipe, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// Candidate is a live record paired with its distance from a search query.
type Candidate struct {
	Recipe   *models.Recipe
	Distance float64
}

// Neighbors returns up to k live candidates by ascending distance from the
// query vector. Tombstoned slots and slots whose record is marked deleted
// are excluded, so an orphaned vector can never surface a deleted title.
// The index and table are read under one lock so the result reflects a
// single consistent state.
func (s *Store) Neighbors(query []float32, k int) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	neighbors, err := s.index.Search(query, k)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Slot >= len(s.records) {
			continue
		}
		r := s.records[n.Slot]
		if r.Deleted {
			continue
		}
		if slot, ok := s.titleToSlot[r.Title]; !ok || slot != n.Slot {
			continue
		}
		candidates = append(candidates, Candidate{Recipe: r.Clone(), Distance: n.Distance})
	}
	return candidates, nil
}

// Changes returns the most recent limit change-log entries, oldest first.
func (s *Store) Changes(limit int) []models.ChangeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.changes) {
		limit = len(s.changes)
	}
	out := make([]models.ChangeEntry, limit)
	copy(out, s.changes[len(s.changes)-limit:])
	return out
}

// Stats returns store-level counters. SyncActive is left for the caller.
func (s *Store) Stats() models.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := models.Stats{
		TotalRecipes:  len(s.records),
		LiveRecipes:   len(s.titleToSlot),
		Tombstones:    len(s.records) - len(s.titleToSlot),
		Cuisines:      make(map[string]int),
		RecentChanges: len(s.changes),
	}
	for _, r := range s.records {
		if r.Deleted {
			continue
		}
		cuisine := r.Cuisine
		if cuisine == "" {
			cuisine = "Unknown"
		}
		stats.Cuisines[cuisine]++
	}
	return stats
}

// Size returns the number of slots, tombstoned included.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Compact rebuilds the table and index from live records only, renumbering
// slots. It takes the write lock for the full rebuild so no search observes
// a partially rebuilt index.
func (s *Store) Compact() error {
	s.mu.Lock()
	err := s.compactLocked()
	var snap *Snapshot
	if err == nil {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.persistAfterMutation(snap, nil)
	return nil
}

func (s *Store) shouldCompactLocked() bool {
	total := len(s.records)
	if total == 0 {
		return false
	}
	dead := total - len(s.titleToSlot)
	return float64(dead)/float64(total) > compactThreshold
}

func (s *Store) compactLocked() error {
	liveSlots, liveRows := s.index.Rows()
	rowBySlot := make(map[int][]float32, len(liveSlots))
	for i, slot := range liveSlots {
		rowBySlot[slot] = liveRows[i]
	}

	var (
		newRecords []*models.Recipe
		newRows    [][]float32
	)
	newMap := make(map[string]int)
	for slot, r := range s.records {
		if r.Deleted {
			continue
		}
		row, ok := rowBySlot[slot]
		if !ok {
			return &IndexInconsistencyError{TableSize: len(s.records), IndexSize: s.index.Size()}
		}
		newMap[r.Title] = len(newRecords)
		newRecords = append(newRecords, r)
		newRows = append(newRows, row)
	}
	if err := s.index.Rebuild(newRows); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	dropped := len(s.records) - len(newRecords)
	s.records = newRecords
	s.titleToSlot = newMap
	s.logger.Info("compacted store", zap.Int("live", len(newRecords)), zap.Int("dropped", dropped))
	return nil
}

func (s *Store) checkConsistencyLocked() error {
	if len(s.records) != s.index.Size() {
		return &IndexInconsistencyError{TableSize: len(s.records), IndexSize: s.index.Size()}
	}
	return nil
}

// snapshotLocked assembles a copy of the full state. Called while holding
// the write lock so the snapshot is always a fully-applied state; the
// actual I/O happens after the lock is released.
func (s *Store) snapshotLocked() *Snapshot {
	if s.persister == nil {
		return nil
	}
	records := make([]*models.Recipe, len(s.records))
	for i, r := range s.records {
		records[i] = r.Clone()
	}
	changes := s.changes
	if len(changes) > models.ChangeLogLimit {
		changes = changes[len(changes)-models.ChangeLogLimit:]
	}
	changesCopy := make([]models.ChangeEntry, len(changes))
	copy(changesCopy, changes)
	rows, dead := s.index.Snapshot()
	return &Snapshot{
		Seq:        s.seq.Add(1),
		Records:    records,
		Changes:    changesCopy,
		Dimensions: s.embedder.Dimensions(),
		Rows:       rows,
		Dead:       dead,
	}
}

func (s *Store) persistAfterMutation(snap *Snapshot, result *models.UpdateResult) {
	if s.persister == nil || snap == nil {
		return
	}
	if err := s.persister.Save(snap); err != nil {
		s.logger.Warn("persist failed, in-memory state remains authoritative", zap.Error(err))
		if result != nil {
			result.PersistWarning = err.Error()
		}
	}
}

// Close persists a final snapshot when durability is enabled and releases
// the persister.
func (s *Store) Close() error {
	if s.persister == nil {
		return nil
	}
	s.mu.RLock()
	snap := s.snapshotLocked()
	s.mu.RUnlock()
	if snap != nil {
		if err := s.persister.Save(snap); err != nil {
			s.logger.Warn("final persist failed", zap.Error(err))
		}
	}
	return s.persister.Close()
}
