package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/rezept/internal/models"
	"github.com/hyperjump/rezept/internal/vector"
)

// Snapshot is a fully-applied copy of the store's state, assembled inside a
// mutation's critical section and written to durable storage afterwards.
// Changes is already bounded to the retention limit. Seq orders snapshots
// from the same store; a persister must never let an older snapshot
// overwrite a newer one.
type Snapshot struct {
	Seq        uint64
	Records    []*models.Recipe
	Changes    []models.ChangeEntry
	Dimensions int
	Rows       [][]float32
	Dead       []bool
}

// Persister writes and restores the paired durable artifacts: the table
// artifact (records + change log) and the index artifact (vectors +
// tombstone bitmap). The two are only ever trusted together; Load returns
// ErrNoSnapshot when either is missing or unreadable so the caller starts
// fresh with both.
type Persister interface {
	Save(snap *Snapshot) error
	Load(dimensions int) (*Snapshot, error)
	Close() error
}

// SQLitePersister stores the table artifact in SQLite and the index
// artifact as a binary file next to it. A mutex serializes Save calls:
// mutations persist after the store's lock is released, so two writers can
// reach Save concurrently, and interleaved index renames and table
// transactions would leave a mismatched pair on disk.
type SQLitePersister struct {
	db        *sql.DB
	indexPath string
	mu        sync.Mutex
	savedSeq  uint64
}

// NewSQLitePersister opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do not
// exist. indexPath is where the vector artifact lives.
func NewSQLitePersister(dbPath, indexPath string) (*SQLitePersister, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLitePersister{db: db, indexPath: indexPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS recipes (
		slot INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		time TEXT,
		calories INTEGER,
		diet TEXT,
		cuisine TEXT,
		ingredients TEXT,
		steps TEXT,
		source TEXT,
		content TEXT,
		deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS changes (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		action TEXT NOT NULL,
		old_hash TEXT,
		new_hash TEXT,
		user TEXT,
		timestamp TIMESTAMP NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Save writes the snapshot: the index artifact first (atomic replace), then
// the table artifact in one transaction. Both describe the same snapshot,
// so a reader that loads the pair sees one fully-applied state.
func (p *SQLitePersister) Save(snap *Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Writers reach Save after the store's lock is released, so a later
	// snapshot may arrive first. Skip the stale one rather than letting it
	// overwrite newer state.
	if snap.Seq != 0 && snap.Seq <= p.savedSeq {
		return nil
	}

	if err := vector.WriteFile(p.indexPath, snap.Dimensions, snap.Rows, snap.Dead); err != nil {
		return &PersistenceError{Op: "write index artifact", Err: err}
	}

	tx, err := p.db.Begin()
	if err != nil {
		return &PersistenceError{Op: "begin table write", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM recipes`); err != nil {
		return &PersistenceError{Op: "clear recipes", Err: err}
	}
	stmt, err := tx.Prepare(
		`INSERT INTO recipes (slot, title, time, calories, diet, cuisine, ingredients, steps, source, content, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return &PersistenceError{Op: "prepare recipe insert", Err: err}
	}
	defer stmt.Close()
	for slot, r := range snap.Records {
		ingredients, err := json.Marshal(r.Ingredients)
		if err != nil {
			return &PersistenceError{Op: "marshal ingredients", Err: err}
		}
		steps, err := json.Marshal(r.Steps)
		if err != nil {
			return &PersistenceError{Op: "marshal steps", Err: err}
		}
		var calories sql.NullInt64
		if r.Calories != nil {
			calories = sql.NullInt64{Int64: int64(*r.Calories), Valid: true}
		}
		deleted := 0
		if r.Deleted {
			deleted = 1
		}
		if _, err := stmt.Exec(slot, r.Title, r.Time, calories, r.Diet, r.Cuisine, string(ingredients), string(steps), r.Source, r.Content, deleted); err != nil {
			return &PersistenceError{Op: "insert recipe", Err: err}
		}
	}

	if _, err := tx.Exec(`DELETE FROM changes`); err != nil {
		return &PersistenceError{Op: "clear changes", Err: err}
	}
	changeStmt, err := tx.Prepare(
		`INSERT INTO changes (id, title, action, old_hash, new_hash, user, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return &PersistenceError{Op: "prepare change insert", Err: err}
	}
	defer changeStmt.Close()
	for _, c := range snap.Changes {
		if _, err := changeStmt.Exec(c.ID, c.Title, string(c.Action), c.OldHash, c.NewHash, c.User, c.Timestamp); err != nil {
			return &PersistenceError{Op: "insert change", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "commit table write", Err: err}
	}
	p.savedSeq = snap.Seq
	return nil
}

// Load restores the snapshot pair. Returns ErrNoSnapshot when the table is
// empty and no index artifact exists (fresh start), when either artifact
// fails to parse, or when the two artifacts disagree (only one present, or
// slot counts differ). A half-usable pair is never loaded; the caller
// starts fresh with both.
func (p *SQLitePersister) Load(dimensions int) (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	records, err := p.loadRecords()
	if err != nil {
		return nil, fmt.Errorf("%w: table artifact unreadable: %v", ErrNoSnapshot, err)
	}

	rows, dead, err := vector.ReadFile(p.indexPath, dimensions)
	if errors.Is(err, vector.ErrNoArtifact) {
		if len(records) == 0 {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("%w: table artifact present without index artifact", ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: index artifact unreadable: %v", ErrNoSnapshot, err)
	}
	if len(rows) != len(records) {
		return nil, fmt.Errorf("%w: table has %d slots, index has %d", ErrNoSnapshot, len(records), len(rows))
	}

	changes, err := p.loadChanges()
	if err != nil {
		return nil, fmt.Errorf("%w: change log unreadable: %v", ErrNoSnapshot, err)
	}

	return &Snapshot{
		Records:    records,
		Changes:    changes,
		Dimensions: dimensions,
		Rows:       rows,
		Dead:       dead,
	}, nil
}

func (p *SQLitePersister) loadRecords() ([]*models.Recipe, error) {
	rows, err := p.db.Query(
		`SELECT slot, title, time, calories, diet, cuisine, ingredients, steps, source, content, deleted
		 FROM recipes ORDER BY slot`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.Recipe
	next := 0
	for rows.Next() {
		var (
			slot        int
			r           models.Recipe
			calories    sql.NullInt64
			ingredients string
			steps       string
			deleted     int
		)
		if err := rows.Scan(&slot, &r.Title, &r.Time, &calories, &r.Diet, &r.Cuisine, &ingredients, &steps, &r.Source, &r.Content, &deleted); err != nil {
			return nil, err
		}
		if slot != next {
			return nil, fmt.Errorf("slot gap: expected %d, got %d", next, slot)
		}
		next++
		if calories.Valid {
			n := int(calories.Int64)
			r.Calories = &n
		}
		if ingredients != "" {
			if err := json.Unmarshal([]byte(ingredients), &r.Ingredients); err != nil {
				return nil, fmt.Errorf("unmarshal ingredients: %w", err)
			}
		}
		if steps != "" {
			if err := json.Unmarshal([]byte(steps), &r.Steps); err != nil {
				return nil, fmt.Errorf("unmarshal steps: %w", err)
			}
		}
		r.Deleted = deleted == 1
		records = append(records, &r)
	}
	return records, rows.Err()
}

func (p *SQLitePersister) loadChanges() ([]models.ChangeEntry, error) {
	rows, err := p.db.Query(
		`SELECT id, title, action, old_hash, new_hash, user, timestamp
		 FROM changes ORDER BY timestamp, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []models.ChangeEntry
	for rows.Next() {
		var c models.ChangeEntry
		var action string
		if err := rows.Scan(&c.ID, &c.Title, &action, &c.OldHash, &c.NewHash, &c.User, &c.Timestamp); err != nil {
			return nil, err
		}
		c.Action = models.Action(action)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// Close closes the database connection.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
