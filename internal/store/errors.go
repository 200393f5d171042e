package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a title is not tracked by the store.
var ErrNotFound = errors.New("recipe not found")

// ErrNoSnapshot is returned by a Persister when no usable snapshot pair
// exists: neither artifact present, or only one present or parseable, in
// which case both are ignored and the store starts fresh.
var ErrNoSnapshot = errors.New("no persisted snapshot")

// PersistenceError reports a durable write or read failure. The in-memory
// state remains authoritative for the session; a later successful persist
// recovers durability.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IndexInconsistencyError reports a mismatch between the record table and
// the vector index. The mutation that detected it is aborted without a
// partial commit; the caller can trigger a rebuild.
type IndexInconsistencyError struct {
	TableSize int
	IndexSize int
}

func (e *IndexInconsistencyError) Error() string {
	return fmt.Sprintf("record table and vector index out of sync: %d records, %d index slots", e.TableSize, e.IndexSize)
}
