package models

import (
	"time"

	"github.com/google/uuid"
)

// Action describes the outcome of an addOrUpdate or delete call.
type Action string

const (
	ActionAdd      Action = "add"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionNoChange Action = "no_change"
)

// ChangeEntry is one record in the append-only change audit log.
// OldHash and NewHash are 8-character content-hash prefixes; OldHash is
// empty for adds and NewHash is empty for deletes.
type ChangeEntry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Action    Action    `json:"action"`
	OldHash   string    `json:"old_hash,omitempty"`
	NewHash   string    `json:"new_hash,omitempty"`
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeEntry builds a change-log entry with a fresh ID and the current time.
func NewChangeEntry(title string, action Action, oldHash, newHash, user string) ChangeEntry {
	return ChangeEntry{
		ID:        uuid.New().String(),
		Title:     title,
		Action:    action,
		OldHash:   ShortHash(oldHash),
		NewHash:   ShortHash(newHash),
		User:      user,
		Timestamp: time.Now(),
	}
}

// ChangeLogLimit is how many change entries the persisted snapshot retains.
// The in-memory log is unbounded for the session.
const ChangeLogLimit = 100
