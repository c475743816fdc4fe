// Package state persists evaluation status and history across runs.
package state

import (
	"github.com/jmllr/alertchain/internal/models"
)

// Store is the persistence contract of the evaluator. A run loads existing
// states at its start, mutates copies in memory, and writes everything back
// with a single Commit, so a crash mid-run never leaves partial state behind.
type Store interface {
	// Load returns the persisted state for key. On first access a fresh
	// default is created and persisted, so the key is immediately visible
	// to Keys. The second result reports whether the key existed before
	// the call.
	Load(key models.StatusKey) (*models.StatusState, bool, error)

	// Keys lists every persisted status key.
	Keys() ([]models.StatusKey, error)

	// Commit atomically writes the given states and appends the given
	// history events. History is capped; the oldest events are dropped
	// first.
	Commit(states map[models.StatusKey]*models.StatusState, events []models.HistoryEvent) error

	// LoadHistory returns up to limit most recent events, newest last,
	// optionally filtered to one profile. An empty profileID matches all;
	// limit <= 0 means no limit beyond the history cap.
	LoadHistory(profileID string, limit int) ([]models.HistoryEvent, error)

	Close() error
}
