package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmllr/alertchain/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists status and history in a SQLite database. A single
// writer connection with WAL keeps Commit transactional without blocking
// concurrent readers.
type SQLiteStore struct {
	db         *sql.DB
	historyCap int
}

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string, historyCap int) (*SQLiteStore, error) {
	if historyCap < 1 {
		historyCap = defaultHistoryCap
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &SQLiteStore{db: db, historyCap: historyCap}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS status (
			key   TEXT PRIMARY KEY,
			state TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS history (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			ts         TEXT NOT NULL,
			profile_id TEXT NOT NULL,
			event      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_ts ON history(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_history_profile ON history(profile_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Load(key models.StatusKey) (*models.StatusState, bool, error) {
	row := s.db.QueryRow(`SELECT state FROM status WHERE key = ?`, key.String())
	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		// Materialize the default so the key is visible to Keys before
		// any commit.
		st := models.NewStatusState()
		raw, mErr := json.Marshal(st)
		if mErr != nil {
			return nil, false, fmt.Errorf("failed to marshal state: %w", mErr)
		}
		if _, iErr := s.db.Exec(
			`INSERT OR IGNORE INTO status (key, state) VALUES (?, ?)`,
			key.String(), string(raw),
		); iErr != nil {
			return nil, false, fmt.Errorf("failed to materialize state: %w", iErr)
		}
		return st, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load state: %w", err)
	}
	var st models.StatusState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if st.CountWindow == nil {
		st.CountWindow = []bool{}
	}
	return &st, true, nil
}

func (s *SQLiteStore) Keys() ([]models.StatusKey, error) {
	rows, err := s.db.Query(`SELECT key FROM status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer rows.Close()

	var keys []models.StatusKey
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		k, err := models.ParseStatusKey(raw)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Commit(states map[models.StatusKey]*models.StatusState, events []models.HistoryEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for k, st := range states {
		raw, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("failed to marshal state: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO status (key, state) VALUES (?, ?)`,
			k.String(), string(raw),
		); err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}
	}

	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO history (ts, profile_id, event) VALUES (?, ?, ?)`,
			ev.TS, ev.ProfileID, string(raw),
		); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
	}

	if _, err := tx.Exec(`
		DELETE FROM history WHERE id NOT IN (
			SELECT id FROM history ORDER BY id DESC LIMIT ?
		)`, s.historyCap); err != nil {
		return fmt.Errorf("failed to enforce history cap: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadHistory(profileID string, limit int) ([]models.HistoryEvent, error) {
	if limit <= 0 {
		limit = s.historyCap
	}
	rows, err := s.db.Query(`
		SELECT event FROM (
			SELECT id, event FROM history
			WHERE ? = '' OR profile_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, profileID, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var events []models.HistoryEvent
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var ev models.HistoryEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
