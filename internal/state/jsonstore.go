package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmllr/alertchain/internal/models"
)

const defaultHistoryCap = 5000

// JSONStore persists status and history as two JSON documents on disk.
// Writes go through a temp file, fsync, and rename, so readers and crash
// recovery always see a complete document.
type JSONStore struct {
	statusPath  string
	historyPath string
	historyCap  int

	mu      sync.Mutex
	states  map[string]*models.StatusState
	history []models.HistoryEvent
}

// NewJSONStore opens the store, loading both documents if present. Missing
// files mean a fresh store, not an error.
func NewJSONStore(statusPath, historyPath string, historyCap int) (*JSONStore, error) {
	if historyCap < 1 {
		historyCap = defaultHistoryCap
	}
	s := &JSONStore{
		statusPath:  statusPath,
		historyPath: historyPath,
		historyCap:  historyCap,
		states:      make(map[string]*models.StatusState),
	}
	if err := loadJSON(statusPath, &s.states); err != nil {
		return nil, fmt.Errorf("load status document: %w", err)
	}
	if err := loadJSON(historyPath, &s.history); err != nil {
		return nil, fmt.Errorf("load history document: %w", err)
	}
	if over := len(s.history) - s.historyCap; over > 0 {
		s.history = s.history[over:]
	}
	return s, nil
}

func (s *JSONStore) Load(key models.StatusKey) (*models.StatusState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[key.String()]; ok {
		cp := *st
		cp.CountWindow = append([]bool(nil), st.CountWindow...)
		return &cp, true, nil
	}
	// Materialize the default so the key is visible to Keys before any commit.
	s.states[key.String()] = models.NewStatusState()
	if err := writeAtomic(s.statusPath, s.states); err != nil {
		return nil, false, fmt.Errorf("write status document: %w", err)
	}
	return models.NewStatusState(), false, nil
}

func (s *JSONStore) Keys() ([]models.StatusKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]models.StatusKey, 0, len(s.states))
	for raw := range s.states {
		k, err := models.ParseStatusKey(raw)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *JSONStore) Commit(states map[models.StatusKey]*models.StatusState, events []models.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, st := range states {
		cp := *st
		cp.CountWindow = append([]bool(nil), st.CountWindow...)
		s.states[k.String()] = &cp
	}
	s.history = append(s.history, events...)
	if over := len(s.history) - s.historyCap; over > 0 {
		s.history = append([]models.HistoryEvent(nil), s.history[over:]...)
	}

	if err := writeAtomic(s.statusPath, s.states); err != nil {
		return fmt.Errorf("write status document: %w", err)
	}
	if err := writeAtomic(s.historyPath, s.history); err != nil {
		return fmt.Errorf("write history document: %w", err)
	}
	return nil
}

func (s *JSONStore) LoadHistory(profileID string, limit int) ([]models.HistoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterHistory(s.history, profileID, limit), nil
}

// filterHistory applies the optional profile filter and the limit, returning
// the most recent matches in stored order.
func filterHistory(history []models.HistoryEvent, profileID string, limit int) []models.HistoryEvent {
	matched := make([]models.HistoryEvent, 0, len(history))
	for _, ev := range history {
		if profileID == "" || ev.ProfileID == profileID {
			matched = append(matched, ev)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

func (s *JSONStore) Close() error { return nil }

func loadJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

// writeAtomic writes v as JSON via temp file, fsync, and rename into place.
func writeAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
