package state

import (
	"sync"

	"github.com/jmllr/alertchain/internal/models"
)

// MemoryStore keeps all state in process memory. Used in tests and for
// ephemeral runs where persistence across restarts is not wanted.
type MemoryStore struct {
	mu         sync.Mutex
	states     map[models.StatusKey]*models.StatusState
	history    []models.HistoryEvent
	historyCap int
}

func NewMemoryStore(historyCap int) *MemoryStore {
	if historyCap < 1 {
		historyCap = defaultHistoryCap
	}
	return &MemoryStore{
		states:     make(map[models.StatusKey]*models.StatusState),
		historyCap: historyCap,
	}
}

func (m *MemoryStore) Load(key models.StatusKey) (*models.StatusState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[key]; ok {
		cp := *st
		cp.CountWindow = append([]bool(nil), st.CountWindow...)
		return &cp, true, nil
	}
	// Materialize the default so the key is visible to Keys before any commit.
	m.states[key] = models.NewStatusState()
	return models.NewStatusState(), false, nil
}

func (m *MemoryStore) Keys() ([]models.StatusKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]models.StatusKey, 0, len(m.states))
	for k := range m.states {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *MemoryStore) Commit(states map[models.StatusKey]*models.StatusState, events []models.HistoryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, st := range states {
		cp := *st
		cp.CountWindow = append([]bool(nil), st.CountWindow...)
		m.states[k] = &cp
	}
	m.history = append(m.history, events...)
	if over := len(m.history) - m.historyCap; over > 0 {
		m.history = append([]models.HistoryEvent(nil), m.history[over:]...)
	}
	return nil
}

func (m *MemoryStore) LoadHistory(profileID string, limit int) ([]models.HistoryEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return filterHistory(m.history, profileID, limit), nil
}

func (m *MemoryStore) Close() error { return nil }
