package state

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jmllr/alertchain/internal/models"
)

func testKey(symbol string) models.StatusKey {
	return models.StatusKey{
		ProfileID:     "p1",
		GID:           "g1",
		Symbol:        symbol,
		Exchange:      "binance",
		ClockInterval: "1h",
	}
}

func testState() *models.StatusState {
	pt := true
	return &models.StatusState{
		Active:          true,
		Streak:          3,
		CountWindow:     []bool{true, false, true},
		LastTrueTS:      "2024-01-02T03:00:00Z",
		LastPushUnix:    1704164645.5,
		LastTickTS:      "2024-01-02T03:00:00Z",
		LastFinalState:  models.StateTrue,
		LastPartialTrue: &pt,
	}
}

func testEvent(i int) models.HistoryEvent {
	return models.HistoryEvent{
		TS:         fmt.Sprintf("2024-01-02T03:%02d:00Z", i%60),
		ProfileID:  "p1",
		GID:        "g1",
		Symbol:     "BTCUSDT",
		Exchange:   "binance",
		Event:      models.EventEval,
		FinalState: models.StateTrue,
		Debug:      map[string]any{"i": float64(i)},
	}
}

// openStores builds one store per backend against a shared temp dir.
func openStores(t *testing.T, historyCap int) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	jsonStore, err := NewJSONStore(
		filepath.Join(dir, "status.json"),
		filepath.Join(dir, "history.json"),
		historyCap,
	)
	require.NoError(t, err)

	sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "state.db"), historyCap)
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemoryStore(historyCap),
		"json":   jsonStore,
		"sqlite": sqliteStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStore_DefaultOnMiss(t *testing.T) {
	for name, s := range openStores(t, 100) {
		t.Run(name, func(t *testing.T) {
			st, existed, err := s.Load(testKey("BTCUSDT"))
			require.NoError(t, err)
			require.False(t, existed)
			require.True(t, st.Active, "fresh state starts active")
			require.Zero(t, st.Streak)
			require.Empty(t, st.CountWindow)
			require.Empty(t, st.LastFinalState)
		})
	}
}

func TestStore_LoadMaterializesDefault(t *testing.T) {
	for name, s := range openStores(t, 100) {
		t.Run(name, func(t *testing.T) {
			key := testKey("SOLUSDT")
			_, existed, err := s.Load(key)
			require.NoError(t, err)
			require.False(t, existed)

			// The miss itself persists the default, so rearm can find
			// keys that were observed but never committed.
			keys, err := s.Keys()
			require.NoError(t, err)
			require.Contains(t, keys, key)

			_, existed, err = s.Load(key)
			require.NoError(t, err)
			require.True(t, existed)
		})
	}
}

func TestStore_CommitRoundTrip(t *testing.T) {
	for name, s := range openStores(t, 100) {
		t.Run(name, func(t *testing.T) {
			key := testKey("BTCUSDT")
			want := testState()
			require.NoError(t, s.Commit(
				map[models.StatusKey]*models.StatusState{key: want},
				[]models.HistoryEvent{testEvent(1)},
			))

			got, existed, err := s.Load(key)
			require.NoError(t, err)
			require.True(t, existed)
			require.Equal(t, want.Streak, got.Streak)
			require.Equal(t, want.CountWindow, got.CountWindow)
			require.Equal(t, want.LastTrueTS, got.LastTrueTS)
			require.Equal(t, want.LastPushUnix, got.LastPushUnix)
			require.Equal(t, want.LastFinalState, got.LastFinalState)
			require.NotNil(t, got.LastPartialTrue)
			require.True(t, *got.LastPartialTrue)

			events, err := s.LoadHistory("", 10)
			require.NoError(t, err)
			require.Len(t, events, 1)
			require.Equal(t, models.EventEval, events[0].Event)
		})
	}
}

func TestStore_Keys(t *testing.T) {
	for name, s := range openStores(t, 100) {
		t.Run(name, func(t *testing.T) {
			states := map[models.StatusKey]*models.StatusState{
				testKey("BTCUSDT"): models.NewStatusState(),
				testKey("ETHUSDT"): models.NewStatusState(),
			}
			require.NoError(t, s.Commit(states, nil))

			keys, err := s.Keys()
			require.NoError(t, err)
			require.Len(t, keys, 2)
			require.Contains(t, keys, testKey("BTCUSDT"))
			require.Contains(t, keys, testKey("ETHUSDT"))
		})
	}
}

func TestStore_HistoryCapFIFO(t *testing.T) {
	for name, s := range openStores(t, 5) {
		t.Run(name, func(t *testing.T) {
			var events []models.HistoryEvent
			for i := 0; i < 8; i++ {
				events = append(events, testEvent(i))
			}
			require.NoError(t, s.Commit(nil, events))

			got, err := s.LoadHistory("", 0)
			require.NoError(t, err)
			require.Len(t, got, 5)
			// Oldest dropped first: the survivors are events 3..7.
			require.Equal(t, float64(3), got[0].Debug["i"])
			require.Equal(t, float64(7), got[4].Debug["i"])
		})
	}
}

func TestStore_LoadIsolation(t *testing.T) {
	for name, s := range openStores(t, 100) {
		t.Run(name, func(t *testing.T) {
			key := testKey("BTCUSDT")
			require.NoError(t, s.Commit(
				map[models.StatusKey]*models.StatusState{key: testState()}, nil,
			))

			first, _, err := s.Load(key)
			require.NoError(t, err)
			first.Streak = 99
			first.CountWindow[0] = false

			second, _, err := s.Load(key)
			require.NoError(t, err)
			require.Equal(t, 3, second.Streak, "mutating a loaded state must not leak back")
			require.True(t, second.CountWindow[0])
		})
	}
}

func TestJSONStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "status.json")
	historyPath := filepath.Join(dir, "history.json")

	s, err := NewJSONStore(statusPath, historyPath, 100)
	require.NoError(t, err)
	key := testKey("BTCUSDT")
	require.NoError(t, s.Commit(
		map[models.StatusKey]*models.StatusState{key: testState()},
		[]models.HistoryEvent{testEvent(1)},
	))
	require.NoError(t, s.Close())

	// No stray temp files after a committed write.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	reopened, err := NewJSONStore(statusPath, historyPath, 100)
	require.NoError(t, err)
	defer reopened.Close()

	st, existed, err := reopened.Load(key)
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, 1704164645.5, st.LastPushUnix, "cooldown anchor must survive restarts")

	events, err := reopened.LoadHistory("", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")

	s, err := NewSQLiteStore(dbPath, 100)
	require.NoError(t, err)
	key := testKey("BTCUSDT")
	require.NoError(t, s.Commit(
		map[models.StatusKey]*models.StatusState{key: testState()},
		[]models.HistoryEvent{testEvent(1)},
	))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dbPath, 100)
	require.NoError(t, err)
	defer reopened.Close()

	st, existed, err := reopened.Load(key)
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, models.StateTrue, st.LastFinalState)
}
