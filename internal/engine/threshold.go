package engine

import (
	"github.com/jmllr/alertchain/internal/models"
)

// advanceThreshold applies one evaluation outcome to the unit's threshold
// state and reports whether the gate passes. Streak and count gates advance
// and pass only on a new tick; re-evaluating the same candle neither inflates
// state nor passes again. No configured threshold means the gate is just
// "final is TRUE", with no tick requirement.
//
// UNKNOWN is not positive evidence: in streak mode it leaves the streak
// untouched, in count mode it occupies a window slot without counting.
func advanceThreshold(cfg models.ThresholdConfig, st *models.StatusState, final models.TriState, newTick bool) bool {
	switch cfg.Mode {
	case models.ThresholdStreak:
		if !newTick {
			return false
		}
		switch final {
		case models.StateTrue:
			st.Streak++
		case models.StateFalse:
			st.Streak = 0
		}
		return st.Streak >= cfg.MinCount

	case models.ThresholdCount:
		if !newTick {
			return false
		}
		st.CountWindow = append(st.CountWindow, final == models.StateTrue)
		if over := len(st.CountWindow) - cfg.WindowTicks; over > 0 {
			st.CountWindow = st.CountWindow[over:]
		}
		trues := 0
		for _, b := range st.CountWindow {
			if b {
				trues++
			}
		}
		return trues >= cfg.MinCount

	default:
		return final == models.StateTrue
	}
}

// thresholdSnapshot captures the gate state for history records.
func thresholdSnapshot(cfg models.ThresholdConfig, st *models.StatusState, passed bool) map[string]any {
	snap := map[string]any{
		"mode":   cfg.Mode,
		"passed": passed,
	}
	switch cfg.Mode {
	case models.ThresholdStreak:
		snap["streak"] = st.Streak
		snap["min_count"] = cfg.MinCount
	case models.ThresholdCount:
		snap["window"] = append([]bool(nil), st.CountWindow...)
		snap["min_count"] = cfg.MinCount
		snap["window_ticks"] = cfg.WindowTicks
	}
	return snap
}
