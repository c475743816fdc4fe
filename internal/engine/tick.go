package engine

import (
	"github.com/jmllr/alertchain/internal/models"
)

// rowFetch bundles one resolved condition row with its fetched operands.
type rowFetch struct {
	cond  *models.Condition
	pair  models.ResolvedPair
	left  models.FetchResult
	right models.FetchResult
}

// pickTick selects the tick timestamp of an evaluation unit. Preference goes
// to the newest timestamp among operands whose data interval matches the
// clock interval, since those series advance in lockstep with the evaluation
// cadence. Without such an operand, the last left-side timestamp in row order
// serves as the marker.
func pickTick(rows []rowFetch) string {
	var best string
	for _, r := range rows {
		if r.pair.Left.Interval == r.pair.Left.ClockInterval && r.left.OK && r.left.TS > best {
			best = r.left.TS
		}
		if r.pair.Right.Interval == r.pair.Right.ClockInterval && r.right.OK && r.right.TS > best {
			best = r.right.TS
		}
	}
	if best != "" {
		return best
	}

	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].left.OK && rows[i].left.TS != "" {
			return rows[i].left.TS
		}
	}
	return ""
}

// isNewTick reports whether ts marks a new tick relative to the stored state.
// An empty ts means the tick source is unavailable, which never counts as a
// new tick.
func isNewTick(st *models.StatusState, ts string) bool {
	return ts != "" && ts != st.LastTickTS
}
