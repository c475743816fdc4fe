package engine

import (
	"github.com/jmllr/alertchain/internal/models"
)

// ChainResult is the folded outcome of a group's row chain for one symbol.
type ChainResult struct {
	Final       models.TriState
	PartialTrue bool
	Rows        []RowResult

	// Steps records the accumulator after each row, for debug traces.
	Steps []models.TriState
}

// foldChain combines row results left to right under three-valued logic.
// The first row seeds the accumulator; each later row combines with its own
// logic connector. PartialTrue is set when any single row is TRUE regardless
// of the folded outcome.
func foldChain(rows []RowResult) ChainResult {
	res := ChainResult{Final: models.StateUnknown, Rows: rows}
	if len(rows) == 0 {
		return res
	}

	acc := rows[0].State
	res.Steps = append(res.Steps, acc)
	for _, row := range rows[1:] {
		if row.Logic == models.LogicOr {
			acc = kleeneOr(acc, row.State)
		} else {
			acc = kleeneAnd(acc, row.State)
		}
		res.Steps = append(res.Steps, acc)
	}
	res.Final = acc

	for _, row := range rows {
		if row.State == models.StateTrue {
			res.PartialTrue = true
			break
		}
	}
	return res
}

// kleeneAnd: FALSE dominates, then UNKNOWN, then TRUE.
func kleeneAnd(a, b models.TriState) models.TriState {
	if a == models.StateFalse || b == models.StateFalse {
		return models.StateFalse
	}
	if a == models.StateUnknown || b == models.StateUnknown {
		return models.StateUnknown
	}
	return models.StateTrue
}

// kleeneOr: TRUE dominates, then UNKNOWN, then FALSE.
func kleeneOr(a, b models.TriState) models.TriState {
	if a == models.StateTrue || b == models.StateTrue {
		return models.StateTrue
	}
	if a == models.StateUnknown || b == models.StateUnknown {
		return models.StateUnknown
	}
	return models.StateFalse
}
