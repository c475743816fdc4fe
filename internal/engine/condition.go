package engine

import (
	"github.com/jmllr/alertchain/internal/models"
)

// RowResult is the evaluation outcome of one condition row.
type RowResult struct {
	RID   string
	Logic string
	State models.TriState

	LeftValue  *float64
	RightValue *float64
	Reason     string
}

// evalRow compares the two fetched operands of a condition. Either side
// missing a usable numeric value makes the row UNKNOWN, except eq and ne,
// which fall back to comparing the raw latest-row values so string-valued
// indicator outputs remain comparable.
func evalRow(cond *models.Condition, left, right models.FetchResult) RowResult {
	res := RowResult{RID: cond.RID, Logic: cond.Logic}

	var lv, rv *float64
	if left.OK {
		lv = left.Value
	}
	if right.OK {
		rv = right.Value
	}
	res.LeftValue, res.RightValue = lv, rv

	if lv != nil && rv != nil {
		ok, err := compareNumeric(cond.Op, *lv, *rv)
		if err != nil {
			res.State = models.StateUnknown
			res.Reason = err.Error()
			return res
		}
		res.State = boolState(ok)
		return res
	}

	if ok, comparable := compareRaw(cond.Op, rawLatest(left, cond.Left.Output), rawLatest(right, cond.Right.Output)); comparable {
		res.State = boolState(ok)
		return res
	}

	res.State = models.StateUnknown
	switch {
	case !left.OK:
		res.Reason = "left fetch failed: " + left.Error
	case !right.OK:
		res.Reason = "right fetch failed: " + right.Error
	case lv == nil:
		res.Reason = "left value absent"
	default:
		res.Reason = "right value absent"
	}
	return res
}

func boolState(b bool) models.TriState {
	if b {
		return models.StateTrue
	}
	return models.StateFalse
}

// rawLatest returns the raw (possibly non-numeric) value of the requested
// output field in the latest row of a successful fetch.
func rawLatest(res models.FetchResult, output string) any {
	if !res.OK || len(res.Series) == 0 || output == "" {
		return nil
	}
	last := res.Series[len(res.Series)-1]
	raw, ok := last[output]
	if !ok {
		return nil
	}
	return raw
}
