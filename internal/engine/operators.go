// Package engine evaluates profiles: condition rows, chain logic, tick
// detection, and threshold gating, orchestrated into one run.
package engine

import (
	"fmt"

	"github.com/jmllr/alertchain/internal/models"
)

// compareNumeric applies op to two finite floats.
func compareNumeric(op string, left, right float64) (bool, error) {
	switch op {
	case models.OpEq:
		return left == right, nil
	case models.OpNe:
		return left != right, nil
	case models.OpGt:
		return left > right, nil
	case models.OpGte:
		return left >= right, nil
	case models.OpLt:
		return left < right, nil
	case models.OpLte:
		return left <= right, nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

// compareRaw handles eq and ne on non-numeric values by exact string render.
// Ordering operators have no meaning there.
func compareRaw(op string, left, right any) (bool, bool) {
	if left == nil || right == nil {
		return false, false
	}
	switch op {
	case models.OpEq:
		return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right), true
	case models.OpNe:
		return fmt.Sprintf("%v", left) != fmt.Sprintf("%v", right), true
	default:
		return false, false
	}
}
