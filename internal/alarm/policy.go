// Package alarm decides when evaluation outcomes become notifications and
// delivers them.
package alarm

import (
	"github.com/jmllr/alertchain/internal/logger"
	"github.com/jmllr/alertchain/internal/models"
)

// Decision is the outcome of applying the alarm policy to one evaluation.
type Decision struct {
	Push          bool
	PartialChange bool
	Deactivated   bool

	// Suppressed names why an otherwise passing outcome produced no push.
	Suppressed string
}

// Apply runs the alarm policy for one evaluation unit and mutates its state
// accordingly. A push requires the threshold gate to have passed, the edge
// condition to hold, and the cooldown to have elapsed; the three checks are
// ordered so Suppressed names the first blocker. The edge condition admits
// only transitions into TRUE: a count window can keep the gate passing after
// the chain has dropped to FALSE or UNKNOWN, and edge_only must stay quiet
// through that.
//
// In pre_notification mode a change of the partial-true flag is reported even
// when the folded chain outcome did not change. auto_off and pre_notification
// both deactivate the unit after a push; it stays down until rearmed.
func Apply(cfg models.AlarmConfig, st *models.StatusState, final models.TriState, partialTrue bool, thresholdPassed bool, nowUnix float64) Decision {
	var d Decision

	prevFinal := st.LastFinalState
	prevPartial := st.LastPartialTrue

	if cfg.Mode == models.AlarmPreNotification {
		if prevPartial == nil || *prevPartial != partialTrue {
			d.PartialChange = true
		}
	}

	if thresholdPassed && final != models.StateTrue {
		logger.Warn("threshold gate passed while chain state is %s", final)
	}

	switch {
	case !thresholdPassed:
		d.Suppressed = "threshold"
	case cfg.EdgeOnly && (final != models.StateTrue || prevFinal == models.StateTrue):
		d.Suppressed = "edge"
	case cfg.CooldownSec > 0 && st.LastPushUnix > 0 && nowUnix-st.LastPushUnix < float64(cfg.CooldownSec):
		d.Suppressed = "cooldown"
	default:
		d.Push = true
	}

	if d.Push {
		st.LastPushUnix = nowUnix
		if cfg.Mode == models.AlarmAutoOff || cfg.Mode == models.AlarmPreNotification {
			st.Active = false
			d.Deactivated = true
		}
	}

	st.LastFinalState = final
	pt := partialTrue
	st.LastPartialTrue = &pt

	return d
}
