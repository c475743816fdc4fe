// Package resolve turns rule rows into concrete fetch contexts and expands
// group symbol sets.
package resolve

import (
	"fmt"
	"strings"

	"github.com/jmllr/alertchain/internal/models"
)

// firstNonEmpty returns the first value with non-whitespace content.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// Row resolves left and right contexts for one condition row of one
// evaluation unit. Fallback order per field: row override, group setting,
// profile default, engine default. The clock interval is resolved once from
// group/profile/engine level only: it is the evaluation cadence, not data
// granularity, so a row override never touches it.
func Row(profile *models.Profile, group *models.Group, cond *models.Condition, defaults models.EngineDefaults, baseSymbol string) (models.ResolvedPair, error) {
	clock := firstNonEmpty(group.Interval, profile.DefaultInterval, defaults.ClockInterval, defaults.Interval)

	left := models.ResolvedContext{
		Symbol:        firstNonEmpty(cond.Left.Symbol, baseSymbol),
		Interval:      firstNonEmpty(cond.Left.Interval, group.Interval, profile.DefaultInterval, defaults.Interval),
		Exchange:      firstNonEmpty(cond.Left.Exchange, group.Exchange, profile.DefaultExchange, defaults.Exchange),
		ClockInterval: clock,
	}
	right := models.ResolvedContext{
		Symbol:        firstNonEmpty(cond.Right.Symbol, baseSymbol),
		Interval:      firstNonEmpty(cond.Right.Interval, group.Interval, profile.DefaultInterval, defaults.Interval),
		Exchange:      firstNonEmpty(cond.Right.Exchange, group.Exchange, profile.DefaultExchange, defaults.Exchange),
		ClockInterval: clock,
	}

	for _, check := range []struct {
		name  string
		value string
	}{
		{"left symbol", left.Symbol},
		{"right symbol", right.Symbol},
		{"left interval", left.Interval},
		{"right interval", right.Interval},
		{"left exchange", left.Exchange},
		{"right exchange", right.Exchange},
		{"clock interval", clock},
	} {
		if check.value == "" {
			return models.ResolvedPair{}, fmt.Errorf(
				"cannot resolve %s (profile=%s gid=%s rid=%s symbol=%s)",
				check.name, profile.ID, group.GID, cond.RID, baseSymbol)
		}
	}

	return models.ResolvedPair{Left: left, Right: right}, nil
}
