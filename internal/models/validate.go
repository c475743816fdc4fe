package models

import "fmt"

// Issue is one validation finding, addressed by profile/group/row path.
type Issue struct {
	Severity  string // "error" | "warn"
	ProfileID string
	GID       string
	RID       string
	Field     string
	Message   string
}

func (i Issue) String() string {
	path := "profile=" + i.ProfileID
	if i.GID != "" {
		path += " group=" + i.GID
	}
	if i.RID != "" {
		path += " row=" + i.RID
	}
	return fmt.Sprintf("%s %s field=%s: %s", i.Severity, path, i.Field, i.Message)
}

// ValidationResult aggregates findings of one upfront validation pass.
// OK means no error-severity issues; warnings never flip it.
type ValidationResult struct {
	OK     bool
	Issues []Issue

	Profiles int
	Groups   int
	Rows     int
}

// Errors returns only error-severity issues.
func (r *ValidationResult) Errors() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == "error" {
			out = append(out, i)
		}
	}
	return out
}

// ErrorsFor returns error-severity issues belonging to one profile.
func (r *ValidationResult) ErrorsFor(profileID string) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == "error" && i.ProfileID == profileID {
			out = append(out, i)
		}
	}
	return out
}

func (r *ValidationResult) add(severity, pid, gid, rid, field, msg string) {
	r.Issues = append(r.Issues, Issue{
		Severity: severity, ProfileID: pid, GID: gid, RID: rid, Field: field, Message: msg,
	})
	if severity == "error" {
		r.OK = false
	}
}

// ValidateProfiles runs the configuration-error pass over all profiles before
// any evaluation. Disabled profiles, groups, and rows are skipped: they should
// not block loading.
func ValidateProfiles(profiles []Profile) *ValidationResult {
	res := &ValidationResult{OK: true, Profiles: len(profiles)}

	for _, p := range profiles {
		if !p.Enabled {
			continue
		}
		pid := p.ID
		if pid == "" {
			pid = "<missing>"
			res.add("error", pid, "", "", "profile_id", "missing profile_id")
		}
		if p.Name == "" {
			res.add("warn", pid, "", "", "name", "missing name")
		}

		for _, g := range p.Groups {
			res.Groups++
			if !g.Enabled {
				continue
			}
			validateGroup(res, pid, &g)
		}
	}
	return res
}

func validateGroup(res *ValidationResult, pid string, g *Group) {
	gid := g.GID
	if gid == "" {
		gid = "<missing>"
		res.add("error", pid, gid, "", "gid", "missing gid")
	}

	if len(g.Symbols) == 0 && g.SymbolGroup == "" {
		res.add("error", pid, gid, "", "symbols", "group has neither explicit symbols nor a symbol_group reference")
	}

	if g.Threshold != nil {
		switch g.Threshold.Mode {
		case ThresholdNone:
		case ThresholdStreak:
			if g.Threshold.MinCount < 1 {
				res.add("error", pid, gid, "", "threshold.min_count", "streak threshold requires min_count >= 1")
			}
		case ThresholdCount:
			if g.Threshold.WindowTicks < 1 {
				res.add("error", pid, gid, "", "threshold.window_ticks", "count threshold requires a window")
			}
			if g.Threshold.MinCount < 1 {
				res.add("error", pid, gid, "", "threshold.min_count", "count threshold requires min_count >= 1")
			}
			if g.Threshold.WindowTicks >= 1 && g.Threshold.MinCount > g.Threshold.WindowTicks {
				res.add("error", pid, gid, "", "threshold.min_count", "min_count exceeds window_ticks, can never pass")
			}
		default:
			res.add("error", pid, gid, "", "threshold.mode",
				fmt.Sprintf("invalid threshold mode %q", g.Threshold.Mode))
		}
	}

	if g.Alarm != nil {
		switch g.Alarm.Mode {
		case AlarmAlwaysOn, AlarmAutoOff, AlarmPreNotification:
		default:
			res.add("error", pid, gid, "", "alarm.mode", fmt.Sprintf("invalid alarm mode %q", g.Alarm.Mode))
		}
		if g.Alarm.CooldownSec < 0 {
			res.add("error", pid, gid, "", "alarm.cooldown_sec", "cooldown must not be negative")
		}
	}

	enabledRows := 0
	for i, c := range g.Conditions {
		if !c.Enabled {
			continue
		}
		enabledRows++
		res.Rows++
		rid := c.RID
		if rid == "" {
			rid = fmt.Sprintf("<row %d>", i)
			res.add("error", pid, gid, rid, "rid", "missing rid")
		}
		if !ValidOps[c.Op] {
			res.add("error", pid, gid, rid, "op", fmt.Sprintf("invalid operator %q", c.Op))
		}
		if i > 0 && c.Logic != "" && c.Logic != LogicAnd && c.Logic != LogicOr {
			res.add("error", pid, gid, rid, "logic", fmt.Sprintf("invalid logic %q", c.Logic))
		}
		if c.Left.Name == "" {
			res.add("error", pid, gid, rid, "left.name", "missing indicator name")
		}
		if c.Right.Name == "" {
			res.add("error", pid, gid, rid, "right.name", "missing indicator name")
		}
	}

	if enabledRows == 0 {
		res.add("warn", pid, gid, "", "conditions", "group has no enabled condition rows")
	}
}
