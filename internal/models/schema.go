// Package models defines the profile schema read from the external CRUD layer
// and the runtime types the evaluator produces from it.
package models

import "encoding/json"

// Comparison operators allowed in a condition row.
const (
	OpEq  = "eq"
	OpNe  = "ne"
	OpGt  = "gt"
	OpGte = "gte"
	OpLt  = "lt"
	OpLte = "lte"
)

// ValidOps maps every accepted operator to true.
var ValidOps = map[string]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
}

// Row chaining logic relative to the previous row.
const (
	LogicAnd = "and"
	LogicOr  = "or"
)

// Threshold gating modes.
const (
	ThresholdNone   = "none"
	ThresholdStreak = "streak"
	ThresholdCount  = "count"
)

// Alarm push modes.
const (
	AlarmAlwaysOn        = "always_on"
	AlarmAutoOff         = "auto_off"
	AlarmPreNotification = "pre_notification"
)

// IndicatorRef is one operand side of a condition row: which indicator value
// to fetch and under which context overrides.
type IndicatorRef struct {
	Name   string         `json:"name"`
	Output string         `json:"output,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	Count  int            `json:"count,omitempty"`

	// Optional row-level context overrides.
	Symbol   string `json:"symbol,omitempty"`
	Interval string `json:"interval,omitempty"`
	Exchange string `json:"exchange,omitempty"`
}

// Condition is one rule row: left op right, chained to the previous row with
// Logic (ignored for the first row).
type Condition struct {
	RID     string       `json:"rid"`
	Logic   string       `json:"logic,omitempty"`
	Left    IndicatorRef `json:"left"`
	Op      string       `json:"op"`
	Right   IndicatorRef `json:"right"`
	Enabled bool         `json:"enabled"`
}

// ThresholdConfig gates a group's TRUE result behind a streak or a sliding
// window count, advanced only on new ticks.
type ThresholdConfig struct {
	Mode        string `json:"mode"`
	MinCount    int    `json:"min_count,omitempty"`
	WindowTicks int    `json:"window_ticks,omitempty"`
}

// AlarmConfig controls push behavior for a group.
type AlarmConfig struct {
	Mode        string `json:"mode"`
	CooldownSec int    `json:"cooldown_sec,omitempty"`
	EdgeOnly    bool   `json:"edge_only"`
}

// Group is an ordered chain of condition rows evaluated per expanded symbol.
type Group struct {
	GID         string           `json:"gid"`
	Enabled     bool             `json:"enabled"`
	SymbolGroup string           `json:"symbol_group,omitempty"`
	Symbols     []string         `json:"symbols,omitempty"`
	Interval    string           `json:"interval,omitempty"`
	Exchange    string           `json:"exchange,omitempty"`
	Threshold   *ThresholdConfig `json:"threshold,omitempty"`
	Alarm       *AlarmConfig     `json:"alarm,omitempty"`
	Conditions  []Condition      `json:"conditions"`

	// Open bag for forward-compatible fields the engine does not interpret.
	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// Profile is the top-level alerting rule document. Read-only to the engine.
type Profile struct {
	ID              string  `json:"profile_id"`
	Name            string  `json:"name"`
	Enabled         bool    `json:"enabled"`
	DefaultInterval string  `json:"default_interval,omitempty"`
	DefaultExchange string  `json:"default_exchange,omitempty"`
	Groups          []Group `json:"groups"`

	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// EngineDefaults supply the last fallback tier for context resolution.
type EngineDefaults struct {
	Interval      string
	Exchange      string
	ClockInterval string
}

// Absent enabled flags default to true, matching how the profile store treats
// documents that predate the flag.

func (p *Profile) UnmarshalJSON(data []byte) error {
	type alias Profile
	a := alias{Enabled: true}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = Profile(a)
	return nil
}

func (g *Group) UnmarshalJSON(data []byte) error {
	type alias Group
	a := alias{Enabled: true}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*g = Group(a)
	return nil
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	type alias Condition
	a := alias{Enabled: true}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Left.Count < 1 {
		a.Left.Count = 1
	}
	if a.Right.Count < 1 {
		a.Right.Count = 1
	}
	*c = Condition(a)
	return nil
}

// AlarmOrDefault returns the group's alarm config, falling back to an
// always-on edge-gated alarm when none is configured.
func (g *Group) AlarmOrDefault() AlarmConfig {
	if g.Alarm != nil {
		return *g.Alarm
	}
	return AlarmConfig{Mode: AlarmAlwaysOn, EdgeOnly: true}
}

// ThresholdOrDefault returns the group's threshold config, falling back to no
// gating when none is configured.
func (g *Group) ThresholdOrDefault() ThresholdConfig {
	if g.Threshold != nil {
		return *g.Threshold
	}
	return ThresholdConfig{Mode: ThresholdNone}
}
