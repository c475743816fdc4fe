package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TriState is the three-valued result of a condition or chain evaluation.
// Unknown means "cannot determine", never "false".
type TriState string

const (
	StateTrue    TriState = "true"
	StateFalse   TriState = "false"
	StateUnknown TriState = "unknown"
)

// Operand sides of a condition row.
const (
	SideLeft  = "left"
	SideRight = "right"
)

// ResolvedContext is the concrete fetch context for one operand side after
// applying the row > group > profile > engine-default fallback chain.
// ClockInterval is the group's evaluation cadence, never a row override.
type ResolvedContext struct {
	Symbol        string
	Interval      string
	Exchange      string
	ClockInterval string
}

// ResolvedPair holds the left and right contexts of one row.
type ResolvedPair struct {
	Left  ResolvedContext
	Right ResolvedContext
}

// StatusKey identifies one unit of runtime state:
// (profile, group, expanded symbol, exchange, clock interval).
type StatusKey struct {
	ProfileID     string `json:"profile_id"`
	GID           string `json:"gid"`
	Symbol        string `json:"symbol"`
	Exchange      string `json:"exchange"`
	ClockInterval string `json:"clock_interval"`
}

// String returns the stable encoding used by persisted status documents.
func (k StatusKey) String() string {
	return k.ProfileID + "::" + k.GID + "::" + k.Symbol + "::" + k.Exchange + "::" + k.ClockInterval
}

// ParseStatusKey reverses StatusKey.String.
func ParseStatusKey(s string) (StatusKey, error) {
	parts := strings.Split(s, "::")
	if len(parts) != 5 {
		return StatusKey{}, fmt.Errorf("malformed status key %q", s)
	}
	return StatusKey{
		ProfileID:     parts[0],
		GID:           parts[1],
		Symbol:        parts[2],
		Exchange:      parts[3],
		ClockInterval: parts[4],
	}, nil
}

// StatusState is the mutable runtime state of one StatusKey, persisted across
// runs. LastPushUnix is a numeric epoch so cooldown survives restarts.
type StatusState struct {
	Active      bool   `json:"active"`
	Streak      int    `json:"streak"`
	CountWindow []bool `json:"count_window"`

	LastTrueTS   string  `json:"last_true_ts,omitempty"`
	LastPushUnix float64 `json:"last_push_unix,omitempty"`
	LastTickTS   string  `json:"last_tick_ts,omitempty"`

	// Empty LastFinalState means the key has never been evaluated.
	LastFinalState  TriState `json:"last_final_state,omitempty"`
	LastPartialTrue *bool    `json:"last_partial_true,omitempty"`
}

// NewStatusState returns the default state created on first observation.
func NewStatusState() *StatusState {
	return &StatusState{Active: true, CountWindow: []bool{}}
}

// History event kinds.
const (
	EventEval          = "eval"
	EventPush          = "push"
	EventPartialChange = "partial_change"
	EventDeactivated   = "deactivated"
)

// HistoryEvent is one immutable audit record appended by a run.
type HistoryEvent struct {
	TS            string `json:"ts"`
	ProfileID     string `json:"profile_id"`
	GID           string `json:"gid"`
	Symbol        string `json:"symbol"`
	Exchange      string `json:"exchange"`
	ClockInterval string `json:"clock_interval,omitempty"`

	Event       string   `json:"event"`
	PartialTrue bool     `json:"partial_true"`
	FinalState  TriState `json:"final_state"`

	LeftValue  *float64 `json:"left_value,omitempty"`
	RightValue *float64 `json:"right_value,omitempty"`
	Op         string   `json:"op,omitempty"`

	ThresholdSnapshot map[string]any `json:"threshold_snapshot,omitempty"`
	Debug             map[string]any `json:"debug,omitempty"`
}

// FetchResult is the normalized outcome of one indicator fetch. A result is
// informative only when OK is true and Value holds a finite number.
type FetchResult struct {
	OK     bool             `json:"ok"`
	Value  *float64         `json:"value,omitempty"`
	TS     string           `json:"ts,omitempty"`
	Series []map[string]any `json:"series,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// SafeFloat converts x to a finite float64 if possible. NaN and infinities
// count as absent, so "no data" can never masquerade as a comparable value.
func SafeFloat(x any) *float64 {
	var f float64
	switch v := x.(type) {
	case nil:
		return nil
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint64:
		f = float64(v)
	case bool:
		return nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
