package models

import (
	"encoding/json"
	"math"
	"testing"
)

func TestSafeFloat(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want *float64
	}{
		{"float", 1.5, ptr(1.5)},
		{"int", 42, ptr(42)},
		{"numeric string", " 3.25 ", ptr(3.25)},
		{"nan", math.NaN(), nil},
		{"pos inf", math.Inf(1), nil},
		{"neg inf", math.Inf(-1), nil},
		{"bool", true, nil},
		{"nil", nil, nil},
		{"word", "hello", nil},
		{"empty string", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SafeFloat(tt.in)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("SafeFloat(%v) = %v, want %v", tt.in, got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("SafeFloat(%v) = %v, want %v", tt.in, *got, *tt.want)
			}
		})
	}
}

func ptr(f float64) *float64 { return &f }

func TestStatusKeyRoundTrip(t *testing.T) {
	key := StatusKey{
		ProfileID:     "p1",
		GID:           "g1",
		Symbol:        "BTCUSDT",
		Exchange:      "binance",
		ClockInterval: "1h",
	}
	encoded := key.String()
	if encoded != "p1::g1::BTCUSDT::binance::1h" {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	parsed, err := ParseStatusKey(encoded)
	if err != nil {
		t.Fatalf("ParseStatusKey: %v", err)
	}
	if parsed != key {
		t.Errorf("round trip mismatch: %+v != %+v", parsed, key)
	}
}

func TestParseStatusKey_Malformed(t *testing.T) {
	if _, err := ParseStatusKey("p1::g1::BTCUSDT"); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestProfileUnmarshalDefaults(t *testing.T) {
	raw := `{
		"profile_id": "p1",
		"name": "test",
		"groups": [{
			"gid": "g1",
			"symbols": ["BTCUSDT"],
			"conditions": [{
				"rid": "r1",
				"left": {"name": "rsi"},
				"op": "lt",
				"right": {"name": "const", "params": {"value": 30}}
			}]
		}],
		"unexpected_field": {"nested": true}
	}`
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !p.Enabled {
		t.Error("profile should default to enabled")
	}
	if !p.Groups[0].Enabled {
		t.Error("group should default to enabled")
	}
	cond := p.Groups[0].Conditions[0]
	if !cond.Enabled {
		t.Error("condition should default to enabled")
	}
	if cond.Left.Count != 1 || cond.Right.Count != 1 {
		t.Errorf("count should default to 1, got left=%d right=%d", cond.Left.Count, cond.Right.Count)
	}
}

func TestGroupDefaults(t *testing.T) {
	g := Group{GID: "g1"}

	alarm := g.AlarmOrDefault()
	if alarm.Mode != AlarmAlwaysOn || !alarm.EdgeOnly {
		t.Errorf("unexpected alarm default %+v", alarm)
	}

	threshold := g.ThresholdOrDefault()
	if threshold.Mode != ThresholdNone {
		t.Errorf("unexpected threshold default %+v", threshold)
	}
}

func validProfile() Profile {
	return Profile{
		ID:      "p1",
		Name:    "test",
		Enabled: true,
		Groups: []Group{{
			GID:     "g1",
			Enabled: true,
			Symbols: []string{"BTCUSDT"},
			Conditions: []Condition{{
				RID:     "r1",
				Left:    IndicatorRef{Name: "rsi"},
				Op:      OpLt,
				Right:   IndicatorRef{Name: "const"},
				Enabled: true,
			}},
		}},
	}
}

func TestValidateProfiles_OK(t *testing.T) {
	res := ValidateProfiles([]Profile{validProfile()})
	if !res.OK {
		t.Fatalf("expected valid, got issues: %v", res.Issues)
	}
	if res.Profiles != 1 || res.Rows != 1 {
		t.Errorf("unexpected counts: %+v", res)
	}
}

func TestValidateProfiles_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Profile)
		field  string
	}{
		{"missing gid", func(p *Profile) { p.Groups[0].GID = "" }, "gid"},
		{"missing rid", func(p *Profile) { p.Groups[0].Conditions[0].RID = "" }, "rid"},
		{"no symbols", func(p *Profile) { p.Groups[0].Symbols = nil }, "symbols"},
		{"bad op", func(p *Profile) { p.Groups[0].Conditions[0].Op = "between" }, "op"},
		{"missing left name", func(p *Profile) { p.Groups[0].Conditions[0].Left.Name = "" }, "left.name"},
		{"streak without min_count", func(p *Profile) {
			p.Groups[0].Threshold = &ThresholdConfig{Mode: ThresholdStreak}
		}, "threshold.min_count"},
		{"count without window", func(p *Profile) {
			p.Groups[0].Threshold = &ThresholdConfig{Mode: ThresholdCount, MinCount: 2}
		}, "threshold.window_ticks"},
		{"min_count over window", func(p *Profile) {
			p.Groups[0].Threshold = &ThresholdConfig{Mode: ThresholdCount, MinCount: 5, WindowTicks: 3}
		}, "threshold.min_count"},
		{"bad alarm mode", func(p *Profile) {
			p.Groups[0].Alarm = &AlarmConfig{Mode: "sometimes"}
		}, "alarm.mode"},
		{"negative cooldown", func(p *Profile) {
			p.Groups[0].Alarm = &AlarmConfig{Mode: AlarmAlwaysOn, CooldownSec: -1}
		}, "alarm.cooldown_sec"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(&p)
			res := ValidateProfiles([]Profile{p})
			if res.OK {
				t.Fatal("expected validation failure")
			}
			found := false
			for _, issue := range res.Errors() {
				if issue.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error on field %q, issues: %v", tt.field, res.Issues)
			}
		})
	}
}

func TestValidateProfiles_SkipsDisabled(t *testing.T) {
	p := validProfile()
	p.Groups[0].Conditions[0].Op = "bogus"
	p.Groups[0].Enabled = false
	res := ValidateProfiles([]Profile{p})
	if !res.OK {
		t.Errorf("disabled group should not be validated, issues: %v", res.Issues)
	}
}

func TestValidateProfiles_SymbolGroupOnly(t *testing.T) {
	p := validProfile()
	p.Groups[0].Symbols = nil
	p.Groups[0].SymbolGroup = "majors"
	res := ValidateProfiles([]Profile{p})
	if !res.OK {
		t.Errorf("symbol_group alone should satisfy the symbol requirement, issues: %v", res.Issues)
	}
}
