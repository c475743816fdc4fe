package resolve

import (
	"testing"
	"time"

	"github.com/jmllr/alertchain/internal/models"
)

func testInputs() (*models.Profile, *models.Group, *models.Condition) {
	p := &models.Profile{
		ID:              "p1",
		Enabled:         true,
		DefaultInterval: "4h",
		DefaultExchange: "bybit",
	}
	g := &models.Group{GID: "g1", Enabled: true}
	c := &models.Condition{
		RID:   "r1",
		Left:  models.IndicatorRef{Name: "rsi"},
		Op:    models.OpLt,
		Right: models.IndicatorRef{Name: "const"},
	}
	return p, g, c
}

var defaults = models.EngineDefaults{Interval: "1h", Exchange: "binance", ClockInterval: "1h"}

func TestRow_FallbackChain(t *testing.T) {
	p, g, c := testInputs()

	pair, err := Row(p, g, c, defaults, "BTCUSDT")
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	// Profile defaults beat engine defaults.
	if pair.Left.Interval != "4h" || pair.Left.Exchange != "bybit" {
		t.Errorf("expected profile defaults, got %+v", pair.Left)
	}
	if pair.Left.Symbol != "BTCUSDT" {
		t.Errorf("expected base symbol, got %q", pair.Left.Symbol)
	}

	// Group settings beat profile defaults.
	g.Interval = "15m"
	g.Exchange = "okx"
	pair, err = Row(p, g, c, defaults, "BTCUSDT")
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	if pair.Left.Interval != "15m" || pair.Left.Exchange != "okx" {
		t.Errorf("expected group settings, got %+v", pair.Left)
	}

	// Row overrides beat everything, per side.
	c.Right.Symbol = "ETHUSDT"
	c.Right.Interval = "1d"
	c.Right.Exchange = "kraken"
	pair, err = Row(p, g, c, defaults, "BTCUSDT")
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	if pair.Right.Symbol != "ETHUSDT" || pair.Right.Interval != "1d" || pair.Right.Exchange != "kraken" {
		t.Errorf("expected row overrides, got %+v", pair.Right)
	}
	if pair.Left.Symbol != "BTCUSDT" || pair.Left.Interval != "15m" {
		t.Errorf("left side should be untouched by right overrides, got %+v", pair.Left)
	}
}

func TestRow_ClockIntervalIgnoresRowOverride(t *testing.T) {
	p, g, c := testInputs()
	g.Interval = "1h"
	c.Left.Interval = "5m"

	pair, err := Row(p, g, c, defaults, "BTCUSDT")
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	if pair.Left.Interval != "5m" {
		t.Errorf("data interval should take the row override, got %q", pair.Left.Interval)
	}
	if pair.Left.ClockInterval != "1h" || pair.Right.ClockInterval != "1h" {
		t.Errorf("clock interval must come from group level, got %q/%q",
			pair.Left.ClockInterval, pair.Right.ClockInterval)
	}
}

func TestRow_MissingRequired(t *testing.T) {
	p, g, c := testInputs()
	p.DefaultExchange = ""

	if _, err := Row(p, g, c, models.EngineDefaults{Interval: "1h"}, "BTCUSDT"); err == nil {
		t.Error("expected error when exchange cannot be resolved")
	}
	if _, err := Row(p, g, c, defaults, ""); err == nil {
		t.Error("expected error when symbol cannot be resolved")
	}
}

func TestExpander_DedupAndOrder(t *testing.T) {
	src := NewStaticSource(map[string][]string{
		"majors": {"ETHUSDT", "BTCUSDT", "SOLUSDT"},
	})
	exp := NewExpander(src, time.Minute)

	g := &models.Group{
		GID:         "g1",
		Symbols:     []string{"BTCUSDT", "BTCUSDT", " "},
		SymbolGroup: "majors",
	}
	got, err := exp.Symbols(g)
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	want := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExpander_UnknownTag(t *testing.T) {
	exp := NewExpander(NewStaticSource(nil), time.Minute)
	g := &models.Group{GID: "g1", SymbolGroup: "nope"}
	if _, err := exp.Symbols(g); err == nil {
		t.Error("expected error for unknown symbol group")
	}
}

func TestExpander_EmptySet(t *testing.T) {
	exp := NewExpander(NewStaticSource(map[string][]string{"empty": {}}), time.Minute)
	g := &models.Group{GID: "g1", SymbolGroup: "empty"}
	if _, err := exp.Symbols(g); err == nil {
		t.Error("expected error for empty symbol set")
	}
}

// countingSource records how often each tag is expanded.
type countingSource struct {
	calls int
}

func (c *countingSource) Members(string) ([]string, error) {
	c.calls++
	return []string{"BTCUSDT"}, nil
}

func TestExpander_TTLCache(t *testing.T) {
	src := &countingSource{}
	exp := NewExpander(src, 10*time.Second)
	now := time.Unix(1000, 0)
	exp.now = func() time.Time { return now }

	g := &models.Group{GID: "g1", SymbolGroup: "majors"}
	for i := 0; i < 3; i++ {
		if _, err := exp.Symbols(g); err != nil {
			t.Fatalf("Symbols: %v", err)
		}
	}
	if src.calls != 1 {
		t.Errorf("expected 1 source call within TTL, got %d", src.calls)
	}

	now = now.Add(11 * time.Second)
	if _, err := exp.Symbols(g); err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	if src.calls != 2 {
		t.Errorf("expected refetch after TTL, got %d calls", src.calls)
	}
}

func TestCanonicalTags(t *testing.T) {
	profiles := []models.Profile{
		{
			Enabled: true,
			Groups: []models.Group{
				{Enabled: true, SymbolGroup: "zeta"},
				{Enabled: true, SymbolGroup: "alpha"},
				{Enabled: false, SymbolGroup: "hidden"},
				{Enabled: true, SymbolGroup: "alpha"},
			},
		},
	}
	tags := CanonicalTags(profiles)
	if len(tags) != 2 || tags[0] != "alpha" || tags[1] != "zeta" {
		t.Errorf("unexpected tags %v", tags)
	}
}
