package alarm

import (
	"fmt"
	"strings"

	"github.com/jmllr/alertchain/internal/models"
)

// Notification is one deliverable message produced by a run.
type Notification struct {
	Kind      string // EventPush | EventPartialChange
	Key       models.StatusKey
	GroupName string
	Event     models.HistoryEvent
}

// FormatText renders a notification as plain text for dry-run logging.
func FormatText(n Notification) string {
	var b strings.Builder
	b.WriteString(headline(n))
	b.WriteString("\n")
	for _, line := range detailLines(n) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatMarkdownV2 renders a notification for Telegram.
func FormatMarkdownV2(n Notification) string {
	var b strings.Builder

	switch n.Kind {
	case models.EventPush:
		b.WriteString("🚨 *Alert triggered*\n")
	case models.EventPartialChange:
		b.WriteString("👀 *Partial condition change*\n")
	default:
		b.WriteString("ℹ️ *Evaluator notice*\n")
	}

	name := n.GroupName
	if name == "" {
		name = n.Key.GID
	}
	b.WriteString(fmt.Sprintf("*%s*\n", escapeMarkdownV2(name)))

	for _, line := range detailLines(n) {
		b.WriteString(escapeMarkdownV2(line))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func headline(n Notification) string {
	name := n.GroupName
	if name == "" {
		name = n.Key.GID
	}
	switch n.Kind {
	case models.EventPush:
		return fmt.Sprintf("ALERT %s", name)
	case models.EventPartialChange:
		return fmt.Sprintf("PARTIAL %s", name)
	default:
		return fmt.Sprintf("NOTICE %s", name)
	}
}

func detailLines(n Notification) []string {
	ev := n.Event
	lines := []string{
		fmt.Sprintf("%s @ %s (%s, %s)", n.Key.Symbol, n.Key.Exchange, n.Key.ClockInterval, n.Key.ProfileID),
		fmt.Sprintf("state: %s (partial_true=%v)", ev.FinalState, ev.PartialTrue),
	}
	if ev.LeftValue != nil && ev.RightValue != nil && ev.Op != "" {
		lines = append(lines, fmt.Sprintf("comparison: %s %s %s",
			formatValue(*ev.LeftValue), opSymbol(ev.Op), formatValue(*ev.RightValue)))
	}
	if snap := ev.ThresholdSnapshot; snap != nil {
		if mode, _ := snap["mode"].(string); mode != "" && mode != models.ThresholdNone {
			lines = append(lines, "threshold: "+describeThreshold(snap))
		}
	}
	if tick, ok := ev.Debug["tick_ts"].(string); ok && tick != "" {
		lines = append(lines, "tick: "+tick)
	}
	return lines
}

func describeThreshold(snap map[string]any) string {
	mode, _ := snap["mode"].(string)
	switch mode {
	case models.ThresholdStreak:
		return fmt.Sprintf("streak %v/%v", snap["streak"], snap["min_count"])
	case models.ThresholdCount:
		trues := 0
		if window, ok := snap["window"].([]bool); ok {
			for _, b := range window {
				if b {
					trues++
				}
			}
			return fmt.Sprintf("count %d/%v in last %d ticks", trues, snap["min_count"], len(window))
		}
		return fmt.Sprintf("count mode, min %v", snap["min_count"])
	default:
		return mode
	}
}

func formatValue(v float64) string {
	s := fmt.Sprintf("%.6f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

func opSymbol(op string) string {
	switch op {
	case models.OpEq:
		return "=="
	case models.OpNe:
		return "!="
	case models.OpGt:
		return ">"
	case models.OpGte:
		return ">="
	case models.OpLt:
		return "<"
	case models.OpLte:
		return "<="
	default:
		return op
	}
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
