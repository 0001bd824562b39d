package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pattern-alerts/internal/analysis"
	"pattern-alerts/internal/metric"
)

// RenderMessage builds the plain-text alert body: a current-values header,
// per-window change lines for each analysed metric, fired cross-signals,
// and the decision reason with its triggering deltas.
func RenderMessage(note Notification) string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "[%s pattern alert]\n", strings.ToUpper(note.Instrument))
	fmt.Fprintf(&b, "Cycle: %s UTC\n", note.CycleTS.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Reason: %s\n", note.Decision.Reason)

	if note.Snapshot.Degraded {
		b.WriteString("No metric data available this cycle.\n")
		return b.String()
	}

	for _, id := range metric.All() {
		trends := note.Snapshot.Trends[id]
		if len(trends) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s: %s\n", metricTitle(id), formatValue(id, trends[0].CurrentValue))
		for _, t := range trends {
			b.WriteString("  " + changeLine(t) + "\n")
		}
	}

	if len(note.Snapshot.CrossSignals) > 0 {
		fmt.Fprintf(&b, "\nSignals: %s\n", strings.Join(note.Snapshot.CrossSignals, ", "))
	}

	if len(note.Decision.Deltas) > 0 {
		b.WriteString("\nTriggered by:\n")
		for _, d := range note.Decision.Deltas {
			unit := "%"
			if d.Absolute {
				unit = " pts"
			}
			fmt.Fprintf(&b, "  %s %s%s since last alert (threshold %s%s)\n",
				d.Metric, signedFixed(d.Change, 2), unit, d.Threshold.String(), unit)
		}
	}

	return b.String()
}

func changeLine(t analysis.TrendResult) string {
	label := metric.WindowLabel(t.Window)
	if t.AbsoluteOnly {
		return fmt.Sprintf("%s %s pts vs %s ago [%s/%s]",
			arrow(t.Direction), signedFixed(t.Delta, 4), label, t.Direction, t.Significance)
	}
	return fmt.Sprintf("%s %s%% vs %s ago (from %s) [%s/%s]",
		arrow(t.Direction), signedFixed(t.PctChange, 2), label,
		t.ReferenceValue.StringFixed(4), t.Direction, t.Significance)
}

func arrow(d analysis.Direction) string {
	switch d {
	case analysis.Increasing:
		return "↑"
	case analysis.Decreasing:
		return "↓"
	default:
		return "→"
	}
}

func metricTitle(id metric.ID) string {
	switch id {
	case metric.Price:
		return "Price"
	case metric.OpenInterest:
		return "Open Interest"
	case metric.FundingRate:
		return "Funding Rate"
	case metric.LongShortRatio:
		return "Long/Short Ratio"
	case metric.Liquidations:
		return "Liquidations"
	}
	return string(id)
}

func formatValue(id metric.ID, v decimal.Decimal) string {
	switch id {
	case metric.OpenInterest, metric.Liquidations:
		millions := v.Div(decimal.NewFromInt(1_000_000))
		return "$" + millions.StringFixed(1) + "M"
	case metric.FundingRate:
		return v.Mul(decimal.NewFromInt(100)).StringFixed(4) + "%"
	case metric.Price:
		return "$" + v.StringFixed(2)
	default:
		return v.StringFixed(2)
	}
}

func signedFixed(v decimal.Decimal, places int32) string {
	s := v.StringFixed(places)
	if v.Sign() >= 0 {
		return "+" + s
	}
	return s
}
