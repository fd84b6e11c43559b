package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

// FormatPrice renders a price with precision scaled to its magnitude, so
// sub-cent tokens keep their significant digits.
func FormatPrice(p float64) string {
	d := decimal.NewFromFloat(p)
	var places int32
	switch abs := d.Abs(); {
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		places = 2
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1)):
		places = 4
	case abs.IsZero():
		return "0"
	default:
		places = 8
	}
	return d.Round(places).StringFixed(places)
}

// SignalActivated formats the alert for a new or re-anchored signal.
func SignalActivated(m domain.SymbolMetrics) (title, message string) {
	title = fmt.Sprintf("%s %s", m.Symbol, m.Signal)
	var b strings.Builder
	fmt.Fprintf(&b, "Entry: %s\n", FormatPrice(derefPrice(m.SignalReferencePrice, m.Price)))
	fmt.Fprintf(&b, "24h change: %s%%\n", decimal.NewFromFloat(m.PriceChangePercent).StringFixed(2))
	fmt.Fprintf(&b, "Volume change: %s%%\n", decimal.NewFromFloat(m.VolumeChangePercent).StringFixed(1))
	fmt.Fprintf(&b, "Score %d, strength %d", m.Score, m.Strength)
	if m.Pattern != domain.PatternNone {
		fmt.Fprintf(&b, ", pattern %s", m.Pattern)
	}
	return title, b.String()
}

// SignalCleared formats the alert for a signal that returned to neutral.
func SignalCleared(prev domain.SymbolMetrics, now domain.SymbolMetrics) (title, message string) {
	title = fmt.Sprintf("%s %s cleared", prev.Symbol, prev.Signal)
	ref := derefPrice(prev.SignalReferencePrice, prev.Price)
	move := decimal.Zero
	if ref != 0 {
		move = decimal.NewFromFloat(now.Price).Sub(decimal.NewFromFloat(ref)).
			Div(decimal.NewFromFloat(ref)).Mul(decimal.NewFromInt(100))
	}
	message = fmt.Sprintf("Entry %s, now %s (%s%%)", FormatPrice(ref), FormatPrice(now.Price), move.StringFixed(2))
	if prev.SignalActivatedAt != nil {
		message += fmt.Sprintf(", held %s", now.UpdatedAt.Sub(*prev.SignalActivatedAt).Round(time.Minute))
	}
	return title, message
}

// FeedDown formats the alert for the first failed tick in a streak.
func FeedDown(ev domain.TickEvent) (title, message string) {
	return "Screener feed down",
		fmt.Sprintf("No symbols could be fetched (%d failed). Retrying.", ev.Failed)
}

// FeedRecovered formats the alert for the first good tick after failures.
func FeedRecovered(ev domain.TickEvent, failedTicks int) (title, message string) {
	return "Screener feed recovered",
		fmt.Sprintf("Published %d symbols after %d failed tick(s).", ev.Succeeded, failedTicks)
}

func derefPrice(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}
