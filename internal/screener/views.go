package screener

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

// View names a read-only ordering or filter over a metrics board.
type View string

const (
	ViewAll     View = "all"
	ViewGainers View = "gainers"
	ViewLosers  View = "losers"
	ViewVolume  View = "volume"
	ViewScore   View = "score"
	ViewSignals View = "signals"
)

// ParseView maps a query value to a View. The empty string means ViewAll.
func ParseView(s string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return ViewAll, nil
	case ViewAll, ViewGainers, ViewLosers, ViewVolume, ViewScore, ViewSignals:
		return v, nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// ViewOpts narrows a view.
type ViewOpts struct {
	View View
	// Signal keeps only rows with this direction when set.
	Signal domain.SignalDirection
	// Limit caps the row count; 0 means no cap.
	Limit int
}

// ApplyView returns a sorted, filtered copy of metrics. The input slice is
// never reordered.
func ApplyView(metrics []domain.SymbolMetrics, opts ViewOpts) []domain.SymbolMetrics {
	out := make([]domain.SymbolMetrics, 0, len(metrics))
	for _, m := range metrics {
		if opts.View == ViewSignals && !m.Signal.Active() {
			continue
		}
		if opts.Signal != "" && m.Signal != opts.Signal {
			continue
		}
		out = append(out, m)
	}

	var less func(a, b domain.SymbolMetrics) bool
	switch opts.View {
	case ViewGainers:
		less = func(a, b domain.SymbolMetrics) bool { return a.PriceChangePercent > b.PriceChangePercent }
	case ViewLosers:
		less = func(a, b domain.SymbolMetrics) bool { return a.PriceChangePercent < b.PriceChangePercent }
	case ViewVolume:
		less = func(a, b domain.SymbolMetrics) bool { return a.VolumeChangePercent > b.VolumeChangePercent }
	case ViewScore:
		less = func(a, b domain.SymbolMetrics) bool { return a.Score > b.Score }
	case ViewSignals:
		less = func(a, b domain.SymbolMetrics) bool { return a.Strength > b.Strength }
	}
	if less != nil {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	}

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}
