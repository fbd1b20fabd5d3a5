package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/lineup/internal/otel"
)

// debugPanelChrome is the border plus vertical padding of DebugPanel.
const debugPanelChrome = 4

const debugRecent = 20

// debugCounters lists the per-kind tallies shown at the top of the panel.
var debugCounters = []struct {
	label string
	kinds []otel.EventKind
	names []string
}{
	{"Sorts", []otel.EventKind{otel.KindSortComplete, otel.KindSortSuperseded, otel.KindSortError}, []string{"complete", "superseded", "errors"}},
	{"Views", []otel.EventKind{otel.KindViewComplete, otel.KindViewError}, []string{"complete", "errors"}},
	{"Rankings", []otel.EventKind{otel.KindRankingAdded, otel.KindRankingRemoved, otel.KindRankingRestore}, []string{"added", "removed", "restored"}},
	{"Cache", []otel.EventKind{otel.KindCacheEvict}, []string{"evictions"}},
	{"Remote", []otel.EventKind{otel.KindRemoteRetry}, []string{"retries"}},
}

// debugOverlay renders event counters and the most recent events from
// ring. It returns "" when there is no ring.
func debugOverlay(ring *otel.RingBuffer, width, height int) string {
	if ring == nil {
		return ""
	}

	stats := ring.Stats()
	lines := []string{DebugHeaderStyle.Render("Provider Stats")}
	for _, c := range debugCounters {
		parts := make([]string, len(c.kinds))
		for i, k := range c.kinds {
			parts[i] = fmt.Sprintf("%d %s", stats[k], c.names[i])
		}
		lines = append(lines, fmt.Sprintf("  %-10s  %s", c.label+":", strings.Join(parts, ", ")))
	}
	lines = append(lines,
		fmt.Sprintf("  %-10s  %d / %d held, %d seen", "Buffer:", ring.Len(), ring.Cap(), ring.Total()),
		"",
		DebugHeaderStyle.Render("Recent Events"),
	)

	now := time.Now()
	for _, e := range ring.Last(debugRecent) {
		lines = append(lines, eventLine(e, now))
	}

	if limit := max(height-debugPanelChrome, 1); len(lines) > limit {
		lines = lines[:limit]
	}
	w := max(min(76, width-4), 20)
	return DebugPanel.Width(w).Render(strings.Join(lines, "\n"))
}

func eventLine(e otel.Event, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %6s  %-18s", shortDuration(now.Sub(e.Time)), e.Kind)
	if e.Ranking != 0 {
		fmt.Fprintf(&b, "  r%d", e.Ranking)
	}
	if e.Seq > 0 {
		fmt.Fprintf(&b, "  seq:%d", e.Seq)
	}
	if e.Dur > 0 {
		b.WriteString("  " + shortDuration(e.Dur))
	}
	if e.Msg != "" {
		b.WriteString("  " + truncateRunes(e.Msg, 40))
	}
	if e.Err != "" {
		b.WriteString("  ERR:" + truncateRunes(e.Err, 30))
	}
	return b.String()
}

// shortDuration renders d as 12ms, 3.4s, 5m or 2h. Negative values from
// clock skew show as 0ms.
func shortDuration(d time.Duration) string {
	switch {
	case d < 0:
		return "0ms"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}

func debugStatusBar(width int) string {
	return StatusBar.Width(width).Render("  [DEBUG]  " + StatusBarKey.Render("D") + StatusBarText.Render(":close"))
}
