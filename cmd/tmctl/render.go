package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/fatih/color"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/connector"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/proto"
)

var (
	exactColor = color.New(color.FgGreen, color.Bold)
	highColor  = color.New(color.FgYellow)
	lowColor   = color.New(color.FgWhite)
	labelColor = color.New(color.Faint)
)

func scoreColor(score int) *color.Color {
	switch {
	case score == 100:
		return exactColor
	case score >= 85:
		return highColor
	default:
		return lowColor
	}
}

func renderHits(w io.Writer, hits []connector.QueryResult) {
	for i, h := range hits {
		origin := h.Origin
		if origin == "" {
			origin = "-"
		}
		fmt.Fprintf(w, "%2d. %s %-18s #%d %s\n",
			i+1,
			scoreColor(h.Score).Sprintf("%3d%%", h.Score),
			h.MatchType,
			h.DocID,
			labelColor.Sprintf("(%s)", origin),
		)
		fmt.Fprintf(w, "    %s %s\n", labelColor.Sprint("src:"), h.Source.String())
		if h.Target != nil && !h.Target.IsEmpty() {
			fmt.Fprintf(w, "    %s %s\n", labelColor.Sprint("tgt:"), h.Target.String())
		}
	}
}

func renderCounts(w io.Writer, counts map[string]int) {
	for _, status := range slices.Sorted(maps.Keys(counts)) {
		c := lowColor
		if status == ingestion.StatusApplied {
			c = exactColor
		}
		fmt.Fprintf(w, "%-10s %d\n", c.Sprint(status), counts[status])
	}
}

func renderStats(w io.Writer, where string, st *proto.StatsResponse) {
	last := "never"
	if st.LastFlush != 0 {
		last = time.Unix(st.LastFlush, 0).UTC().Format(time.RFC3339)
	}
	rows := [][2]string{
		{"index", where},
		{"units", fmt.Sprint(st.Units)},
		{"terms", fmt.Sprint(st.Terms)},
		{"generation", fmt.Sprint(st.Generation)},
		{"next doc id", fmt.Sprint(st.NextDocID)},
		{"segments", fmt.Sprint(st.Segments)},
		{"last flush", last},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s %s\n", labelColor.Sprintf("%-11s", r[0]), r[1])
	}
}
