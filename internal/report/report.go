package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/staylens/staylens/internal/aggregate"
	"github.com/staylens/staylens/internal/pipeline"
)

const topContributors = 10

// Print renders the cross-year comparison and data-quality counters as a
// terminal report. It only reads derived views of the table; all computation
// stays in the aggregator.
func Print(w io.Writer, table *aggregate.Table, counters map[int]pipeline.Counters) {
	thin := strings.Repeat("─", 72)

	years := table.Years()
	fmt.Fprintf(w, "\n RESERVATION-DURATION FEATURE IMPORTANCE\n%s\n", thin)

	if len(years) > 0 {
		fmt.Fprintf(w, "  %-22s", "feature")
		for _, y := range years {
			fmt.Fprintf(w, " %8d", y)
		}
		fmt.Fprintf(w, " %8s %6s\n", "delta", "rank")

		for _, name := range table.Features() {
			pcts := table.Percentages(name)
			ranks := table.Ranks(name)
			fmt.Fprintf(w, "  %-22s", name)
			for _, p := range pcts {
				fmt.Fprintf(w, " %7.2f%%", p)
			}
			fmt.Fprintf(w, " %+8.2f %6d\n", table.Delta(name), ranks[len(ranks)-1])
		}
	}

	fmt.Fprintf(w, "\n TOP CONTRIBUTORS ACROSS YEARS\n%s\n", thin)
	for i, ft := range table.TotalContribution() {
		if i >= topContributors {
			break
		}
		bar := strings.Repeat("▓", int(ft.Total*50))
		fmt.Fprintf(w, "  %2d. %-22s %6.2f%% %s\n", i+1, ft.Feature, ft.Total*100, bar)
	}

	fmt.Fprintf(w, "\n DATA QUALITY\n%s\n", thin)
	ordered := make([]int, 0, len(counters))
	for y := range counters {
		ordered = append(ordered, y)
	}
	sort.Ints(ordered)
	for _, y := range ordered {
		c := counters[y]
		fmt.Fprintf(w, "  %d  ingested %-6d unavailable %-5d invalid %-5d trained %d\n",
			y, c.RowsIngested, c.DroppedUnavailable, c.DroppedInvalid, c.RowsTrained)
	}

	if failed := table.Failed(); len(failed) > 0 {
		fmt.Fprintf(w, "\n EXCLUDED YEARS\n%s\n", thin)
		for _, f := range failed {
			fmt.Fprintf(w, "  %d  %s\n", f.Year, f.Reason)
		}
	}
	fmt.Fprintln(w)
}
