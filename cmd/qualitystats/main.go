// Command qualitystats summarizes the tracker's quality metrics files:
// signal counts, filter rates, metric distributions, and how the quality
// filter separates filtered from passed analyses.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/quantflux/confluence/internal/tracker"
)

func main() {
	dir := flag.String("dir", "logs/quality_metrics", "Tracker log directory")
	hours := flag.Int("hours", 24, "Trailing window in hours")
	symbol := flag.String("symbol", "", "Restrict to one symbol")
	effectiveness := flag.Bool("effectiveness", false, "Show filter effectiveness instead of statistics")
	asJSON := flag.Bool("json", false, "Emit JSON")
	flag.Parse()

	records, err := tracker.ReadWindow(*dir, *hours, *symbol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read quality records: %v\n", err)
		os.Exit(1)
	}

	if *effectiveness {
		eff := tracker.EffectivenessOf(records, *hours)
		if *asJSON {
			emitJSON(eff)
			return
		}
		printEffectiveness(eff)
		return
	}

	stats := tracker.Summarize(records, *hours, *symbol)
	if *asJSON {
		emitJSON(stats)
		return
	}
	printStatistics(stats)
}

func emitJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		os.Exit(1)
	}
}

func printStatistics(stats tracker.Statistics) {
	fmt.Printf("Quality statistics, last %dh", stats.WindowHours)
	if stats.Symbol != "" {
		fmt.Printf(" (%s)", stats.Symbol)
	}
	fmt.Println()
	fmt.Printf("  analyses: %d  filtered: %d  filter rate: %.1f%%\n",
		stats.Total, stats.Filtered, stats.FilterRate*100)

	names := make([]string, 0, len(stats.Metrics))
	for name := range stats.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := stats.Metrics[name]
		fmt.Printf("  %-15s min=%.3f mean=%.3f median=%.3f max=%.3f stdev=%.3f\n",
			name, m.Min, m.Mean, m.Median, m.Max, m.StdDev)
	}
}

func printEffectiveness(eff tracker.FilterEffectiveness) {
	fmt.Printf("Filter effectiveness, last %dh\n", eff.WindowHours)
	fmt.Printf("  filtered: %d  passed: %d\n", eff.FilteredCount, eff.PassedCount)

	fmt.Println("  reason histogram:")
	reasons := make([]string, 0, len(eff.Reasons))
	for r := range eff.Reasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Printf("    %-20s %d\n", r, eff.Reasons[r])
	}

	names := make([]string, 0, len(eff.FilteredMeans))
	for name := range eff.FilteredMeans {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("  mean by outcome (filtered / passed):")
	for _, name := range names {
		fmt.Printf("    %-15s %.3f / %.3f\n", name, eff.FilteredMeans[name], eff.PassedMeans[name])
	}
}
