package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/biocurator-go/internal/metrics"
	"github.com/raphaelgruber/biocurator-go/internal/service"
)

// printSummary displays per-document timing and batch totals.
func printSummary(w io.Writer, report *service.BatchReport, stats metrics.Snapshot) {
	theme := defaultTheme
	fmt.Fprintln(w)
	fmt.Fprintln(w, theme.headerStyle().Render("Batch Summary"))
	fmt.Fprintln(w, "═══════════════════════════════════════")

	for _, d := range report.Documents {
		mark := theme.completedStyle().Render("✓")
		if d.Err != nil {
			mark = theme.errorStyle().Render("✗")
		}
		fmt.Fprintf(w, "%s %-30s %10s  %d written", mark, d.Name, d.Duration.Round(time.Millisecond), len(d.Artifacts))
		if len(d.Skipped) > 0 {
			fmt.Fprintf(w, ", %d skipped", len(d.Skipped))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Documents:        %d (%d failed)\n", len(report.Documents), report.Failed())
	fmt.Fprintf(w, "Total time:       %s\n", report.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Average/document: %s\n", report.AverageDocument().Round(time.Millisecond))

	printOutcomes(w, stats.Outcomes)
	printOpStats(w, "Uploads", stats.Upload)
	printOpStats(w, "Runs", stats.Run)
	printOpStats(w, "Corrections", stats.Correction)
}

// printOutcomes displays the non-zero prompt outcome counters.
func printOutcomes(w io.Writer, counts metrics.OutcomeCounts) {
	if counts.Total() == 0 {
		return
	}
	fmt.Fprintf(w, "\nPrompts:\n")
	for _, o := range metrics.Outcomes {
		if n := counts.Get(o); n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", string(o)+":", n)
		}
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, name string, op *metrics.OperationSnapshot) {
	if op == nil {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", name)
	fmt.Fprintf(w, "  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(w io.Writer, op *metrics.OperationSnapshot) {
	if op == nil || op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Fprintf(w, "  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgInputTokens)
	}
	if op.MinInputTokens != nil && op.MaxInputTokens != nil {
		fmt.Fprintf(w, ", min %d, max %d", *op.MinInputTokens, *op.MaxInputTokens)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgOutputTokens)
	}
	if op.MinOutputTokens != nil && op.MaxOutputTokens != nil {
		fmt.Fprintf(w, ", min %d, max %d", *op.MinOutputTokens, *op.MaxOutputTokens)
	}
	fmt.Fprintln(w)
}
