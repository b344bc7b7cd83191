package poller

import (
	"fmt"
	"strings"

	"tweet_monitor/internal/model"
)

// formatCycleSummary formats a cycle summary as an operator notification.
func formatCycleSummary(sum CycleSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Monitoring cycle %s\n", sum.RunID)
	fmt.Fprintf(&b, "processed: %d, completed: %d, fallback: %d, skipped: %d\n",
		sum.Processed, sum.Completed, sum.FallbackUsed, sum.Skipped)
	if len(sum.Errors) > 0 {
		b.WriteString("\nErrors:\n")
		for _, e := range sum.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	return b.String()
}

// formatNoFallbackWarning formats the warning sent when untrusted fresh
// values were written because no known-good snapshot exists.
func formatNoFallbackWarning(postID string, agg *model.QuoteAggregate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Untrusted aggregate for %s written without fallback\n", postID)
	fmt.Fprintf(&b, "unique authors: %d, view sum: %d, pages: %d",
		agg.UniqueAuthors, agg.QuoteViewSum, agg.PagesFetched)
	if agg.CoverageDefined() {
		fmt.Fprintf(&b, ", coverage: %.0f%%", agg.CoveragePercent)
	}
	return b.String()
}
