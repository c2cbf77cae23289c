package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/3leaps/migrates/pkg/orchestrator"
)

// printReport writes a run's detail.Report (§4.D) to the command's stdout
// in the order the recorder already sorted it: per-index touched/deleted
// counts, per-unit counts by error count descending, then up to three example
// exceptions per (index, type).
func printReport(c *cobra.Command, result orchestrator.Result) {
	out := c.OutOrStdout()

	if len(result.Affected) == 0 {
		fmt.Fprintln(out, "no pending migrations")
		return
	}

	fmt.Fprintln(out, "indexes:")
	for _, is := range result.Report.ByIndex {
		fmt.Fprintf(out, "  %-40s touched=%-6d deleted=%d\n", is.Index, is.Touched, is.Deleted)
	}

	fmt.Fprintln(out, "migrations:")
	for _, us := range result.Report.ByUnit {
		fmt.Fprintf(out, "  %-40s touched=%-6d deleted=%-6d errored=%d\n", us.Name, us.Touched, us.Deleted, us.Errored)
	}

	if len(result.Report.Exceptions) > 0 {
		fmt.Fprintln(out, "exceptions:")
		for _, ex := range result.Report.Exceptions {
			fmt.Fprintf(out, "  %s/%s:\n", ex.Index, ex.Type)
			for _, sample := range ex.Samples {
				fmt.Fprintf(out, "    %s\n", sample)
			}
		}
	}
}
