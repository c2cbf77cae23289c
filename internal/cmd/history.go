package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/3leaps/migrates/pkg/history"
	"github.com/3leaps/migrates/pkg/versionprobe"
)

var historyCmd = &cobra.Command{
	Use:   "history [begin] [end]",
	Short: "List executed migrations in a time range",
	Long:  "Lists history records with a migration timestamp in [begin, end). Timestamps accept YYYY-MM-DD or YYYY-MM-DDTHH:MM:SSZ, interpreted as UTC. With no arguments, lists the entire history.",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(c *cobra.Command, args []string) error {
	ctx := c.Context()

	var begin, end time.Time
	var err error
	if len(args) > 0 {
		begin, err = parseTimestamp(args[0])
		if err != nil {
			return fmt.Errorf("parse begin: %w", err)
		}
	}
	if len(args) > 1 {
		end, err = parseTimestamp(args[1])
		if err != nil {
			return fmt.Errorf("parse end: %w", err)
		}
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	probed, err := versionprobe.Probe(ctx, s)
	if err != nil {
		return fmt.Errorf("probe index store version: %w", err)
	}

	hist := history.New(s, cfg.Orchestrator.History, probed.Major)
	records, err := hist.Scan(ctx, begin, end)
	if err != nil {
		return err
	}

	out := c.OutOrStdout()
	for _, r := range records {
		fmt.Fprintf(out, "%s\t%s\t%s\n", r.Timestamp.UTC().Format(time.RFC3339), r.Name, r.MigrationDate.UTC().Format("2006-01-02"))
	}
	return nil
}

// parseTimestamp accepts either the date-only or full RFC3339 forms §6
// names for CLI timestamps, both interpreted as UTC.
func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: expected YYYY-MM-DD or YYYY-MM-DDTHH:MM:SSZ", raw)
	}
	return t.UTC(), nil
}
