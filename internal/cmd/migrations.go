package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/3leaps/migrates/pkg/history"
	"github.com/3leaps/migrates/pkg/versionprobe"
)

var migrationsPending bool

var migrationsCmd = &cobra.Command{
	Use:   "migrations",
	Short: "List registered migration units",
	Long:  "Lists every unit discovered from --path, sorted by date then name. With --pending, lists only units that have never recorded a history entry, plus repeating units.",
	RunE:  runMigrations,
}

func init() {
	migrationsCmd.Flags().BoolVar(&migrationsPending, "pending", false, "list only units with no history record, plus repeating units")
	rootCmd.AddCommand(migrationsCmd)
}

func runMigrations(c *cobra.Command, args []string) error {
	ctx := c.Context()

	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	units := reg.All()
	if migrationsPending {
		s, err := openStore()
		if err != nil {
			return err
		}
		probed, err := versionprobe.Probe(ctx, s)
		if err != nil {
			return fmt.Errorf("probe index store version: %w", err)
		}
		hist := history.New(s, cfg.Orchestrator.History, probed.Major)
		records, err := hist.Scan(ctx, time.Time{}, time.Time{})
		if err != nil {
			return err
		}
		performed := history.PerformedNames(records)
		units = reg.Pending(performed)
	}

	out := c.OutOrStdout()
	for _, u := range units {
		fmt.Fprintf(out, "%s\t%s\t%s\n", u.Name, u.Date.UTC().Format("2006-01-02"), u.Description)
	}
	return nil
}
