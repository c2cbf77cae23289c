package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/3leaps/migrates/internal/observability"
	"github.com/3leaps/migrates/pkg/orchestrator"
	"github.com/3leaps/migrates/pkg/recovery"
	"github.com/3leaps/migrates/pkg/reindex"
	"github.com/3leaps/migrates/pkg/versionprobe"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex <spec...>",
	Short: "Rewrite an index into itself or a new name",
	Long:  "Each spec is either a bare index name (rewrite an index into itself) or source=>target (rewrite into a new index name). Synthesizes and runs internal migration units alongside any registered user units, through the same staged pipeline as run.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(c *cobra.Command, args []string) error {
	ctx := c.Context()

	s, err := openStore()
	if err != nil {
		return err
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(args))
	for _, raw := range args {
		spec, err := reindex.ParseSpec(raw)
		if err != nil {
			return fmt.Errorf("parse reindex spec %q: %w", raw, err)
		}
		unit := reindex.Build(spec)
		if err := reg.Add(unit); err != nil {
			return fmt.Errorf("register reindex unit for %q: %w", raw, err)
		}
		names = append(names, unit.Name)
	}

	probed, err := versionprobe.Probe(ctx, s)
	if err != nil {
		return fmt.Errorf("probe index store version: %w", err)
	}

	var rec *recovery.Writer
	if cfg.Dry {
		rec = recovery.New("")
	} else {
		rec = recovery.New(cfg.RestorePath)
	}

	o := orchestrator.New(s, reg, rec, probed.Major, observability.CLILogger, cfg.Orchestrator)
	result, err := o.Run(ctx, names)
	if err != nil {
		return err
	}
	printReport(c, result)
	return nil
}
