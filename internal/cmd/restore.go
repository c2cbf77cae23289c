package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/3leaps/migrates/internal/observability"
	"github.com/3leaps/migrates/pkg/recovery"
	"github.com/3leaps/migrates/pkg/restore"
	"github.com/3leaps/migrates/pkg/versionprobe"
)

var restoreTemplatesCmd = &cobra.Command{
	Use:   "restore_templates <file>",
	Short: "Replay a templates recovery file",
	Long:  "Reapplies the template catalog captured in a migrates.templates.<S>.json recovery file, for when a run was interrupted before its own template revert could complete.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestoreTemplates,
}

var restoreIndexesCmd = &cobra.Command{
	Use:   "restore_indexes <file>",
	Short: "Replay an indexes recovery file",
	Long:  "Recreates every index named in a migrates.indexes.<S>.json recovery file from its still-present shadow copy, for when a run was interrupted mid document-migration.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestoreIndexes,
}

var restoreHistoryCmd = &cobra.Command{
	Use:   "restore_history <file>",
	Short: "Replay a migrations recovery file",
	Long:  "Replays the history records captured in a migrates.migrations.<S>.json recovery file, for when a run succeeded but its final history write failed.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestoreHistory,
}

func init() {
	rootCmd.AddCommand(restoreTemplatesCmd, restoreIndexesCmd, restoreHistoryCmd)
}

func runRestoreTemplates(c *cobra.Command, args []string) error {
	ctx := c.Context()
	loaded, err := recovery.LoadTemplates(args[0])
	if err != nil {
		return fmt.Errorf("load %s: %w", args[0], err)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	probed, err := versionprobe.Probe(ctx, s)
	if err != nil {
		return fmt.Errorf("probe index store version: %w", err)
	}

	_, err = restore.Templates(ctx, s, probed.Major, observability.CLILogger, cfg.Orchestrator, loaded)
	return err
}

func runRestoreIndexes(c *cobra.Command, args []string) error {
	ctx := c.Context()
	affected, err := recovery.LoadIndexes(args[0])
	if err != nil {
		return fmt.Errorf("load %s: %w", args[0], err)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	probed, err := versionprobe.Probe(ctx, s)
	if err != nil {
		return fmt.Errorf("probe index store version: %w", err)
	}

	return restore.Indexes(ctx, s, probed.Major, observability.CLILogger, cfg.Orchestrator, affected)
}

func runRestoreHistory(c *cobra.Command, args []string) error {
	ctx := c.Context()
	actions, err := recovery.LoadMigrations(args[0])
	if err != nil {
		return fmt.Errorf("load %s: %w", args[0], err)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	return restore.History(ctx, s, observability.CLILogger, cfg.Orchestrator.BulkWriter, actions)
}
