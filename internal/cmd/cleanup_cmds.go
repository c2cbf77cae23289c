package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/3leaps/migrates/internal/observability"
	"github.com/3leaps/migrates/pkg/cleanup"
	"github.com/3leaps/migrates/pkg/recovery"
	"go.uber.org/zap"
)

var (
	restoreCleanupOlderThan string
	restoreCleanupKeepFiles int
)

var restoreCleanupCmd = &cobra.Command{
	Use:   "restore_cleanup",
	Short: "Prune old recovery files",
	Long:  "Removes recovery files older than --older-than, always keeping the --keep-files most recent of each kind (templates/indexes/migrations) regardless of age.",
	RunE:  runRestoreCleanup,
}

var removeHistoryCmd = &cobra.Command{
	Use:   "remove_history",
	Short: "Delete the entire migration history index",
	Long:  "Deletes the history index outright, after confirmation unless -y/--yes or --dry is given. Use this to reset history on a store being re-seeded from scratch, not as part of normal recovery.",
	RunE:  runRemoveHistory,
}

var removeDummiesCmd = &cobra.Command{
	Use:   "remove_dummies",
	Short: "Delete stray shadow indexes",
	Long:  "Deletes every index matching <dummy-index-prefix>*, for shadows left behind by a run started with -k/--keep-dummies or interrupted before stage 10.",
	RunE:  runRemoveDummies,
}

func init() {
	restoreCleanupCmd.Flags().StringVar(&restoreCleanupOlderThan, "older-than", "", "remove files older than this (e.g. \"30d\", \"72h\")")
	restoreCleanupCmd.Flags().IntVar(&restoreCleanupKeepFiles, "keep-files", recovery.DefaultKeepLast, "always keep this many most-recent files per kind")
	rootCmd.AddCommand(restoreCleanupCmd, removeHistoryCmd, removeDummiesCmd)
}

func runRestoreCleanup(c *cobra.Command, args []string) error {
	var olderThan time.Duration
	if restoreCleanupOlderThan != "" {
		d, err := parseRetentionDuration(restoreCleanupOlderThan)
		if err != nil {
			return fmt.Errorf("parse --older-than: %w", err)
		}
		olderThan = d
	}

	removed, err := cleanup.RemoveRecoveryFiles(cfg.RestorePath, recovery.CleanupParams{
		OlderThan: olderThan,
		KeepLast:  restoreCleanupKeepFiles,
		DryRun:    cfg.Dry,
	})
	if err != nil {
		return err
	}
	for _, path := range removed {
		fmt.Fprintln(c.OutOrStdout(), path)
	}
	return nil
}

func runRemoveHistory(c *cobra.Command, args []string) error {
	ctx := c.Context()
	s, err := openStore()
	if err != nil {
		return err
	}

	if !cfg.Yes && !confirm(c, fmt.Sprintf("Remove migration history index %q?", cfg.HistoryIndex)) {
		fmt.Fprintln(c.OutOrStdout(), "exiting without removing migration history")
		return nil
	}

	exists, err := s.IndexExists(ctx, cfg.HistoryIndex)
	if err != nil {
		return err
	}
	if !exists {
		fmt.Fprintf(c.OutOrStdout(), "migration history %q does not exist\n", cfg.HistoryIndex)
		return nil
	}
	if cfg.Dry {
		fmt.Fprintf(c.OutOrStdout(), "would remove migration history index %q\n", cfg.HistoryIndex)
		return nil
	}
	if err := s.DeleteIndex(ctx, cfg.HistoryIndex); err != nil {
		return err
	}
	observability.CLILogger.Info("removed migration history index", zap.String("index", cfg.HistoryIndex))
	return nil
}

func runRemoveDummies(c *cobra.Command, args []string) error {
	ctx := c.Context()
	s, err := openStore()
	if err != nil {
		return err
	}
	if cfg.Dry {
		names, err := s.ListIndexes(ctx, cfg.DummyIndexPrefix+"*")
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintf(c.OutOrStdout(), "would remove %s\n", n)
		}
		return nil
	}
	removed, err := cleanup.RemoveDummies(ctx, s, cfg.DummyIndexPrefix)
	if err != nil {
		return err
	}
	for _, n := range removed {
		fmt.Fprintln(c.OutOrStdout(), n)
	}
	return nil
}
