package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/3leaps/migrates/internal/observability"
	"github.com/3leaps/migrates/pkg/orchestrator"
	"github.com/3leaps/migrates/pkg/recovery"
	"github.com/3leaps/migrates/pkg/registry"
	"github.com/3leaps/migrates/pkg/versionprobe"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run [names...]",
	Short: "Apply pending migration units",
	Long:  "Resolves which registered units are pending, stages shadow copies of every index they touch, transforms documents while writing them back, applies template changes, and records a durable history. With no names given, every pending unit runs. Interrupted runs leave recovery files under --restore-path; replay them with restore_templates/restore_indexes/restore_history.",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(c *cobra.Command, args []string) error {
	ctx := c.Context()

	s, err := openStore()
	if err != nil {
		return err
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
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

	result, err := o.Run(ctx, args)
	if err != nil {
		var failure *orchestrator.Failure
		if errors.As(err, &failure) {
			observability.CLILogger.Error("run failed", zap.String("stage", string(failure.Stage)), zap.Error(failure.Err), zap.Bool("recovered", failure.Recovered), zap.String("hint", failure.Hint))
		}
		return err
	}

	printReport(c, result)
	return nil
}

func loadRegistry() (*registry.Registry, error) {
	reg := registry.New()
	for _, dir := range cfg.Paths {
		if err := loadUnitsFromPath(reg, dir); err != nil {
			return nil, fmt.Errorf("load migration package %s: %w", dir, err)
		}
	}
	return reg, nil
}
