// Package restore implements the four out-of-band replays an operator runs
// from a recovery file when a migration run was interrupted before its
// inline recovery could complete (§4.H). Each replay is a thin front end
// over machinery the core orchestrator already owns: restoring templates
// and indexes both construct a scratch Orchestrator bound to the same
// store, so the exact same delta and shadow-copy logic a live run would use
// is what undoes it.
package restore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/3leaps/migrates/pkg/bulkwriter"
	"github.com/3leaps/migrates/pkg/orchestrator"
	"github.com/3leaps/migrates/pkg/recovery"
	"github.com/3leaps/migrates/pkg/registry"
	"github.com/3leaps/migrates/pkg/store"
)

// templatesUnitName is the internal unit name synthesized by Templates.
const templatesUnitName = "migrates/restore/templates"

// Templates replays a `migrates.templates.<S>.json` recovery file: it
// synthesizes an internal migration unit whose templateTransform ignores
// the store's current catalog and returns loaded verbatim, then runs the
// orchestrator with only that unit. History is never written for a restore
// run, and the restore itself writes no further recovery files.
func Templates(ctx context.Context, s store.Store, serverMajor int, logger *zap.Logger, cfg orchestrator.Config, loaded store.Templates) (orchestrator.Result, error) {
	reg := registry.New()
	if err := reg.Add(registry.MigrationUnit{
		Name:     templatesUnitName,
		Internal: true,
		TemplateTransform: func(store.Templates) (store.Templates, error) {
			return loaded, nil
		},
	}); err != nil {
		return orchestrator.Result{}, fmt.Errorf("restore: build templates unit: %w", err)
	}

	cfg.NoHistory = true
	o := orchestrator.New(s, reg, recovery.New(""), serverMajor, logger, cfg)
	result, err := o.Run(ctx, []string{templatesUnitName})
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("restore templates: %w", err)
	}
	return result, nil
}

// Indexes replays a `migrates.indexes.<S>.json` recovery file: for each
// listed index, it fetches settings from that index's shadow copy (the
// original may already be gone) and executes stages 9-10 — recreate the
// original from the snapshot, copy the shadow's documents back, remove the
// shadow (§4.H restore_indexes).
func Indexes(ctx context.Context, s store.Store, serverMajor int, logger *zap.Logger, cfg orchestrator.Config, affected []string) error {
	o := orchestrator.New(s, registry.New(), recovery.New(""), serverMajor, logger, cfg)
	if err := o.RestoreIndexes(ctx, affected); err != nil {
		return fmt.Errorf("restore indexes: %w", err)
	}
	return nil
}

// History replays a `migrates.migrations.<S>.json` recovery file: the
// exact BulkActions a successful run would have written are fed to a fresh
// Bulk Writer targeting the history index (§4.H restore_history).
func History(ctx context.Context, s store.Store, logger *zap.Logger, cfg bulkwriter.Config, actions []store.BulkAction) error {
	w := bulkwriter.New(s, logger, cfg)
	if err := w.AddMany(ctx, actions); err != nil {
		return fmt.Errorf("restore history: %w", err)
	}
	if err := w.Flush(ctx); err != nil {
		return fmt.Errorf("restore history: %w", err)
	}
	return nil
}

// Cleanup prunes old recovery files, per §4.E's retention policy. It is a
// thin alias kept here so every restore_* command in §6's surface has a
// same-named entry point in this package.
func Cleanup(dir string, params recovery.CleanupParams) ([]string, error) {
	return recovery.Cleanup(dir, params)
}
