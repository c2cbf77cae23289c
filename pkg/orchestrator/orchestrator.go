// Package orchestrator drives one migration run end to end: resolving which
// units are pending, staging shadow copies of every affected index, applying
// template changes, folding document transforms back into the originals, and
// recording history — with a failure-state machine that knows, for every
// stage, what store-visible damage is possible and how to undo it (§4.G). It
// is grounded on pkg/transfer's staged Config/Summary pipeline shape, with
// the retry/backoff concerns split out to bulkwriter and the stage/failure
// bookkeeping built fresh for this domain.
package orchestrator

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/migrates/pkg/bulkwriter"
	"github.com/3leaps/migrates/pkg/detail"
	"github.com/3leaps/migrates/pkg/history"
	"github.com/3leaps/migrates/pkg/match"
	"github.com/3leaps/migrates/pkg/recovery"
	"github.com/3leaps/migrates/pkg/registry"
	"github.com/3leaps/migrates/pkg/store"
)

// DefaultShadowPrefix is the default shadow-index name prefix (§6 Shadow
// index naming).
const DefaultShadowPrefix = "migrates_dummy_"

// Stage names one of the eleven numbered stages of a run, used to label
// failures and pick a recovery action.
type Stage string

const (
	StageResolvePending            Stage = "ResolvePending"
	StageReadTemplates              Stage = "ReadTemplates"
	StagePersistOriginalTemplates   Stage = "PersistOriginalTemplates"
	StagePersistPendingHistory      Stage = "PersistPendingHistory"
	StageResolveAffected            Stage = "ResolveAffected"
	StageComputeUpdatedTemplates    Stage = "ComputeUpdatedTemplates"
	StageStageShadows               Stage = "StageShadows"
	StageApplyTemplates             Stage = "ApplyTemplates"
	StageMigrateDocuments           Stage = "MigrateDocuments"
	StageDeleteShadows              Stage = "DeleteShadows"
	StageWriteHistory               Stage = "WriteHistory"
)

// Failure wraps a stage error with the recovery outcome and operator
// guidance text (§4.G's failure-state table). A nil RecoveryErr with
// Recovered=true means inline recovery restored the store to the state the
// table describes; a non-nil RecoveryErr means the operator must run the
// named restore command by hand.
type Failure struct {
	Stage       Stage
	Err         error
	Recovered   bool
	RecoveryErr error
	Hint        string
}

func (f *Failure) Error() string {
	if f.Hint != "" {
		return fmt.Sprintf("orchestrator: stage %s failed: %v (%s)", f.Stage, f.Err, f.Hint)
	}
	return fmt.Sprintf("orchestrator: stage %s failed: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Config configures one Orchestrator. Zero values take the documented
// defaults.
type Config struct {
	ShadowPrefix   string
	Dry            bool
	NoHistory      bool
	KeepDummies    bool
	DetailPatterns []string
	Verbose        bool
	BulkWriter     bulkwriter.Config
	History        history.Config
}

func (c Config) withDefaults() Config {
	if c.ShadowPrefix == "" {
		c.ShadowPrefix = DefaultShadowPrefix
	}
	return c
}

// Orchestrator runs migrations against one store, using reg to resolve
// pending units and rec to persist recovery files before mutating anything.
type Orchestrator struct {
	store    store.Store
	reg      *registry.Registry
	rec      *recovery.Writer
	hist     *history.Store
	logger   *zap.Logger
	cfg      Config
	patterns *match.Cache
}

// New constructs an Orchestrator. serverMajor (from versionprobe.Probe) is
// forwarded to the History Store for field shaping (§4.J).
func New(s store.Store, reg *registry.Registry, rec *recovery.Writer, serverMajor int, logger *zap.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Orchestrator{
		store:    s,
		reg:      reg,
		rec:      rec,
		hist:     history.New(s, cfg.History, serverMajor),
		logger:   logger,
		cfg:      cfg,
		patterns: match.NewCache(),
	}
}

// Result summarizes a completed (possibly recovered) run.
type Result struct {
	Report        detail.Report
	Affected      []string
	TemplatesFile string
	IndexesFile   string
	MigrationsFile string
}

// runState carries the per-run working set discarded at the end of Run
// (§3 Ownership/lifecycle).
type runState struct {
	now               time.Time
	stamp             string
	pending           []*registry.MigrationUnit
	originalTemplates store.Templates
	updatedTemplates  store.Templates
	affected          []string
	settings          map[string]store.IndexSettings
	templatesFile     string
	indexesFile       string
	migrationsFile    string
	detail            *detail.Recorder
	writer            *bulkwriter.Writer
}

// Run executes one migration run. names, when non-empty, pins the exact
// units to run (by registered name, in the order the registry holds them,
// not the order given); when empty, pending units are computed from the
// registry and the history store.
func (o *Orchestrator) Run(ctx context.Context, names []string) (Result, error) {
	// Every call gets its own correlation id so the stage-level log lines
	// below can be grepped out of a shared log stream; this is distinct
	// from st.stamp, the on-disk recovery-file timestamp key.
	runID := uuid.New().String()
	baseLogger := o.logger
	o.logger = o.logger.With(zap.String("run_id", runID))
	defer func() { o.logger = baseLogger }()

	st := &runState{now: time.Now().UTC()}
	st.stamp = recovery.Stamp(st.now)

	st.detail = detail.New(o.logger, o.cfg.Verbose)
	if err := st.detail.SetDetailPatterns(o.cfg.DetailPatterns); err != nil {
		return Result{}, fmt.Errorf("orchestrator: %w", err)
	}
	st.writer = bulkwriter.New(o.store, o.logger, o.cfg.BulkWriter)

	// 1. ResolvePending
	if err := o.resolvePending(st, names); err != nil {
		return Result{}, &Failure{Stage: StageResolvePending, Err: err}
	}
	if len(st.pending) == 0 {
		o.logger.Info("no pending migrations")
		return Result{Report: st.detail.Report(nil)}, nil
	}

	// 2. ReadTemplates
	templates, err := o.store.GetTemplates(ctx)
	if err != nil {
		return Result{}, &Failure{Stage: StageReadTemplates, Err: err}
	}
	st.originalTemplates = templates

	// 3. PersistOriginalTemplates
	if !o.cfg.Dry {
		path, err := o.rec.WriteTemplates(st.stamp, st.originalTemplates)
		if err != nil {
			return Result{}, &Failure{Stage: StagePersistOriginalTemplates, Err: err}
		}
		st.templatesFile = path
	}

	// 4. PersistPendingHistory
	pendingRecords := history.RecordsFromRun(st.pending, st.now)
	if !o.cfg.Dry {
		actions := make([]store.BulkAction, len(pendingRecords))
		for i, r := range pendingRecords {
			actions[i] = r.ToBulkAction(o.cfg.History)
		}
		path, err := o.rec.WriteMigrations(st.stamp, actions)
		if err != nil {
			return Result{}, &Failure{Stage: StagePersistPendingHistory, Err: err}
		}
		st.migrationsFile = path
	}

	// 5. ResolveAffected
	if err := o.resolveAffected(ctx, st); err != nil {
		return Result{}, &Failure{Stage: StageResolveAffected, Err: err}
	}

	// 6. ComputeUpdatedTemplates
	updated, err := o.computeUpdatedTemplates(st.originalTemplates, st.pending)
	if err != nil {
		return Result{}, &Failure{Stage: StageComputeUpdatedTemplates, Err: err}
	}
	st.updatedTemplates = updated

	if len(st.affected) == 0 {
		o.logger.Info("no affected indexes; only template/history stages apply")
	}

	// 7. StageShadows
	if err := o.stageShadows(ctx, st); err != nil {
		o.revertShadows(ctx, st.affected)
		return Result{}, &Failure{Stage: StageStageShadows, Err: err, Recovered: true,
			Hint: "shadow indexes for the affected set were removed"}
	}

	// 8. ApplyTemplates
	if err := o.applyTemplateDelta(ctx, st.originalTemplates, st.updatedTemplates); err != nil {
		o.revertShadows(ctx, st.affected)
		revertErr := o.applyTemplateDelta(ctx, st.updatedTemplates, st.originalTemplates)
		f := &Failure{Stage: StageApplyTemplates, Err: err}
		if revertErr != nil {
			f.RecoveryErr = revertErr
			f.Hint = fmt.Sprintf("template revert also failed; run restore_templates %s", st.templatesFile)
		} else {
			f.Recovered = true
			f.Hint = "templates reverted to their pre-run state; shadow indexes removed"
		}
		return Result{}, f
	}

	// 9. MigrateDocuments
	if err := o.migrateDocuments(ctx, st); err != nil {
		f := &Failure{Stage: StageMigrateDocuments, Err: err}
		revertErr := o.applyTemplateDelta(ctx, st.updatedTemplates, st.originalTemplates)
		if revertErr != nil {
			f.RecoveryErr = revertErr
			f.Hint = fmt.Sprintf("template revert failed; run restore_templates %s", st.templatesFile)
			return Result{}, f
		}
		if err := o.recoverFromShadows(ctx, st); err != nil {
			f.RecoveryErr = err
			f.Hint = fmt.Sprintf("index revert failed; run restore_indexes %s", st.indexesFile)
			return Result{}, f
		}
		f.Recovered = true
		f.Hint = "templates and indexes reverted to their pre-run state from the shadow copies"
		return Result{}, f
	}

	// 10. DeleteShadows — non-fatal. Skipped entirely when the operator asked
	// to keep the shadows around for inspection (-k/--keep-dummies).
	if !o.cfg.Dry && !o.cfg.KeepDummies {
		if err := o.deleteShadows(ctx, st.affected); err != nil {
			o.logger.Warn("failed to delete shadow indexes; operator may run remove_dummies", zap.Error(err))
		}
	}

	// 11. WriteHistory
	if !o.cfg.NoHistory && !o.cfg.Dry {
		if err := o.ensureHistoryIndex(ctx); err != nil {
			return Result{}, &Failure{Stage: StageWriteHistory, Err: err,
				Hint: fmt.Sprintf("data is consistent; run restore_history %s", st.migrationsFile)}
		}
		if err := o.hist.Write(ctx, st.writer, pendingRecords); err != nil {
			return Result{}, &Failure{Stage: StageWriteHistory, Err: err,
				Hint: fmt.Sprintf("data is consistent; run restore_history %s", st.migrationsFile)}
		}
	}

	unitNames := detail.UnitOrder(st.pending)
	return Result{
		Report:         st.detail.Report(unitNames),
		Affected:       st.affected,
		TemplatesFile:  st.templatesFile,
		IndexesFile:    st.indexesFile,
		MigrationsFile: st.migrationsFile,
	}, nil
}

// ensureHistoryIndex puts the history template and, since this
// abstraction's Store has no implicit auto-create-on-write, creates the
// history index itself the first time it is needed — the real store would
// otherwise auto-create it from the just-applied template on first bulk
// write, the same assumption stage 9 relies on for migrated documents.
func (o *Orchestrator) ensureHistoryIndex(ctx context.Context) error {
	if err := o.hist.EnsureTemplate(ctx); err != nil {
		return err
	}
	cfg := o.cfg.History
	index := cfg.Index
	if index == "" {
		index = history.DefaultIndex
	}
	exists, err := o.store.IndexExists(ctx, index)
	if err != nil {
		return fmt.Errorf("check history index: %w", err)
	}
	if exists {
		return nil
	}
	if err := o.store.CreateIndex(ctx, index, store.IndexSettings{}); err != nil {
		return fmt.Errorf("create history index: %w", err)
	}
	return nil
}

func (o *Orchestrator) resolvePending(st *runState, names []string) error {
	if len(names) > 0 {
		want := make(map[string]bool, len(names))
		for _, name := range names {
			if _, ok := o.reg.Get(name); !ok {
				return fmt.Errorf("no migration registered as %q", name)
			}
			want[name] = true
		}
		units := make([]*registry.MigrationUnit, 0, len(want))
		for _, u := range o.reg.All() {
			if want[u.Name] {
				units = append(units, u)
			}
		}
		st.pending = units
		return nil
	}

	performed, err := o.hist.Scan(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		return err
	}
	st.pending = o.reg.Pending(history.PerformedNames(performed))
	return nil
}

// resolveAffected computes the union of concrete indexes matching any
// document-transform pattern of any pending unit, persists recovery file 2,
// and snapshots each affected index's settings with the creation-date field
// stripped (§3 Settings snapshot; original_source strips it from under the
// nested "index" settings key, not a top-level field).
func (o *Orchestrator) resolveAffected(ctx context.Context, st *runState) error {
	merged := registry.MergeDocumentTransforms(st.pending)

	seen := make(map[string]bool)
	var affected []string
	for pattern := range merged {
		names, err := o.store.ListIndexes(ctx, pattern)
		if err != nil {
			return fmt.Errorf("list indexes for pattern %s: %w", pattern, err)
		}
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				affected = append(affected, name)
			}
		}
	}
	st.affected = affected
	o.logger.Info("resolved affected indexes", zap.Strings("indexes", affected))

	if !o.cfg.Dry {
		path, err := o.rec.WriteIndexes(st.stamp, st.affected)
		if err != nil {
			return fmt.Errorf("persist affected-index recovery file: %w", err)
		}
		st.indexesFile = path
	}

	settings := make(map[string]store.IndexSettings, len(affected))
	for _, name := range affected {
		s, err := o.store.GetSettings(ctx, name)
		if err != nil {
			return fmt.Errorf("get settings for %s: %w", name, err)
		}
		settings[name] = stripCreationDate(s)
	}
	st.settings = settings
	return nil
}

// stripCreationDate removes settings.index.creation_date, the field the
// store rejects on index creation (§3 Settings snapshot).
func stripCreationDate(s store.IndexSettings) store.IndexSettings {
	out := s
	if out.Settings == nil {
		return out
	}
	idx, ok := out.Settings["index"].(map[string]any)
	if !ok {
		return out
	}
	if _, has := idx["creation_date"]; !has {
		return out
	}
	clone := make(map[string]any, len(idx))
	for k, v := range idx {
		clone[k] = v
	}
	delete(clone, "creation_date")
	settingsClone := make(map[string]any, len(out.Settings))
	for k, v := range out.Settings {
		settingsClone[k] = v
	}
	settingsClone["index"] = clone
	out.Settings = settingsClone
	return out
}

// computeUpdatedTemplates deep-copies original and folds every pending
// unit's templateTransform over it in unit order. A transform returning a
// nil map is fatal.
func (o *Orchestrator) computeUpdatedTemplates(original store.Templates, pending []*registry.MigrationUnit) (store.Templates, error) {
	current := cloneTemplates(original)
	for _, u := range pending {
		if u.TemplateTransform == nil {
			continue
		}
		next, err := u.TemplateTransform(current)
		if err != nil {
			return nil, fmt.Errorf("template transform %s: %w", u.Name, err)
		}
		if next == nil {
			return nil, fmt.Errorf("template transform %s returned no templates", u.Name)
		}
		current = next
	}
	return current, nil
}

func cloneTemplates(t store.Templates) store.Templates {
	out := make(store.Templates, len(t))
	for name, body := range t {
		clone := make(store.TemplateBody, len(body))
		for k, v := range body {
			clone[k] = v
		}
		out[name] = clone
	}
	return out
}

// shadowName returns the shadow index name for an affected index.
func (o *Orchestrator) shadowName(index string) string {
	return o.cfg.ShadowPrefix + index
}

// stageShadows ensures a fresh shadow index exists for every affected index
// and copies its documents across, then waits for the store to settle
// before the template/document stages begin (§4.G stage 7).
func (o *Orchestrator) stageShadows(ctx context.Context, st *runState) error {
	if o.cfg.Dry {
		return nil
	}
	for _, index := range st.affected {
		shadow := o.shadowName(index)
		if err := o.store.DeleteIndex(ctx, shadow); err != nil {
			return fmt.Errorf("delete pre-existing shadow %s: %w", shadow, err)
		}
		if err := o.store.CreateIndex(ctx, shadow, st.settings[index]); err != nil {
			return fmt.Errorf("create shadow %s: %w", shadow, err)
		}
		if err := o.copyIndex(ctx, index, shadow); err != nil {
			return fmt.Errorf("copy %s into shadow: %w", index, err)
		}
	}
	sleep(ctx, clampDuration(len(st.affected)))
	return nil
}

// copyIndex streams every document of src into dst, preserving type, id,
// and source.
func (o *Orchestrator) copyIndex(ctx context.Context, src, dst string) error {
	it, err := o.store.Scan(ctx, store.ScanOptions{Index: src})
	if err != nil {
		return err
	}
	defer it.Close()

	w := bulkwriter.New(o.store, o.logger, o.cfg.BulkWriter)
	for {
		doc, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		action := store.BulkAction{
			OpType: store.OpIndex,
			Index:  dst,
			Type:   doc.Type,
			ID:     doc.ID,
			Source: doc.Source,
		}
		if err := w.Add(ctx, action); err != nil {
			return err
		}
	}
	return w.Flush(ctx)
}

// clampDuration mirrors §4.G's clamp(|affected|, 5, 20) seconds settle wait.
func clampDuration(affected int) time.Duration {
	n := affected
	if n < 5 {
		n = 5
	}
	if n > 20 {
		n = 20
	}
	return time.Duration(n) * time.Second
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// revertShadows deletes the shadow index for every name in affected,
// logging (not failing) on individual delete errors, since this is itself
// recovery code run after a stage has already failed.
func (o *Orchestrator) revertShadows(ctx context.Context, affected []string) {
	for _, index := range affected {
		if err := o.store.DeleteIndex(ctx, o.shadowName(index)); err != nil {
			o.logger.Warn("failed to remove shadow during recovery", zap.String("index", index), zap.Error(err))
		}
	}
}

func (o *Orchestrator) deleteShadows(ctx context.Context, affected []string) error {
	var firstErr error
	for _, index := range affected {
		if err := o.store.DeleteIndex(ctx, o.shadowName(index)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// applyTemplateDelta deletes-then-creates (or deletes, or leaves untouched)
// each template name so that the store's template catalog transitions from
// before to after (§4.G stage 8). Applying it with before/after swapped
// reverts the same delta, which StageApplyTemplates's and
// StageMigrateDocuments's failure handlers both rely on.
func (o *Orchestrator) applyTemplateDelta(ctx context.Context, before, after store.Templates) error {
	for name, body := range after {
		prior, existed := before[name]
		if existed && reflect.DeepEqual(prior, body) {
			continue
		}
		if existed {
			if err := o.store.DeleteTemplate(ctx, name); err != nil {
				return fmt.Errorf("delete template %s before re-create: %w", name, err)
			}
		}
		if err := o.store.PutTemplate(ctx, name, body, true); err != nil {
			return fmt.Errorf("put template %s: %w", name, err)
		}
	}
	for name := range before {
		if _, stillPresent := after[name]; !stillPresent {
			if err := o.store.DeleteTemplate(ctx, name); err != nil {
				return fmt.Errorf("delete removed template %s: %w", name, err)
			}
		}
	}
	return nil
}

// migrateDocuments is stage 9. Per original_source (migrates.py), the
// engine deletes every affected original index before it starts streaming
// documents back, relying on the store to auto-create an index on its first
// write using the already-applied template's mappings. This abstraction's
// Store has no such implicit behavior, so the engine instead deletes every
// affected original up front (reproducing the exact store-visible state the
// failure table describes for this stage: "originals were deleted and
// shadows still hold the good copy") and lazily recreates each destination
// index — from the settings snapshot of the affected index currently being
// processed — the first time a document is actually written to it. This
// also correctly handles a reindex rename (S6): the source index is deleted
// and, since no document folds back to it, never recreated.
func (o *Orchestrator) migrateDocuments(ctx context.Context, st *runState) error {
	if !o.cfg.Dry {
		for _, index := range st.affected {
			if err := o.store.DeleteIndex(ctx, index); err != nil {
				return fmt.Errorf("delete original %s: %w", index, err)
			}
		}
	}

	created := make(map[string]bool)
	for _, index := range st.affected {
		scanTarget := o.shadowName(index)
		if o.cfg.Dry {
			scanTarget = index
		}
		if err := o.migrateOneIndex(ctx, st, index, scanTarget, created); err != nil {
			return fmt.Errorf("migrate %s: %w", index, err)
		}
	}
	return st.writer.Flush(ctx)
}

func (o *Orchestrator) migrateOneIndex(ctx context.Context, st *runState, original, scanTarget string, created map[string]bool) error {
	it, err := o.store.Scan(ctx, store.ScanOptions{Index: scanTarget})
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		doc, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		doc.Index = original // un-shadow immediately upon read

		out, deleted, err := o.foldDocument(st.pending, doc, st.detail)
		if err != nil {
			if o.cfg.Dry {
				continue // dry run keeps scanning to gather complete statistics
			}
			return err
		}
		if deleted || o.cfg.Dry {
			continue
		}
		if out.Index == "" || out.Type == "" || out.Source == nil {
			return fmt.Errorf("transform produced a document missing index, type, or source (id=%s)", out.ID)
		}

		if !created[out.Index] {
			if err := o.store.CreateIndex(ctx, out.Index, st.settings[original]); err != nil && !store.IsConflict(err) {
				return fmt.Errorf("create destination index %s: %w", out.Index, err)
			}
			created[out.Index] = true
		}

		action := store.BulkAction{
			OpType: store.OpIndex,
			Index:  out.Index,
			Type:   out.Type,
			ID:     out.ID,
			Source: out.Source,
		}
		if err := st.writer.Add(ctx, action); err != nil {
			return err
		}
	}
	return nil
}

// foldDocument applies every pending unit's applicable transform to doc in
// unit order, recording pre/touch/delete/error/post on rec as it goes
// (§4.D, §4.G stage 9).
func (o *Orchestrator) foldDocument(pending []*registry.MigrationUnit, doc store.Document, rec *detail.Recorder) (*store.Document, bool, error) {
	rec.Pre(doc)
	current := doc
	for _, u := range pending {
		out, applied, err := o.applyUnitTransform(u, current)
		if err != nil {
			rec.Error(u.Name, current, err)
			return nil, false, err
		}
		if !applied {
			continue
		}
		if out == nil {
			rec.Delete(u.Name, current)
			rec.Post(current)
			return nil, true, nil
		}
		rec.Touch(u.Name, current)
		current = *out
	}
	rec.Post(current)
	return &current, false, nil
}

// applyUnitTransform finds the document transform of u whose index pattern
// matches doc.Index and whose type pattern matches doc.Type, applying it.
// More than one matching index pattern, or more than one matching type
// pattern within the matched one, is a fatal ambiguity (§3 MigrationUnit
// invariant).
func (o *Orchestrator) applyUnitTransform(u *registry.MigrationUnit, doc store.Document) (out *store.Document, applied bool, err error) {
	if u.DocumentTransforms == nil {
		return nil, false, nil
	}

	var matchedIndexPattern string
	var byType map[string]registry.DocumentTransform
	for pattern, types := range u.DocumentTransforms {
		m, err := o.patterns.Get(pattern)
		if err != nil {
			return nil, false, err
		}
		if !m.Match(doc.Index) {
			continue
		}
		if byType != nil {
			return nil, false, fmt.Errorf("%s: index %q matches both patterns %q and %q", u.Name, doc.Index, matchedIndexPattern, pattern)
		}
		matchedIndexPattern = pattern
		byType = types
	}
	if byType == nil {
		return nil, false, nil
	}

	var matchedTypePattern string
	var transform registry.DocumentTransform
	for pattern, fn := range byType {
		m, err := o.patterns.Get(pattern)
		if err != nil {
			return nil, false, err
		}
		if !m.Match(doc.Type) {
			continue
		}
		if transform != nil {
			return nil, false, fmt.Errorf("%s: %s/%s matches both type patterns %q and %q", u.Name, doc.Index, doc.Type, matchedTypePattern, pattern)
		}
		matchedTypePattern = pattern
		transform = fn
	}
	if transform == nil {
		return nil, false, nil
	}

	result, err := transform(doc)
	if err != nil {
		return nil, true, err
	}
	return result, true, nil
}

// RestoreIndexes replays stages 9-10 against a previously-persisted
// affected-index list, fetching settings from each entry's shadow index
// rather than from the (possibly now-absent) original (§4.H restore_indexes).
func (o *Orchestrator) RestoreIndexes(ctx context.Context, affected []string) error {
	settings := make(map[string]store.IndexSettings, len(affected))
	for _, index := range affected {
		s, err := o.store.GetSettings(ctx, o.shadowName(index))
		if err != nil {
			return fmt.Errorf("get shadow settings for %s: %w", index, err)
		}
		settings[index] = stripCreationDate(s)
	}
	st := &runState{affected: affected, settings: settings}
	return o.recoverFromShadows(ctx, st)
}

// recoverFromShadows is stage 9's failure recovery: for each affected index
// whose shadow still exists, recreate the original from its snapshotted
// settings and copy the shadow's documents back, then remove the shadows.
func (o *Orchestrator) recoverFromShadows(ctx context.Context, st *runState) error {
	for _, index := range st.affected {
		shadow := o.shadowName(index)
		exists, err := o.store.IndexExists(ctx, shadow)
		if err != nil {
			return fmt.Errorf("check shadow %s: %w", shadow, err)
		}
		if !exists {
			continue
		}
		if err := o.store.DeleteIndex(ctx, index); err != nil {
			return fmt.Errorf("delete partial %s: %w", index, err)
		}
		if err := o.store.CreateIndex(ctx, index, st.settings[index]); err != nil {
			return fmt.Errorf("recreate %s: %w", index, err)
		}
		if err := o.copyIndex(ctx, shadow, index); err != nil {
			return fmt.Errorf("copy shadow back to %s: %w", index, err)
		}
	}
	return o.deleteShadows(ctx, st.affected)
}
