// Package detail implements the per-run accumulator that tracks what a
// migration run did: per-index touch/delete counts, per-migration
// touch/delete/error counts, captured exceptions, and at most one
// before/after diff per (index, type) pair (§4.D). It is grounded on the
// teacher's output.Record envelope style for how structured results are
// assembled and reported, adapted here to the migration domain instead of a
// transfer-job summary.
package detail

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/migrates/pkg/match"
	"github.com/3leaps/migrates/pkg/registry"
	"github.com/3leaps/migrates/pkg/store"
)

// indexTypeKey identifies one (index, type) pair for diff/exception bookkeeping.
type indexTypeKey struct {
	Index string
	Type  string
}

// Exception is one captured transform error, attributed to the unit that
// raised it.
type Exception struct {
	UnitName string
	Err      error
}

// indexCounts tracks touched/deleted counts for one concrete index.
type indexCounts struct {
	touched int
	deleted int
}

// unitCounts tracks touched/deleted/errored counts for one migration unit.
type unitCounts struct {
	touched int
	deleted int
	errored int
}

// Recorder accumulates detail for a single orchestrator run. Not safe for
// concurrent use: a run drives one Recorder sequentially (§5).
type Recorder struct {
	logger  *zap.Logger
	verbose bool // when false (and patterns is empty), pre/post never capture before/after state
	patterns []*match.Matcher // when non-empty, overrides verbose with a per-index pattern check (-l/--detail)

	byIndex map[string]*indexCounts
	byUnit  map[string]*unitCounts

	exceptions map[indexTypeKey][]Exception
	diffLogged map[indexTypeKey]bool

	pending map[indexTypeKey]*pendingDoc
}

type pendingDoc struct {
	before store.Document
	units  []string
	status string // "", "deleted", "errored"
}

// New creates an empty Recorder. When verbose is false, pre/post never
// capture or log before/after diffs (still counts touched/deleted/errored).
func New(logger *zap.Logger, verbose bool) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		logger:     logger,
		verbose:    verbose,
		byIndex:    make(map[string]*indexCounts),
		byUnit:     make(map[string]*unitCounts),
		exceptions: make(map[indexTypeKey][]Exception),
		diffLogged: make(map[indexTypeKey]bool),
		pending:    make(map[indexTypeKey]*pendingDoc),
	}
}

// SetDetailPatterns restricts before/after diff capture to indexes matching
// one of patterns (-l/--detail), overriding the plain verbose flag passed to
// New. An invalid pattern is returned as an error and leaves prior state
// untouched.
func (r *Recorder) SetDetailPatterns(patterns []string) error {
	compiled := make([]*match.Matcher, 0, len(patterns))
	for _, p := range patterns {
		m, err := match.New(p)
		if err != nil {
			return err
		}
		compiled = append(compiled, m)
	}
	r.patterns = compiled
	return nil
}

func (r *Recorder) isVerboseFor(index string) bool {
	if len(r.patterns) == 0 {
		return r.verbose
	}
	for _, m := range r.patterns {
		if m.Match(index) {
			return true
		}
	}
	return false
}

// Pre registers a document entering the transform fold: increments the
// index's touched counter and, when detail capture is enabled for this
// (index,type) pair and not yet logged, deep-clones the pre-state.
func (r *Recorder) Pre(doc store.Document) {
	key := indexTypeKey{Index: doc.Index, Type: doc.Type}
	r.indexCountsFor(doc.Index).touched++

	p := &pendingDoc{}
	if r.isVerboseFor(doc.Index) && !r.diffLogged[key] {
		p.before = doc.Clone()
	}
	r.pending[key] = p
}

// Touch records that unit applied a (non-deleting) transform to the
// in-flight document.
func (r *Recorder) Touch(unitName string, doc store.Document) {
	r.unitCountsFor(unitName).touched++
	key := indexTypeKey{Index: doc.Index, Type: doc.Type}
	if p, ok := r.pending[key]; ok {
		p.units = append(p.units, unitName)
	}
}

// Delete records that unit deleted the in-flight document.
func (r *Recorder) Delete(unitName string, doc store.Document) {
	r.unitCountsFor(unitName).deleted++
	key := indexTypeKey{Index: doc.Index, Type: doc.Type}
	r.indexCountsFor(doc.Index).deleted++
	if p, ok := r.pending[key]; ok {
		p.units = append(p.units, unitName)
		p.status = "deleted"
	}
}

// Error records that unit's transform raised on the in-flight document.
func (r *Recorder) Error(unitName string, doc store.Document, err error) {
	r.unitCountsFor(unitName).errored++
	key := indexTypeKey{Index: doc.Index, Type: doc.Type}
	r.exceptions[key] = append(r.exceptions[key], Exception{UnitName: unitName, Err: err})
	if p, ok := r.pending[key]; ok {
		p.units = append(p.units, unitName)
		p.status = "errored"
	}
}

// Post closes out the in-flight document: if detail capture was taken for
// this pair, logs which units touched it and either the deletion/error note
// or the full before/after diff, at most once per (index,type) (P5).
func (r *Recorder) Post(doc store.Document) {
	key := indexTypeKey{Index: doc.Index, Type: doc.Type}
	p, ok := r.pending[key]
	delete(r.pending, key)
	if !ok || !r.isVerboseFor(doc.Index) {
		return
	}

	switch p.status {
	case "deleted":
		r.logger.Info("document deleted",
			zap.String("index", doc.Index), zap.String("type", doc.Type), zap.String("id", doc.ID),
			zap.Strings("units", p.units))
	case "errored":
		r.logger.Info("document errored",
			zap.String("index", doc.Index), zap.String("type", doc.Type), zap.String("id", doc.ID),
			zap.Strings("units", p.units))
	default:
		if !r.diffLogged[key] {
			r.diffLogged[key] = true
			r.logger.Info("document transformed",
				zap.String("index", doc.Index), zap.String("type", doc.Type), zap.String("id", doc.ID),
				zap.Strings("units", p.units),
				zap.Any("before", p.before.Source),
				zap.Any("after", doc.Source))
		}
	}
}

func (r *Recorder) indexCountsFor(index string) *indexCounts {
	c, ok := r.byIndex[index]
	if !ok {
		c = &indexCounts{}
		r.byIndex[index] = c
	}
	return c
}

func (r *Recorder) unitCountsFor(name string) *unitCounts {
	c, ok := r.byUnit[name]
	if !ok {
		c = &unitCounts{}
		r.byUnit[name] = c
	}
	return c
}

// IndexSummary is one line of the per-index section of Report.
type IndexSummary struct {
	Index   string
	Touched int
	Deleted int
}

// UnitSummary is one line of the per-migration section of Report.
type UnitSummary struct {
	Name    string
	Touched int
	Deleted int
	Errored int
}

// ExceptionSample is up to three example exceptions recorded for one
// (index, type) pair.
type ExceptionSample struct {
	Index   string
	Type    string
	Samples []string
}

// Report is the accumulated run summary (§4.D report()).
type Report struct {
	ByIndex    []IndexSummary
	ByUnit     []UnitSummary
	Exceptions []ExceptionSample
}

// Report summarizes the run: per-index touched/deleted descending by
// touched, per-migration counts in one list ordered by error count
// descending (units with equal error counts keep the order they were
// applied in; there is no separate list in application order), and up to
// three example exceptions per (index, type).
func (r *Recorder) Report(unitOrder []string) Report {
	var rep Report

	for index, c := range r.byIndex {
		rep.ByIndex = append(rep.ByIndex, IndexSummary{Index: index, Touched: c.touched, Deleted: c.deleted})
	}
	sort.Slice(rep.ByIndex, func(i, j int) bool {
		if rep.ByIndex[i].Touched != rep.ByIndex[j].Touched {
			return rep.ByIndex[i].Touched > rep.ByIndex[j].Touched
		}
		return rep.ByIndex[i].Index < rep.ByIndex[j].Index
	})

	seen := make(map[string]bool, len(unitOrder))
	for _, name := range unitOrder {
		c, ok := r.byUnit[name]
		if !ok {
			continue
		}
		seen[name] = true
		rep.ByUnit = append(rep.ByUnit, UnitSummary{Name: name, Touched: c.touched, Deleted: c.deleted, Errored: c.errored})
	}
	// Any unit counted but absent from unitOrder (defensive: callers always
	// pass the full pending list) is appended, sorted, so nothing is lost.
	var extra []string
	for name := range r.byUnit {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		c := r.byUnit[name]
		rep.ByUnit = append(rep.ByUnit, UnitSummary{Name: name, Touched: c.touched, Deleted: c.deleted, Errored: c.errored})
	}
	sort.SliceStable(rep.ByUnit, func(i, j int) bool {
		return rep.ByUnit[i].Errored > rep.ByUnit[j].Errored
	})

	var keys []indexTypeKey
	for k := range r.exceptions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Index != keys[j].Index {
			return keys[i].Index < keys[j].Index
		}
		return keys[i].Type < keys[j].Type
	})
	for _, k := range keys {
		excs := r.exceptions[k]
		n := len(excs)
		if n > 3 {
			n = 3
		}
		samples := make([]string, n)
		for i := 0; i < n; i++ {
			samples[i] = fmt.Sprintf("%s: %v", excs[i].UnitName, excs[i].Err)
		}
		rep.Exceptions = append(rep.Exceptions, ExceptionSample{Index: k.Index, Type: k.Type, Samples: samples})
	}

	return rep
}

// String renders Report in the teacher's plain-text summary style.
func (rep Report) String() string {
	var sb strings.Builder
	sb.WriteString("indexes:\n")
	for _, is := range rep.ByIndex {
		fmt.Fprintf(&sb, "  %s: touched=%d deleted=%d\n", is.Index, is.Touched, is.Deleted)
	}
	sb.WriteString("migrations:\n")
	for _, us := range rep.ByUnit {
		fmt.Fprintf(&sb, "  %s: touched=%d deleted=%d errored=%d\n", us.Name, us.Touched, us.Deleted, us.Errored)
	}
	if len(rep.Exceptions) > 0 {
		sb.WriteString("exceptions:\n")
		for _, es := range rep.Exceptions {
			fmt.Fprintf(&sb, "  %s/%s:\n", es.Index, es.Type)
			for _, s := range es.Samples {
				fmt.Fprintf(&sb, "    - %s\n", s)
			}
		}
	}
	return sb.String()
}

// registryUnitNames is a small helper used by the Orchestrator to derive
// Report's unitOrder argument from a pending-units slice.
func registryUnitNames(units []*registry.MigrationUnit) []string {
	names := make([]string, len(units))
	for i, u := range units {
		names[i] = u.Name
	}
	return names
}

// UnitOrder is the exported form of registryUnitNames, used by callers that
// only have a pending-units slice in hand.
func UnitOrder(units []*registry.MigrationUnit) []string {
	return registryUnitNames(units)
}
