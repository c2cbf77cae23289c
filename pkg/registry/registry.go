// Package registry holds the process-wide catalog of migration units (§4.C).
// A MigrationUnit is an immutable descriptor: a name, a date used as the
// primary sort key (the name breaks ties), and an optional pair of
// document/template transforms.
// Units are registered once at startup and the Orchestrator consults the
// Registry to decide which units are pending for a given run.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/3leaps/migrates/pkg/store"
)

// ErrDuplicateName is returned when Add is called with a name already present
// in the registry.
var ErrDuplicateName = errors.New("registry: duplicate migration name")

// ErrSlashInName is returned when Add is called with a non-internal unit
// whose name contains '/'. The '/' character is reserved for engine-
// synthesized internal units, such as the reindex builder's
// "migrates/reindex/<index>" names (§4.I).
var ErrSlashInName = errors.New("registry: name contains '/' but unit is not internal")

// DocumentTransform maps one document to its replacement, or to nil to
// delete it (§4.C MigrationUnit). A returned error aborts the run.
type DocumentTransform func(doc store.Document) (*store.Document, error)

// TemplateTransform maps the current template catalog to its replacement.
type TemplateTransform func(templates store.Templates) (store.Templates, error)

// DocumentTransforms is a unit's document-transform table: index-name
// pattern -> doc-type pattern -> transform.
type DocumentTransforms map[string]map[string]DocumentTransform

// MigrationUnit is an immutable migration descriptor.
type MigrationUnit struct {
	Name               string
	Date               time.Time
	Description        string
	Repeat             bool
	Internal           bool
	DocumentTransforms DocumentTransforms
	TemplateTransform  TemplateTransform
}

// DocumentTransformer is implemented by a migration source that contributes
// document transforms. Mirrors the optional transformDocuments() member of
// the decorator-registered class this pattern is modeled on.
type DocumentTransformer interface {
	TransformDocuments() DocumentTransforms
}

// TemplateTransformer is implemented by a migration source that contributes
// a template transform. Mirrors the optional transformTemplates(t) member.
type TemplateTransformer interface {
	TransformTemplates(templates store.Templates) (store.Templates, error)
}

// Registry is the process-wide, name-keyed store of migration units.
type Registry struct {
	mu    sync.RWMutex
	units map[string]*MigrationUnit
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{units: make(map[string]*MigrationUnit)}
}

// Add inserts unit, rejecting a duplicate name or a non-internal name
// containing '/'.
func (r *Registry) Add(unit MigrationUnit) error {
	if unit.Name == "" {
		return errors.New("registry: name must not be empty")
	}
	if !unit.Internal && strings.Contains(unit.Name, "/") {
		return fmt.Errorf("%w: %s", ErrSlashInName, unit.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.units[unit.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, unit.Name)
	}
	u := unit
	r.units[u.Name] = &u
	return nil
}

// Register is the decorator-style convenience over Add: it builds a
// MigrationUnit from name/date/description/repeat/internal plus whatever
// optional transforms src implements, then adds it.
func (r *Registry) Register(name string, date time.Time, description string, repeat, internal bool, src any) error {
	unit := MigrationUnit{
		Name:        name,
		Date:        date,
		Description: description,
		Repeat:      repeat,
		Internal:    internal,
	}
	if dt, ok := src.(DocumentTransformer); ok {
		unit.DocumentTransforms = dt.TransformDocuments()
	}
	if tt, ok := src.(TemplateTransformer); ok {
		unit.TemplateTransform = tt.TransformTemplates
	}
	return r.Add(unit)
}

// Get returns the unit registered under name, if any.
func (r *Registry) Get(name string) (*MigrationUnit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[name]
	return u, ok
}

// All returns every registered unit, sorted ascending by (date, name).
func (r *Registry) All() []*MigrationUnit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*MigrationUnit, 0, len(r.units))
	for _, u := range r.units {
		out = append(out, u)
	}
	sortUnits(out)
	return out
}

// Pending returns units whose name is absent from performedNames, or whose
// Repeat flag is set regardless of history, sorted ascending by (date, name).
func (r *Registry) Pending(performedNames map[string]bool) []*MigrationUnit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*MigrationUnit, 0, len(r.units))
	for _, u := range r.units {
		if u.Repeat || !performedNames[u.Name] {
			out = append(out, u)
		}
	}
	sortUnits(out)
	return out
}

func sortUnits(units []*MigrationUnit) {
	sort.Slice(units, func(i, j int) bool {
		if !units[i].Date.Equal(units[j].Date) {
			return units[i].Date.Before(units[j].Date)
		}
		return units[i].Name < units[j].Name
	})
}

// MergedTransforms is the index-pattern -> type-pattern -> ordered list of
// transforms produced by MergeDocumentTransforms. It is used only to
// discover which patterns need resolving to concrete indexes/types; the
// Orchestrator applies each unit's own transform in unit order, never this
// merged list directly (§4.C).
type MergedTransforms map[string]map[string][]DocumentTransform

// MergeDocumentTransforms collects the document-transform pattern tables of
// units into one structure so the Orchestrator can resolve every pattern
// that appears across the whole set of units in a single pass.
func MergeDocumentTransforms(units []*MigrationUnit) MergedTransforms {
	merged := make(MergedTransforms)
	for _, u := range units {
		for indexPattern, byType := range u.DocumentTransforms {
			dst, ok := merged[indexPattern]
			if !ok {
				dst = make(map[string][]DocumentTransform)
				merged[indexPattern] = dst
			}
			for typePattern, transform := range byType {
				dst[typePattern] = append(dst[typePattern], transform)
			}
		}
	}
	return merged
}
