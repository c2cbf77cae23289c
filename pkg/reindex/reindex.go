// Package reindex synthesizes the internal migration units that copy an
// index into itself or into a renamed target (§4.I). It is grounded on
// pkg/transfer's path-template rewriting idiom (a pure name/key rewrite
// applied per document), adapted here to the `_index` field of a document
// rather than a destination object key.
package reindex

import (
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/migrates/pkg/registry"
	"github.com/3leaps/migrates/pkg/store"
)

// epoch is the fixed date (1900-01-01) spec §4.I assigns to every
// synthesized reindex unit, placing it first in (date, name) application order.
var epoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// Spec describes one reindex request: copy Source into itself, or into
// Target when Target is non-empty (a rename/retarget).
type Spec struct {
	Source string
	Target string
}

// Name returns the internal migration unit name this Spec builds:
// "migrates/reindex/<source>" or "migrates/reindex/<source>/<target>".
func (s Spec) Name() string {
	if s.Target == "" {
		return fmt.Sprintf("migrates/reindex/%s", s.Source)
	}
	return fmt.Sprintf("migrates/reindex/%s/%s", s.Source, s.Target)
}

// Build synthesizes the internal MigrationUnit for spec: repeat=true,
// date=1900-01-01, a single document transform over the source index
// mapping every type (`"*"`) to an identity transform, or — when Target is
// set — a transform that overwrites the document's Index field with Target.
// The unit has no template transform, and Internal is set so its `/`-bearing
// name bypasses Registry's ordinary validation.
func Build(spec Spec) registry.MigrationUnit {
	transform := identityTransform
	if spec.Target != "" {
		transform = retargetTransform(spec.Target)
	}

	return registry.MigrationUnit{
		Name:     spec.Name(),
		Date:     epoch,
		Repeat:   true,
		Internal: true,
		DocumentTransforms: registry.DocumentTransforms{
			spec.Source: {
				"*": transform,
			},
		},
	}
}

// ParseSpec parses a CLI reindex argument: either a bare index name, or
// "source=>target" for a rename (§6 EXTERNAL INTERFACES).
func ParseSpec(raw string) (Spec, error) {
	if source, target, ok := strings.Cut(raw, "=>"); ok {
		source = strings.TrimSpace(source)
		target = strings.TrimSpace(target)
		if source == "" || target == "" {
			return Spec{}, fmt.Errorf("reindex: invalid spec %q: source and target must both be non-empty", raw)
		}
		return Spec{Source: source, Target: target}, nil
	}
	name := strings.TrimSpace(raw)
	if name == "" {
		return Spec{}, fmt.Errorf("reindex: invalid spec %q: must not be empty", raw)
	}
	return Spec{Source: name}, nil
}

func identityTransform(doc store.Document) (*store.Document, error) {
	return &doc, nil
}

func retargetTransform(target string) registry.DocumentTransform {
	return func(doc store.Document) (*store.Document, error) {
		doc.Index = target
		return &doc, nil
	}
}
