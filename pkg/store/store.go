// Package store defines the interface the migration engine uses to talk to
// the index store (the clustered, sharded, JSON-document engine being
// migrated). The concrete client — bulk writes, scan/scroll iteration,
// template CRUD, index CRUD, settings/mapping retrieval, version probe — is
// an external collaborator out of scope for this module; this package only
// describes the shape every engine component depends on.
package store

import "context"

// TemplateBody is an opaque, store-defined template document (settings +
// mappings + the index-name pattern it applies to). It round-trips through
// JSON without interpretation by the engine, except where §4.J requires
// shaping specific field types.
type TemplateBody map[string]any

// Templates maps template name to body, as returned by GetTemplates.
type Templates map[string]TemplateBody

// IndexSettings is the mappings and settings snapshot for one index, as
// described in the DATA MODEL's "Settings snapshot". GetSettings returns it
// as the store reports it; the orchestrator strips the creation-date field
// before reusing it to create an index.
type IndexSettings struct {
	Settings map[string]any
	Mappings map[string]any
}

// Document is one document read from or written to the store.
type Document struct {
	Index  string
	Type   string
	ID     string
	Source map[string]any
}

// Clone returns a deep-enough copy of the document for before/after diffing.
// Source is copied recursively through nested maps and slices; other values
// are copied as-is, since the engine treats it as opaque JSON-shaped data.
func (d Document) Clone() Document {
	return Document{
		Index:  d.Index,
		Type:   d.Type,
		ID:     d.ID,
		Source: cloneMap(d.Source),
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return t
	}
}

// Bulk action op types, per the DATA MODEL's BulkAction.
const (
	OpIndex  = "index"
	OpDelete = "delete"
	OpCreate = "create"
	OpUpdate = "update"
)

// BulkAction is one entry in a bulk request. OpType defaults to OpIndex
// when empty, per §4.A.
type BulkAction struct {
	OpType string
	Index  string
	Type   string
	ID     string
	Source map[string]any
}

// EffectiveOpType returns OpType, defaulting to OpIndex when unset.
func (a BulkAction) EffectiveOpType() string {
	if a.OpType == "" {
		return OpIndex
	}
	return a.OpType
}

// BulkItemError describes one failed action within a bulk response.
type BulkItemError struct {
	Index  string
	Type   string
	ID     string
	Reason string
}

// BulkResult is the outcome of one bulk call.
type BulkResult struct {
	HasErrors bool
	Errors    []BulkItemError
}

// ScanOptions selects the slice of documents a Scan call should iterate.
// Index accepts the store's own wildcard syntax (used to resolve concrete
// indexes matching a pattern); Type, when non-empty, restricts to one
// concrete doc type.
type ScanOptions struct {
	Index string
	Type  string
}

// DocumentIterator yields documents in the store's stable sort-by-document
// order, so repeated scans of an unmodified index yield the same sequence
// (§5 Ordering guarantees).
type DocumentIterator interface {
	Next(ctx context.Context) (Document, bool, error)
	Close() error
}

// Store is the full interface the orchestrator and its collaborators use.
// It is intentionally flat rather than split into capability interfaces
// (unlike pkg/provider's optional-capability pattern) because every method
// here is required for a document-indexing store; none are optional.
type Store interface {
	// Version returns the raw server version string (§4.J).
	Version(ctx context.Context) (string, error)

	// ListIndexes returns concrete index names matching pattern, using the
	// store's own wildcard resolution.
	ListIndexes(ctx context.Context, pattern string) ([]string, error)

	// IndexExists reports whether a concrete index name currently exists.
	IndexExists(ctx context.Context, index string) (bool, error)

	// GetSettings returns the mappings/settings snapshot for index.
	GetSettings(ctx context.Context, index string) (IndexSettings, error)

	// CreateIndex creates index with the given settings/mappings.
	CreateIndex(ctx context.Context, index string, settings IndexSettings) error

	// DeleteIndex deletes index. Deleting a non-existent index is not an
	// error (idempotent), matching how the engine uses it for shadow cleanup.
	DeleteIndex(ctx context.Context, index string) error

	// Scan opens a document iterator over opts.
	Scan(ctx context.Context, opts ScanOptions) (DocumentIterator, error)

	// Bulk submits a batch of actions. A non-nil error indicates a
	// connectivity failure; bulk-level item failures are reported via the
	// returned BulkResult with a nil error.
	Bulk(ctx context.Context, actions []BulkAction) (BulkResult, error)

	// GetTemplates returns the full template catalog, keyed by name.
	GetTemplates(ctx context.Context) (Templates, error)

	// PutTemplate creates or overwrites a template. When create is true the
	// store must reject an existing template of the same name.
	PutTemplate(ctx context.Context, name string, body TemplateBody, create bool) error

	// DeleteTemplate removes a template. Deleting an absent template is not
	// an error.
	DeleteTemplate(ctx context.Context, name string) error
}
