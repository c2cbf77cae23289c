// Package history is the migration engine's log of executed units, kept as
// ordinary documents in the index store itself rather than in a side
// database (§4.F). Ensuring the backing template/index exist follows the
// teacher's ensure-schema-on-open idiom from pkg/reflowstate.Store, adapted
// from a local SQLite schema to a store-side template.
package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/3leaps/migrates/pkg/bulkwriter"
	"github.com/3leaps/migrates/pkg/registry"
	"github.com/3leaps/migrates/pkg/store"
)

const (
	DefaultIndex    = "migrates_history"
	DefaultDocType  = "migration"
	DefaultTemplate = "migrates_history_template"
)

// Config names the history index, doc type, and template. Zero values fall
// back to the package defaults.
type Config struct {
	Index    string
	DocType  string
	Template string
}

func (c Config) withDefaults() Config {
	if c.Index == "" {
		c.Index = DefaultIndex
	}
	if c.DocType == "" {
		c.DocType = DefaultDocType
	}
	if c.Template == "" {
		c.Template = DefaultTemplate
	}
	return c
}

// Record is one executed-migration log entry (§3 HistoryRecord).
type Record struct {
	Timestamp     time.Time
	MigrationDate time.Time
	Name          string
	Description   string
	Internal      bool
}

// ID is the record's composite document id, "<name>/<YYYYMMDDhhmmss of run
// timestamp>", so repeated runs of the same unit produce distinct records.
func (r Record) ID() string {
	return fmt.Sprintf("%s/%s", r.Name, r.Timestamp.UTC().Format("20060102150405"))
}

func (r Record) source() map[string]any {
	return map[string]any{
		"timestamp":     r.Timestamp.UTC().Format(time.RFC3339),
		"migrationDate": r.MigrationDate.UTC().Format(time.RFC3339),
		"name":          r.Name,
		"description":   r.Description,
		"internal":      r.Internal,
	}
}

// ToBulkAction renders r as the BulkAction that writes it to the history index.
func (r Record) ToBulkAction(cfg Config) store.BulkAction {
	cfg = cfg.withDefaults()
	return store.BulkAction{
		OpType: store.OpIndex,
		Index:  cfg.Index,
		Type:   cfg.DocType,
		ID:     r.ID(),
		Source: r.source(),
	}
}

// Store reads and writes history records against an index store.
type Store struct {
	store  store.Store
	cfg    Config
	serverMajor int
}

// New binds a Store to s, using cfg (defaults applied) and the server's
// major version to shape the exact-match string fields in EnsureTemplate
// (§4.J).
func New(s store.Store, cfg Config, serverMajor int) *Store {
	return &Store{store: s, cfg: cfg.withDefaults(), serverMajor: serverMajor}
}

// EnsureTemplate idempotently PUTs the history template (create=false), so
// repeated calls overwrite rather than conflict. The exact-match string
// fields use `keyword` on server major ≥ 5, `string`+`not_analyzed` before
// that (§4.J).
func (s *Store) EnsureTemplate(ctx context.Context) error {
	var exactString map[string]any
	if s.serverMajor >= 5 {
		exactString = map[string]any{"type": "keyword", "index": true}
	} else {
		exactString = map[string]any{"type": "string", "index": "not_analyzed"}
	}

	body := store.TemplateBody{
		"template": s.cfg.Index,
		"mappings": map[string]any{
			s.cfg.DocType: map[string]any{
				"dynamic": false,
				"properties": map[string]any{
					"timestamp":     map[string]any{"type": "date"},
					"migrationDate": map[string]any{"type": "date"},
					"name":          exactString,
					"description":   exactString,
					"internal":      map[string]any{"type": "boolean"},
				},
			},
		},
	}

	if err := s.store.PutTemplate(ctx, s.cfg.Template, body, false); err != nil {
		return fmt.Errorf("history: ensure template: %w", err)
	}
	return nil
}

// Write appends one record per unit by feeding BulkActions through a Bulk
// Writer. Callers pass a writer already configured for the run (shared with
// document migration) or a dedicated one for restore_history.
func (s *Store) Write(ctx context.Context, w *bulkwriter.Writer, records []Record) error {
	for _, r := range records {
		if err := w.Add(ctx, r.ToBulkAction(s.cfg)); err != nil {
			return fmt.Errorf("history: write record %s: %w", r.ID(), err)
		}
	}
	return w.Flush(ctx)
}

// RecordsFromRun builds one Record per pending unit for a run that began at
// runTimestamp.
func RecordsFromRun(units []*registry.MigrationUnit, runTimestamp time.Time) []Record {
	out := make([]Record, len(units))
	for i, u := range units {
		out[i] = Record{
			Timestamp:     runTimestamp,
			MigrationDate: u.Date,
			Name:          u.Name,
			Description:   u.Description,
			Internal:      u.Internal,
		}
	}
	return out
}

// PerformedNames extracts the set of unit names with at least one history
// record, for Registry.Pending.
func PerformedNames(records []Record) map[string]bool {
	out := make(map[string]bool, len(records))
	for _, r := range records {
		out[r.Name] = true
	}
	return out
}

// Scan reads history records in [begin, end), sorted ascending by
// (timestamp, migrationDate) (§9 open question (iii): both keys are kept so
// that units sharing one run's timestamp still sort deterministically). A
// zero begin/end means unbounded on that side. An absent history index
// yields no records rather than an error — it means no migration has ever
// run.
func (s *Store) Scan(ctx context.Context, begin, end time.Time) ([]Record, error) {
	exists, err := s.store.IndexExists(ctx, s.cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("history: check index: %w", err)
	}
	if !exists {
		return nil, nil
	}

	it, err := s.store.Scan(ctx, store.ScanOptions{Index: s.cfg.Index, Type: s.cfg.DocType})
	if err != nil {
		return nil, fmt.Errorf("history: scan: %w", err)
	}
	defer it.Close()

	var out []Record
	for {
		doc, ok, err := it.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("history: iterate: %w", err)
		}
		if !ok {
			break
		}
		r, err := recordFromSource(doc)
		if err != nil {
			return nil, fmt.Errorf("history: parse record %s: %w", doc.ID, err)
		}
		if !begin.IsZero() && r.Timestamp.Before(begin) {
			continue
		}
		if !end.IsZero() && !r.Timestamp.Before(end) {
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].MigrationDate.Before(out[j].MigrationDate)
	})
	return out, nil
}

func recordFromSource(doc store.Document) (Record, error) {
	ts, err := parseTimeField(doc.Source, "timestamp")
	if err != nil {
		return Record{}, err
	}
	md, err := parseTimeField(doc.Source, "migrationDate")
	if err != nil {
		return Record{}, err
	}
	name, _ := doc.Source["name"].(string)
	description, _ := doc.Source["description"].(string)
	internal, _ := doc.Source["internal"].(bool)
	return Record{
		Timestamp:     ts,
		MigrationDate: md,
		Name:          name,
		Description:   description,
		Internal:      internal,
	}, nil
}

func parseTimeField(source map[string]any, field string) (time.Time, error) {
	raw, ok := source[field].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("field %q missing or not a string", field)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %q: %w", field, err)
	}
	return t, nil
}
