// Package recovery writes and prunes the three recovery files a migration
// run produces before mutating the store: the original template catalog,
// the affected-index list, and the pending-history actions (§4.E). Writes
// are atomic at the filesystem level, grounded on the teacher's
// write-temp-then-rename idiom in pkg/jobregistry.Store.Write. The cleanup
// scan's group-by-kind, keep-N-most-recent shape is grounded on
// internal/cmd/index_gc.go's retention policy.
package recovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/3leaps/migrates/pkg/store"
)

// Stamp formats a run timestamp as the 14-digit UTC stamp used in recovery
// file names.
func Stamp(t time.Time) string {
	return t.UTC().Format("20060102150405")
}

// Kind identifies one of the three recovery file kinds.
type Kind string

const (
	KindTemplates  Kind = "templates"
	KindIndexes    Kind = "indexes"
	KindMigrations Kind = "migrations"
)

var filenamePattern = regexp.MustCompile(`^migrates\.(indexes|templates|migrations)\.(\d{14})\.json$`)

// Writer writes recovery files into one directory. A zero-value Writer
// (empty Dir) means recovery is disabled: every write is a no-op, matching
// the source's "empty path means disabled" convention (§9).
type Writer struct {
	Dir string
}

// New returns a Writer rooted at dir. An empty dir disables all writes.
func New(dir string) *Writer {
	return &Writer{Dir: dir}
}

// Enabled reports whether this Writer will actually write files.
func (w *Writer) Enabled() bool { return w.Dir != "" }

func (w *Writer) path(kind Kind, stamp string) string {
	return filepath.Join(w.Dir, fmt.Sprintf("migrates.%s.%s.json", kind, stamp))
}

// WriteTemplates writes the original template catalog verbatim.
func (w *Writer) WriteTemplates(stamp string, templates store.Templates) (string, error) {
	return w.writeJSON(KindTemplates, stamp, templates)
}

// WriteIndexes writes the affected-index list.
func (w *Writer) WriteIndexes(stamp string, indexes []string) (string, error) {
	if indexes == nil {
		indexes = []string{}
	}
	return w.writeJSON(KindIndexes, stamp, indexes)
}

// WriteMigrations writes the pending-history actions that should be applied
// on success.
func (w *Writer) WriteMigrations(stamp string, actions []store.BulkAction) (string, error) {
	if actions == nil {
		actions = []store.BulkAction{}
	}
	return w.writeJSON(KindMigrations, stamp, actions)
}

// writeJSON marshals v and writes it to the named recovery file. Returns
// ("", nil) when recovery is disabled. The write is best-effort atomic: the
// full payload is marshaled in memory and written via temp-file-then-rename,
// so a crash mid-write leaves either the old file or nothing, never a
// truncated one.
func (w *Writer) writeJSON(kind Kind, stamp string, v any) (string, error) {
	if !w.Enabled() {
		return "", nil
	}
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return "", fmt.Errorf("recovery: create dir %s: %w", w.Dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("recovery: marshal %s: %w", kind, err)
	}
	data = append(data, '\n')

	finalPath := w.path(kind, stamp)
	tmp, err := os.CreateTemp(w.Dir, fmt.Sprintf("migrates.%s.%s.json.tmp.*", kind, stamp))
	if err != nil {
		return "", fmt.Errorf("recovery: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("recovery: write %s: %w", kind, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("recovery: close %s: %w", kind, err)
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		return "", fmt.Errorf("recovery: rename into place %s: %w", kind, err)
	}
	return finalPath, nil
}

// LoadTemplates reads back a templates recovery file written by WriteTemplates.
func LoadTemplates(path string) (store.Templates, error) {
	var out store.Templates
	if err := loadJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadIndexes reads back an indexes recovery file written by WriteIndexes.
func LoadIndexes(path string) ([]string, error) {
	var out []string
	if err := loadJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadMigrations reads back a migrations recovery file written by WriteMigrations.
func LoadMigrations(path string) ([]store.BulkAction, error) {
	var out []store.BulkAction
	if err := loadJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("recovery: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("recovery: parse %s: %w", path, err)
	}
	return nil
}

// fileEntry is one recovery file discovered during a cleanup scan.
type fileEntry struct {
	Path  string
	Kind  Kind
	Stamp string
	Time  time.Time
}

// CleanupParams configures the retention scan.
type CleanupParams struct {
	// OlderThan removes files older than this cutoff, except the KeepLast
	// most recent of each kind, which are always retained regardless of age.
	OlderThan time.Duration
	// KeepLast is the number of most-recent files per kind to always keep.
	// Defaults to 4 when zero.
	KeepLast int
	DryRun   bool
}

const DefaultKeepLast = 4

// Cleanup scans dir for recovery files, partitions them by kind, and
// removes files older than the cutoff while always retaining the KeepLast
// most recent of each kind regardless of age. Returns the paths removed (or,
// on a dry run, that would be removed).
func Cleanup(dir string, params CleanupParams) ([]string, error) {
	keepLast := params.KeepLast
	if keepLast <= 0 {
		keepLast = DefaultKeepLast
	}

	entries, err := scan(dir)
	if err != nil {
		return nil, err
	}

	byKind := make(map[Kind][]fileEntry)
	for _, e := range entries {
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}

	var cutoff time.Time
	if params.OlderThan > 0 {
		cutoff = time.Now().UTC().Add(-params.OlderThan)
	}

	var toRemove []string
	for _, group := range byKind {
		sort.Slice(group, func(i, j int) bool { return group[i].Time.After(group[j].Time) })
		for i, e := range group {
			if i < keepLast {
				continue // always retained, regardless of age
			}
			if cutoff.IsZero() || e.Time.Before(cutoff) {
				toRemove = append(toRemove, e.Path)
			}
		}
	}
	sort.Strings(toRemove)

	if params.DryRun {
		return toRemove, nil
	}
	for _, path := range toRemove {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return toRemove, fmt.Errorf("recovery: remove %s: %w", path, err)
		}
	}
	return toRemove, nil
}

func scan(dir string) ([]fileEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("recovery: scan %s: %w", dir, err)
	}

	var out []fileEntry
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		m := filenamePattern.FindStringSubmatch(de.Name())
		if m == nil {
			continue
		}
		stamp := m[2]
		t, err := time.Parse("20060102150405", stamp)
		if err != nil {
			continue
		}
		out = append(out, fileEntry{
			Path:  filepath.Join(dir, de.Name()),
			Kind:  Kind(m[1]),
			Stamp: stamp,
			Time:  t.UTC(),
		})
	}
	return out, nil
}
