// Package fakestore provides an in-memory store.Store test double used
// throughout the engine's test suites. It is never imported by production
// code — only by _test.go files — and exists purely to exercise the
// store.Store contract deterministically, the way the teacher's
// test/cloudtest package stands in for a real cloud provider in tests.
package fakestore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/3leaps/migrates/pkg/match"
	"github.com/3leaps/migrates/pkg/store"
)

// Store is an in-memory, single-process implementation of store.Store.
type Store struct {
	mu sync.Mutex

	version   string
	indexes   map[string]*index
	templates store.Templates

	// FailBulkForIndex, keyed by exact index name, makes the next N Bulk
	// calls that touch that index return a transport error instead of
	// succeeding. Used to simulate store connectivity failures in recovery
	// tests.
	FailBulkForIndex map[string]int

	// FailPutTemplate / FailCreateIndex let tests force the next N calls of
	// a specific operation to fail, to drive the orchestrator into a named
	// failure state.
	FailPutTemplate int
	FailCreateIndex int
}

type index struct {
	settings store.IndexSettings
	docs     map[string]store.Document // id -> doc (single type-less bucket; Type stored on Document)
	order    []string                  // insertion order, for stable scans
}

// New creates an empty Store reporting the given server version string
// (e.g. "7.10.2") from Version().
func New(version string) *Store {
	return &Store{
		version:   version,
		indexes:   make(map[string]*index),
		templates: make(store.Templates),
	}
}

func (s *Store) Version(ctx context.Context) (string, error) {
	return s.version, nil
}

// CreateIndexDirect seeds an index outside of CreateIndex, for test setup.
func (s *Store) CreateIndexDirect(name string, settings store.IndexSettings, docs ...store.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := &index{settings: settings, docs: make(map[string]store.Document)}
	for _, d := range docs {
		idx.docs[d.ID] = d
		idx.order = append(idx.order, d.ID)
	}
	s.indexes[name] = idx
}

func (s *Store) ListIndexes(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := match.New(pattern)
	if err != nil {
		return nil, err
	}
	var out []string
	for name := range s.indexes {
		if m.Match(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.indexes[name]
	return ok, nil
}

func (s *Store) GetSettings(ctx context.Context, name string) (store.IndexSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[name]
	if !ok {
		return store.IndexSettings{}, &store.OpError{Op: "GetSettings", Index: name, Err: store.ErrNotFound}
	}
	return idx.settings, nil
}

func (s *Store) CreateIndex(ctx context.Context, name string, settings store.IndexSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreateIndex > 0 {
		s.FailCreateIndex--
		return &store.OpError{Op: "CreateIndex", Index: name, Err: store.ErrUnavailable}
	}
	if _, ok := s.indexes[name]; ok {
		return &store.OpError{Op: "CreateIndex", Index: name, Err: store.ErrConflict}
	}
	s.indexes[name] = &index{settings: settings, docs: make(map[string]store.Document)}
	return nil
}

func (s *Store) DeleteIndex(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, name)
	return nil
}

func (s *Store) Scan(ctx context.Context, opts store.ScanOptions) (store.DocumentIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := match.New(opts.Index)
	if err != nil {
		return nil, err
	}
	var names []string
	for name := range s.indexes {
		if m.Match(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var docs []store.Document
	for _, name := range names {
		idx := s.indexes[name]
		for _, id := range idx.order {
			d, ok := idx.docs[id]
			if !ok {
				continue // deleted
			}
			if opts.Type != "" {
				tm, err := match.New(opts.Type)
				if err != nil {
					return nil, err
				}
				if !tm.Match(d.Type) {
					continue
				}
			}
			docs = append(docs, d.Clone())
		}
	}
	return &iterator{docs: docs}, nil
}

type iterator struct {
	docs []store.Document
	pos  int
}

func (it *iterator) Next(ctx context.Context) (store.Document, bool, error) {
	if it.pos >= len(it.docs) {
		return store.Document{}, false, nil
	}
	d := it.docs[it.pos]
	it.pos++
	return d, true, nil
}

func (it *iterator) Close() error { return nil }

func (s *Store) Bulk(ctx context.Context, actions []store.BulkAction) (store.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range actions {
		if n, ok := s.FailBulkForIndex[a.Index]; ok && n > 0 {
			s.FailBulkForIndex[a.Index] = n - 1
			return store.BulkResult{}, &store.OpError{Op: "Bulk", Index: a.Index, Err: store.ErrUnavailable}
		}
	}

	var result store.BulkResult
	for _, a := range actions {
		idx, ok := s.indexes[a.Index]
		if !ok {
			result.HasErrors = true
			result.Errors = append(result.Errors, store.BulkItemError{
				Index: a.Index, Type: a.Type, ID: a.ID, Reason: "index not found",
			})
			continue
		}
		switch a.EffectiveOpType() {
		case store.OpDelete:
			if _, existed := idx.docs[a.ID]; existed {
				delete(idx.docs, a.ID)
			}
		default:
			if _, existed := idx.docs[a.ID]; !existed {
				idx.order = append(idx.order, a.ID)
			}
			idx.docs[a.ID] = store.Document{Index: a.Index, Type: a.Type, ID: a.ID, Source: a.Source}
		}
	}
	return result, nil
}

func (s *Store) GetTemplates(ctx context.Context) (store.Templates, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(store.Templates, len(s.templates))
	for k, v := range s.templates {
		out[k] = v
	}
	return out, nil
}

func (s *Store) PutTemplate(ctx context.Context, name string, body store.TemplateBody, create bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPutTemplate > 0 {
		s.FailPutTemplate--
		return &store.OpError{Op: "PutTemplate", Index: name, Err: store.ErrUnavailable}
	}
	if create {
		if _, exists := s.templates[name]; exists {
			return &store.OpError{Op: "PutTemplate", Index: name, Err: store.ErrConflict}
		}
	}
	s.templates[name] = body
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.templates, name)
	return nil
}

// DumpIndex returns a stable, human-readable summary of an index's
// documents, for assertions in tests.
func (s *Store) DumpIndex(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[name]
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, id := range idx.order {
		d, ok := idx.docs[id]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "%s/%s/%s=%v\n", d.Index, d.Type, d.ID, d.Source)
	}
	return sb.String()
}
