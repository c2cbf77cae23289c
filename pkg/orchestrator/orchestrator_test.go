package orchestrator

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/migrates/pkg/reindex"
	"github.com/3leaps/migrates/pkg/recovery"
	"github.com/3leaps/migrates/pkg/registry"
	"github.com/3leaps/migrates/pkg/store"
	"github.com/3leaps/migrates/pkg/store/fakestore"
)

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedDocsNamed(index string, n int) []store.Document {
	docs := make([]store.Document, n)
	for i := 0; i < n; i++ {
		docs[i] = store.Document{
			Index: index, Type: "test_0", ID: strconv.Itoa(i),
			Source: map[string]any{"x": float64(i % 100)},
		}
	}
	return docs
}

func squareYTransform(doc store.Document) (*store.Document, error) {
	x := doc.Source["x"].(float64)
	doc.Source["y"] = x * x
	return &doc, nil
}

func newTestOrchestrator(s store.Store, reg *registry.Registry) *Orchestrator {
	rec := recovery.New("") // recovery disabled: keep these tests filesystem-free
	return New(s, reg, rec, 7, nil, Config{})
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func TestOrchestrator_SingleUnitTransformsMatchingType(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New("7.10.2")
	s.CreateIndexDirect("t_0", store.IndexSettings{}, seedDocsNamed("t_0", 120)...)

	reg := registry.New()
	require.NoError(t, reg.Add(registry.MigrationUnit{
		Name: "square-y",
		Date: mustDate("2017-01-01"),
		DocumentTransforms: registry.DocumentTransforms{
			"t_0": {"test_0": squareYTransform},
		},
	}))

	o := newTestOrchestrator(s, reg)
	result, err := o.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"t_0"}, result.Affected)

	dump := s.DumpIndex("t_0")
	assert.Contains(t, dump, "x:2 y:4")
	assert.Len(t, nonEmptyLines(dump), 120)
}

func TestOrchestrator_WildcardDeleteEmptiesIndex(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New("7.10.2")
	s.CreateIndexDirect("t_1", store.IndexSettings{}, seedDocsNamed("t_1", 50)...)

	reg := registry.New()
	require.NoError(t, reg.Add(registry.MigrationUnit{
		Name: "purge",
		Date: mustDate("2018-01-01"),
		DocumentTransforms: registry.DocumentTransforms{
			"t_*": {"test_*": func(store.Document) (*store.Document, error) { return nil, nil }},
		},
	}))

	o := newTestOrchestrator(s, reg)
	result, err := o.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"t_1"}, result.Affected)
	assert.Empty(t, s.DumpIndex("t_1"))
}

func TestOrchestrator_BulkFailureDuringMigrateDocumentsRevertsFromShadow(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New("7.10.2")
	s.CreateIndexDirect("t_2", store.IndexSettings{}, seedDocsNamed("t_2", 10)...)

	reg := registry.New()
	require.NoError(t, reg.Add(registry.MigrationUnit{
		Name: "touch",
		Date: mustDate("2019-01-01"),
		DocumentTransforms: registry.DocumentTransforms{
			"t_2": {"test_0": squareYTransform},
		},
	}))

	// Force the first write back to the original index to fail at the
	// transport level, simulating a connectivity loss mid document-migration
	// stage; the recovery copy from the shadow afterwards goes through.
	s.FailBulkForIndex = map[string]int{"t_2": 1}

	o := newTestOrchestrator(s, reg)
	_, err := o.Run(ctx, nil)
	require.Error(t, err)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, StageMigrateDocuments, failure.Stage)
	assert.True(t, failure.Recovered, "inline recovery should have restored the original index from its shadow")

	exists, err := s.IndexExists(ctx, "t_2")
	require.NoError(t, err)
	assert.True(t, exists, "original index must exist again after recovery")
	assert.Len(t, nonEmptyLines(s.DumpIndex("t_2")), 10, "all original documents must be restored")
}

func TestOrchestrator_ReindexRenameMovesAllDocuments(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New("7.10.2")
	s.CreateIndexDirect("a", store.IndexSettings{}, seedDocsNamed("a", 30)...)

	reg := registry.New()
	spec, err := reindex.ParseSpec("a=>b")
	require.NoError(t, err)
	require.NoError(t, reg.Add(reindex.Build(spec)))

	o := newTestOrchestrator(s, reg)
	result, err := o.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, result.Affected)

	aExists, err := s.IndexExists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, aExists, "source index must not exist after a full-rename reindex")
	assert.Len(t, nonEmptyLines(s.DumpIndex("b")), 30)
}

func TestOrchestrator_NoPendingUnitsIsANoop(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New("7.10.2")
	o := newTestOrchestrator(s, registry.New())
	result, err := o.Run(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Affected)
}

func TestOrchestrator_DryRunLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New("7.10.2")
	s.CreateIndexDirect("t_3", store.IndexSettings{}, seedDocsNamed("t_3", 20)...)
	before := s.DumpIndex("t_3")

	reg := registry.New()
	require.NoError(t, reg.Add(registry.MigrationUnit{
		Name: "square-y-dry",
		Date: mustDate("2020-01-01"),
		DocumentTransforms: registry.DocumentTransforms{
			"t_3": {"test_0": squareYTransform},
		},
	}))

	rec := recovery.New("")
	o := New(s, reg, rec, 7, nil, Config{Dry: true})
	result, err := o.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"t_3"}, result.Affected)
	assert.Equal(t, before, s.DumpIndex("t_3"), "a dry run must leave every document unchanged")

	exists, err := s.IndexExists(ctx, "migrates_dummy_t_3")
	require.NoError(t, err)
	assert.False(t, exists, "a dry run must not create shadow indexes")
}
