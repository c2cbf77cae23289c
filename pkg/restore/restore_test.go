package restore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/migrates/pkg/bulkwriter"
	"github.com/3leaps/migrates/pkg/orchestrator"
	"github.com/3leaps/migrates/pkg/store"
	"github.com/3leaps/migrates/pkg/store/fakestore"
)

func TestTemplates_ReplacesCatalogWithLoadedSnapshot(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New("7.10.2")
	require.NoError(t, s.PutTemplate(ctx, "stale", store.TemplateBody{"template": "stale_*"}, true))

	loaded := store.Templates{
		"widgets_template": {"template": "widgets_*", "mappings": map[string]any{}},
	}

	_, err := Templates(ctx, s, 7, nil, orchestrator.Config{}, loaded)
	require.NoError(t, err)

	got, err := s.GetTemplates(ctx)
	require.NoError(t, err)
	assert.Equal(t, loaded, got)
}

func TestIndexes_RecreatesOriginalFromShadow(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New("7.10.2")
	docs := []store.Document{
		{Index: "migrates_dummy_widgets", Type: "t", ID: "1", Source: map[string]any{"x": 1}},
		{Index: "migrates_dummy_widgets", Type: "t", ID: "2", Source: map[string]any{"x": 2}},
	}
	s.CreateIndexDirect("migrates_dummy_widgets", store.IndexSettings{}, docs...)
	// The original is gone, as it would be mid-run when restore_indexes is invoked.

	err := Indexes(ctx, s, 7, nil, orchestrator.Config{}, []string{"widgets"})
	require.NoError(t, err)

	exists, err := s.IndexExists(ctx, "widgets")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Contains(t, s.DumpIndex("widgets"), "widgets/t/1=map[x:1]")

	shadowExists, err := s.IndexExists(ctx, "migrates_dummy_widgets")
	require.NoError(t, err)
	assert.False(t, shadowExists, "restore_indexes must remove the shadow once the original is restored")
}

func TestHistory_FeedsActionsToBulkWriter(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New("7.10.2")
	s.CreateIndexDirect("migrates_history", store.IndexSettings{})

	actions := []store.BulkAction{
		{OpType: store.OpIndex, Index: "migrates_history", Type: "migration", ID: "u1/20200101000000", Source: map[string]any{"name": "u1"}},
	}

	err := History(ctx, s, nil, bulkwriter.Config{}, actions)
	require.NoError(t, err)
	assert.Contains(t, s.DumpIndex("migrates_history"), "u1/20200101000000")
}
