package bulkwriter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/migrates/pkg/store"
	"github.com/3leaps/migrates/pkg/store/fakestore"
)

func newTestStore(t *testing.T, indexes ...string) *fakestore.Store {
	t.Helper()
	s := fakestore.New("7.10.2")
	for _, name := range indexes {
		s.CreateIndexDirect(name, store.IndexSettings{})
	}
	return s
}

func TestWriter_FlushesAtSizeThreshold(t *testing.T) {
	s := newTestStore(t, "widgets")
	w := New(s, nil, Config{Size: 2, IndexesSize: 10, SettleDelay: 0})
	ctx := context.Background()

	require.NoError(t, w.Add(ctx, store.BulkAction{Index: "widgets", ID: "1", Source: map[string]any{"n": 1}}))
	assert.Equal(t, 1, w.Pending())

	require.NoError(t, w.Add(ctx, store.BulkAction{Index: "widgets", ID: "2", Source: map[string]any{"n": 2}}))
	assert.Equal(t, 0, w.Pending(), "second action should have triggered an automatic flush")
}

func TestWriter_FlushesAtIndexesThreshold(t *testing.T) {
	s := newTestStore(t, "a", "b")
	w := New(s, nil, Config{Size: 100, IndexesSize: 2, SettleDelay: 0})
	ctx := context.Background()

	require.NoError(t, w.Add(ctx, store.BulkAction{Index: "a", ID: "1"}))
	require.NoError(t, w.Add(ctx, store.BulkAction{Index: "b", ID: "1"}))
	assert.Equal(t, 0, w.Pending())
}

func TestWriter_FlushWritesThroughToStore(t *testing.T) {
	s := newTestStore(t, "widgets")
	w := New(s, nil, Config{Size: 10, IndexesSize: 10, SettleDelay: 0})
	ctx := context.Background()

	require.NoError(t, w.AddMany(ctx, []store.BulkAction{
		{Index: "widgets", ID: "1", Source: map[string]any{"n": 1}},
		{Index: "widgets", ID: "2", Source: map[string]any{"n": 2}},
	}))
	require.NoError(t, w.Flush(ctx))

	dump := s.DumpIndex("widgets")
	assert.Contains(t, dump, "widgets//1=map[n:1]")
	assert.Contains(t, dump, "widgets//2=map[n:2]")
}

func TestWriter_EmptyFlushIsNoop(t *testing.T) {
	s := newTestStore(t, "widgets")
	w := New(s, nil, Config{})
	require.NoError(t, w.Flush(context.Background()))
}

func TestWriter_RetriesThenGivesUp(t *testing.T) {
	s := newTestStore(t) // "widgets" missing, so Bulk reports HasErrors until index exists
	w := New(s, nil, Config{MaxAttempts: 3, RetryDelay: 0, SettleDelay: 0})
	ctx := context.Background()

	require.NoError(t, w.Add(ctx, store.BulkAction{Index: "widgets", ID: "1"}))
	err := w.Flush(ctx)
	require.Error(t, err, "bulk against a missing index should report item errors and exhaust retries")

	var bulkErr *BulkError
	require.ErrorAs(t, err, &bulkErr)
	assert.Equal(t, 3, bulkErr.Attempts)
}

func TestWriter_FlushReturnsConnectivityErrorImmediately(t *testing.T) {
	s := newTestStore(t, "widgets")
	s.FailBulkForIndex = map[string]int{"widgets": 1}
	w := New(s, nil, Config{MaxAttempts: 3, RetryDelay: 0, SettleDelay: 0})
	ctx := context.Background()

	require.NoError(t, w.Add(ctx, store.BulkAction{Index: "widgets", ID: "1"}))
	err := w.Flush(ctx)
	require.Error(t, err)
	assert.True(t, store.IsUnavailable(err))
}

func TestScope_FlushesOnlyWhenErrIsNil(t *testing.T) {
	s := newTestStore(t, "widgets")
	w := New(s, nil, Config{Size: 10, IndexesSize: 10, SettleDelay: 0})
	ctx := context.Background()
	require.NoError(t, w.Add(ctx, store.BulkAction{Index: "widgets", ID: "1", Source: map[string]any{"n": 1}}))

	scope := NewScope(ctx, w)
	require.NoError(t, scope.Close(assert.AnError))
	assert.Equal(t, 1, w.Pending(), "an errored scope must not flush")

	require.NoError(t, scope.Close(nil))
	assert.Equal(t, 0, w.Pending())
	assert.Contains(t, s.DumpIndex("widgets"), "widgets//1=map[n:1]")
}
