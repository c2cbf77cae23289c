package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/migrates/pkg/store"
	"github.com/3leaps/migrates/pkg/store/fakestore"
)

// execCommand runs rootCmd with args against a fresh fakestore and returns
// stdout. Every test provides its own store instance via the factory seam
// so runs never share state.
func execCommand(t *testing.T, s *fakestore.Store, args ...string) string {
	t.Helper()
	SetStoreFactory(func([]string) (store.Store, error) { return s, nil })
	t.Cleanup(func() {
		SetStoreFactory(func([]string) (store.Store, error) {
			return nil, assert.AnError
		})
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	// --dry=false first so a prior test's sticky --dry doesn't leak into
	// this invocation; callers needing a dry run still pass --dry after,
	// which pflag applies last and so wins.
	full := append([]string{args[0], "--dry=false", "--restore-path", t.TempDir()}, args[1:]...)
	rootCmd.SetArgs(full)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestRun_NoUnitsIsANoop(t *testing.T) {
	s := fakestore.New("7.10.2")
	out := execCommand(t, s, "run")
	assert.Contains(t, out, "no pending migrations")
}

func TestRemoveDummies_DryRunListsWithoutDeleting(t *testing.T) {
	s := fakestore.New("7.10.2")
	s.CreateIndexDirect("migrates_dummy_widgets", store.IndexSettings{})

	out := execCommand(t, s, "remove_dummies", "--dry")
	assert.Contains(t, out, "would remove migrates_dummy_widgets")

	exists, err := s.IndexExists(context.Background(), "migrates_dummy_widgets")
	require.NoError(t, err)
	assert.True(t, exists, "a dry run must not delete anything")
}

func TestRemoveDummies_DeletesMatchingIndexes(t *testing.T) {
	s := fakestore.New("7.10.2")
	s.CreateIndexDirect("migrates_dummy_widgets", store.IndexSettings{})

	out := execCommand(t, s, "remove_dummies")
	assert.Contains(t, out, "migrates_dummy_widgets")

	exists, err := s.IndexExists(context.Background(), "migrates_dummy_widgets")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMigrations_NoPathsListsNothing(t *testing.T) {
	s := fakestore.New("7.10.2")
	out := execCommand(t, s, "migrations")
	assert.Empty(t, out)
}

func TestHistory_EmptyStoreListsNothing(t *testing.T) {
	s := fakestore.New("7.10.2")
	out := execCommand(t, s, "history")
	assert.Empty(t, out)
}
