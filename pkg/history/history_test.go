package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/migrates/pkg/bulkwriter"
	"github.com/3leaps/migrates/pkg/registry"
	"github.com/3leaps/migrates/pkg/store"
	"github.com/3leaps/migrates/pkg/store/fakestore"
)

func TestRecord_IDIsNameSlashStamp(t *testing.T) {
	r := Record{Name: "add_field", Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	assert.Equal(t, "add_field/20240102030405", r.ID())
}

func TestStore_EnsureTemplateShapesFieldsByServerMajor(t *testing.T) {
	ctx := context.Background()

	modern := fakestore.New("7.10.2")
	sModern := New(modern, Config{}, 7)
	require.NoError(t, sModern.EnsureTemplate(ctx))
	templates, err := modern.GetTemplates(ctx)
	require.NoError(t, err)
	mappings := templates[DefaultTemplate]["mappings"].(map[string]any)[DefaultDocType].(map[string]any)
	nameField := mappings["properties"].(map[string]any)["name"].(map[string]any)
	assert.Equal(t, "keyword", nameField["type"])

	legacy := fakestore.New("2.4.0")
	sLegacy := New(legacy, Config{}, 2)
	require.NoError(t, sLegacy.EnsureTemplate(ctx))
	templatesLegacy, err := legacy.GetTemplates(ctx)
	require.NoError(t, err)
	mappingsLegacy := templatesLegacy[DefaultTemplate]["mappings"].(map[string]any)[DefaultDocType].(map[string]any)
	nameFieldLegacy := mappingsLegacy["properties"].(map[string]any)["name"].(map[string]any)
	assert.Equal(t, "string", nameFieldLegacy["type"])
	assert.Equal(t, "not_analyzed", nameFieldLegacy["index"])
}

func TestStore_ScanReturnsNilForMissingIndex(t *testing.T) {
	ctx := context.Background()
	fs := fakestore.New("7.10.2")
	s := New(fs, Config{}, 7)

	records, err := s.Scan(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestStore_WriteThenScanSortsByTimestampThenMigrationDate(t *testing.T) {
	ctx := context.Background()
	fs := fakestore.New("7.10.2")
	fs.CreateIndexDirect(DefaultIndex, store.IndexSettings{})
	s := New(fs, Config{}, 7)

	runTime := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	units := []*registry.MigrationUnit{
		{Name: "second", Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{Name: "first", Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	records := RecordsFromRun(units, runTime)

	w := bulkwriter.New(fs, nil, bulkwriter.Config{SettleDelay: 0})
	require.NoError(t, s.Write(ctx, w, records))

	scanned, err := s.Scan(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, scanned, 2)
	assert.Equal(t, "first", scanned[0].Name)
	assert.Equal(t, "second", scanned[1].Name)
}

func TestPerformedNames_ExtractsNameSet(t *testing.T) {
	records := []Record{{Name: "a"}, {Name: "b"}, {Name: "a"}}
	names := PerformedNames(records)
	assert.True(t, names["a"])
	assert.True(t, names["b"])
	assert.False(t, names["c"])
}
