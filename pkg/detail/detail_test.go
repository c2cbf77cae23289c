package detail

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/3leaps/migrates/pkg/registry"
	"github.com/3leaps/migrates/pkg/store"
)

func TestRecorder_CountsTouchDeleteError(t *testing.T) {
	r := New(nil, false)

	doc := store.Document{Index: "widgets", Type: "widget", ID: "1", Source: map[string]any{"x": 1}}
	r.Pre(doc)
	r.Touch("u1", doc)
	r.Post(doc)

	doc2 := store.Document{Index: "widgets", Type: "widget", ID: "2"}
	r.Pre(doc2)
	r.Delete("u1", doc2)
	r.Post(doc2)

	doc3 := store.Document{Index: "gadgets", Type: "gadget", ID: "3"}
	r.Pre(doc3)
	r.Error("u2", doc3, errors.New("boom"))
	r.Post(doc3)

	rep := r.Report([]string{"u1", "u2"})

	var widgets, gadgets IndexSummary
	for _, is := range rep.ByIndex {
		if is.Index == "widgets" {
			widgets = is
		}
		if is.Index == "gadgets" {
			gadgets = is
		}
	}
	assert.Equal(t, 2, widgets.Touched)
	assert.Equal(t, 1, widgets.Deleted)
	assert.Equal(t, 1, gadgets.Touched)

	require := assert.New(t)
	require.Len(rep.ByUnit, 2)
	require.Len(rep.Exceptions, 1)
	require.Equal("gadgets", rep.Exceptions[0].Index)
	require.Len(rep.Exceptions[0].Samples, 1)
}

func TestRecorder_ByUnitSortedByErrorsDescending(t *testing.T) {
	r := New(nil, false)

	d1 := store.Document{Index: "a", Type: "t", ID: "1"}
	r.Pre(d1)
	r.Error("quiet", d1, errors.New("e"))
	r.Post(d1)

	d2 := store.Document{Index: "a", Type: "t", ID: "2"}
	r.Pre(d2)
	r.Error("noisy", d2, errors.New("e1"))
	r.Post(d2)
	r2 := store.Document{Index: "a", Type: "t", ID: "3"}
	r.Pre(r2)
	r.Error("noisy", r2, errors.New("e2"))
	r.Post(r2)

	rep := r.Report([]string{"quiet", "noisy"})
	assert.Equal(t, "noisy", rep.ByUnit[0].Name)
	assert.Equal(t, 2, rep.ByUnit[0].Errored)
}

func TestRecorder_ExceptionSamplesCapAtThree(t *testing.T) {
	r := New(nil, false)
	for i := 0; i < 5; i++ {
		d := store.Document{Index: "a", Type: "t", ID: string(rune('0' + i))}
		r.Pre(d)
		r.Error("u", d, errors.New("e"))
		r.Post(d)
	}
	rep := r.Report([]string{"u"})
	assert.Len(t, rep.Exceptions[0].Samples, 3)
}

func TestRecorder_VerboseLogsDiffAtMostOncePerIndexType(t *testing.T) {
	r := New(nil, true)

	d1 := store.Document{Index: "a", Type: "t", ID: "1", Source: map[string]any{"x": 1}}
	r.Pre(d1)
	r.Touch("u", d1)
	d1.Source["x"] = 2
	r.Post(d1)

	d2 := store.Document{Index: "a", Type: "t", ID: "2", Source: map[string]any{"x": 1}}
	r.Pre(d2)
	assert.True(t, r.diffLogged[indexTypeKey{Index: "a", Type: "t"}], "first Post should have marked the pair as diff-logged")
	r.Touch("u", d2)
	r.Post(d2)
}

func TestRecorder_DetailPatternsOverrideVerboseFlag(t *testing.T) {
	r := New(nil, false)
	require := assert.New(t)
	require.NoError(r.SetDetailPatterns([]string{"widgets*"}))

	matched := store.Document{Index: "widgets_eu", Type: "t", ID: "1", Source: map[string]any{"x": 1}}
	r.Pre(matched)
	require.True(r.isVerboseFor("widgets_eu"))

	unmatched := store.Document{Index: "gadgets", Type: "t", ID: "1"}
	r.Pre(unmatched)
	require.False(r.isVerboseFor("gadgets"))
}

func TestRecorder_SetDetailPatternsRejectsInvalidPattern(t *testing.T) {
	r := New(nil, false)
	err := r.SetDetailPatterns([]string{"["})
	assert.Error(t, err)
}

func TestUnitOrder_DerivesNamesFromPendingUnits(t *testing.T) {
	units := []*registry.MigrationUnit{{Name: "a"}, {Name: "b"}}
	assert.Equal(t, []string{"a", "b"}, UnitOrder(units))
}
