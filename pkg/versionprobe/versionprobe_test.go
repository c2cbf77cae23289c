package versionprobe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/migrates/pkg/store/fakestore"
)

func TestProbe_ParsesLeadingMajorComponent(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		version string
		major   int
		atLeast5 bool
	}{
		{"7.10.2", 7, true},
		{"5.0.0", 5, true},
		{"2.4.6", 2, false},
		{"1.7.3", 1, false},
	}

	for _, tc := range cases {
		s := fakestore.New(tc.version)
		result, err := Probe(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, tc.version, result.Raw)
		assert.Equal(t, tc.major, result.Major)
		assert.Equal(t, tc.atLeast5, result.AtLeast5())
	}
}

func TestProbe_NonNumericLeadingComponentYieldsZero(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New("devel")
	result, err := Probe(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Major)
	assert.False(t, result.AtLeast5())
}
