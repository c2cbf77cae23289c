package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch_Wildcard(t *testing.T) {
	cases := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"t_*", "t_0", true},
		{"t_*", "other", false},
		{"t_*", "t_", true},
		{"*", "anything", true},
		{"t_seq", "t_seq", true},
		{"t_seq", "t_seqs", false},
		{"a.b*", "a.bc", true},
		{"a.b*", "aXbc", false},
	}
	for _, tc := range cases {
		got, err := Match(tc.pattern, tc.name)
		require.NoError(t, err)
		assert.Equalf(t, tc.want, got, "pattern=%q name=%q", tc.pattern, tc.name)
	}
}

func TestMatch_InvalidPattern(t *testing.T) {
	_, err := New("t_[")
	require.Error(t, err)
	var perr *PatternError
	require.ErrorAs(t, err, &perr)
}

func TestCache_ReusesCompiledMatcher(t *testing.T) {
	c := NewCache()
	m1, err := c.Get("t_*")
	require.NoError(t, err)
	m2, err := c.Get("t_*")
	require.NoError(t, err)
	assert.Same(t, m1, m2)
}
