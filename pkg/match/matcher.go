// Package match implements the engine's `*`-wildcard name matching, used to
// resolve index-name patterns, doc-type patterns, and detail filter
// patterns against concrete names (§4.B).
package match

import (
	"errors"
	"regexp"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidPattern is returned when a pattern fails glob-syntax validation
// (unbalanced brackets, trailing escape, and similar). The compiled matcher
// itself only understands a single wildcard, `*`, but patterns are first
// run through doublestar's syntax validator so obviously malformed input is
// rejected at registration time instead of silently compiling into a regex
// nobody intended.
var ErrInvalidPattern = errors.New("match: invalid pattern")

// Matcher evaluates one compiled `*`-wildcard pattern against names.
//
// Algorithm (§4.B): escape every regex metacharacter in the pattern, then
// turn each escaped `\*` back into `.*`, then anchor at both ends. This is
// deliberately simpler than a general glob (no `?`, no character classes,
// no `**`) because the engine only ever needs "any run of characters in
// place of `*`" for index names, doc types, and detail filters.
type Matcher struct {
	raw string
	re  *regexp.Regexp
}

// New compiles pattern into a Matcher.
func New(pattern string) (*Matcher, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, &PatternError{Pattern: pattern, Err: ErrInvalidPattern}
	}
	re, err := regexp.Compile(translate(pattern))
	if err != nil {
		return nil, &PatternError{Pattern: pattern, Err: err}
	}
	return &Matcher{raw: pattern, re: re}, nil
}

// MustNew compiles pattern and panics on error. Intended for compile-time
// known patterns, such as "*".
func MustNew(pattern string) *Matcher {
	m, err := New(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// PatternError wraps pattern-related errors with the offending pattern.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error { return e.Err }

// Pattern returns the original, uncompiled pattern string.
func (m *Matcher) Pattern() string { return m.raw }

// Match reports whether name is fully matched by the pattern.
func (m *Matcher) Match(name string) bool {
	return m.re.MatchString(name)
}

// translate converts a `*`-wildcard pattern into an anchored regex.
func translate(pattern string) string {
	escaped := regexp.QuoteMeta(pattern)
	// QuoteMeta escapes '*' as `\*`; turn every such escaped wildcard back
	// into ".*" so it matches any run of characters, including none.
	replaced := make([]byte, 0, len(escaped)+2)
	for i := 0; i < len(escaped); i++ {
		if escaped[i] == '\\' && i+1 < len(escaped) && escaped[i+1] == '*' {
			replaced = append(replaced, '.', '*')
			i++
			continue
		}
		replaced = append(replaced, escaped[i])
	}
	return "^" + string(replaced) + "$"
}

// Match is a package-level convenience equivalent to compiling pattern and
// calling Match(name) once. Callers matching many names against the same
// pattern should compile it once with New (or use a Cache) instead.
func Match(pattern, name string) (bool, error) {
	m, err := New(pattern)
	if err != nil {
		return false, err
	}
	return m.Match(name), nil
}

// Cache memoizes compiled matchers for hot patterns. Index and doc-type
// patterns are evaluated against every document scanned, so each
// orchestrator keeps one Cache instead of recompiling per document.
type Cache struct {
	mu        sync.Mutex
	byPattern map[string]*Matcher
}

// NewCache creates an empty pattern cache.
func NewCache() *Cache {
	return &Cache{byPattern: make(map[string]*Matcher)}
}

// Get returns a compiled Matcher for pattern, compiling and caching it on
// first use. Safe for concurrent use.
func (c *Cache) Get(pattern string) (*Matcher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.byPattern[pattern]; ok {
		return m, nil
	}
	m, err := New(pattern)
	if err != nil {
		return nil, err
	}
	c.byPattern[pattern] = m
	return m, nil
}
