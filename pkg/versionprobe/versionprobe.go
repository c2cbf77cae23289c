// Package versionprobe detects the index store's server version once at
// orchestrator construction and exposes the leading version component, used
// to pick field-mapping shapes for exact-match string fields (§4.J). It is
// grounded on the teacher's capability-detection doc-comment style in
// pkg/provider/capabilities.go, adapted from a feature-interface probe to a
// version-string probe.
package versionprobe

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/3leaps/migrates/pkg/store"
)

// Result is the outcome of probing the store's version.
type Result struct {
	// Raw is the server's version string verbatim, e.g. "7.10.2".
	Raw string
	// Major is the leading dot-separated component, parsed as an integer.
	// Zero when Raw's leading component isn't numeric.
	Major int
}

// AtLeast5 reports whether Major is 5 or greater, the threshold §4.J uses to
// switch the history template's exact-match string fields between `keyword`
// and legacy `string`+`not_analyzed`.
func (r Result) AtLeast5() bool { return r.Major >= 5 }

// Probe issues the store's version check (GET / in the source engine) and
// parses the leading component.
func Probe(ctx context.Context, s store.Store) (Result, error) {
	raw, err := s.Version(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("versionprobe: %w", err)
	}
	return Result{Raw: raw, Major: leadingComponent(raw)}, nil
}

func leadingComponent(version string) int {
	version = strings.TrimSpace(version)
	lead, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(lead)
	if err != nil {
		return 0
	}
	return n
}
