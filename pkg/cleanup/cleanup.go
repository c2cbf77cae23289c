// Package cleanup implements the two out-of-band housekeeping operations
// operators run between migrations: removing stray shadow indexes
// (remove_dummies) and pruning old recovery files (restore_cleanup). It is
// grounded on internal/cmd/index_gc.go's retention-policy CLI shape, split
// here into a store-backed half (shadow indexes) and a filesystem half
// (recovery.Cleanup, reused directly).
package cleanup

import (
	"context"
	"fmt"

	"github.com/3leaps/migrates/pkg/recovery"
	"github.com/3leaps/migrates/pkg/store"
)

// DefaultDummyPrefix is the default shadow-index name prefix (§6 Shadow
// index naming).
const DefaultDummyPrefix = "migrates_dummy_"

// RemoveDummies deletes every index whose name matches "<prefix>*", the
// shadow-index wildcard used by remove_dummies. Returns the names removed.
func RemoveDummies(ctx context.Context, s store.Store, prefix string) ([]string, error) {
	if prefix == "" {
		prefix = DefaultDummyPrefix
	}
	names, err := s.ListIndexes(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("cleanup: list dummy indexes: %w", err)
	}
	for _, name := range names {
		if err := s.DeleteIndex(ctx, name); err != nil {
			return nil, fmt.Errorf("cleanup: delete dummy index %s: %w", name, err)
		}
	}
	return names, nil
}

// RemoveRecoveryFiles prunes old recovery files in dir, keeping the
// KeepLast-most-recent of each kind regardless of age (§4.E). It is a thin
// alias over recovery.Cleanup so callers only need to import this package
// for the full "K. Cleanup Utilities" surface.
func RemoveRecoveryFiles(dir string, params recovery.CleanupParams) ([]string, error) {
	return recovery.Cleanup(dir, params)
}
