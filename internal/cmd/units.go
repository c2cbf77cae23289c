package cmd

import (
	"fmt"
	"path/filepath"
	"plugin"

	"github.com/3leaps/migrates/pkg/registry"
)

// loadUnitsFromPath loads every *.so Go plugin in dir and registers the
// migration units it exports into reg. Loading user-supplied migration
// units from on-disk packages is explicitly out of scope for the engine
// core; this is the one concrete on-disk loading strategy idiomatic Go
// offers without a second compile step, grounded on the standard
// library's plugin package since nothing in the corpus addresses
// dynamically-loaded user code. Each plugin must export a symbol
//
//	Register func(*registry.Registry) error
func loadUnitsFromPath(reg *registry.Registry, dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.so"))
	if err != nil {
		return fmt.Errorf("glob %s: %w", dir, err)
	}
	for _, path := range matches {
		p, err := plugin.Open(path)
		if err != nil {
			return fmt.Errorf("open plugin %s: %w", path, err)
		}
		sym, err := p.Lookup("Register")
		if err != nil {
			return fmt.Errorf("plugin %s: missing Register symbol: %w", path, err)
		}
		register, ok := sym.(func(*registry.Registry) error)
		if !ok {
			return fmt.Errorf("plugin %s: Register has the wrong signature", path)
		}
		if err := register(reg); err != nil {
			return fmt.Errorf("plugin %s: Register: %w", path, err)
		}
	}
	return nil
}
