// Package cmd is the command-line front end (§6): one file per subcommand,
// a package-level init() registering each command's flags and attaching it
// to rootCmd, following the teacher's internal/cmd convention.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/3leaps/migrates/internal/config"
	"github.com/3leaps/migrates/internal/observability"
	"github.com/3leaps/migrates/pkg/store"
)

// Version is the build version reported by -V/--version, overridden at
// link time with -ldflags "-X github.com/3leaps/migrates/internal/cmd.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "migrates",
	Short:         "Migration orchestrator for the index store",
	Long:          "migrates applies dated, named migration units to a document-indexing store: it stages shadow copies of every affected index, transforms documents while writing them back, applies template changes, and records a durable history, recoverable from the files it writes at every stage.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(c *cobra.Command, args []string) error {
		if v, _ := c.Flags().GetBool("version"); v {
			fmt.Println(Version)
			return nil
		}
		return c.Help()
	},
}

var cfg config.Config

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringSliceP("path", "p", nil, "directories of user migration packages to load")
	flags.StringSliceP("host", "h", nil, "index store endpoints")
	flags.BoolP("dry", "d", false, "run read-only, reporting what would change")
	flags.BoolP("keep-dummies", "k", false, "leave shadow indexes in place after a run")
	flags.StringP("restore-path", "r", "", "directory recovery files are written to and read from; none are written when unset")
	flags.BoolP("yes", "y", false, "skip confirmation prompts")
	flags.BoolP("verbose", "v", false, "log a before/after diff for the first touched document of each index and type")
	flags.BoolP("version", "V", false, "print the version and exit")
	flags.String("log", "", "write logs to this file instead of stderr")
	flags.StringSliceP("detail", "l", nil, "restrict verbose diff logging to indexes matching one of these patterns")
	flags.String("history-template", "", "override the history index's template name")
	flags.String("history-index", "", "override the history index name")
	flags.String("history-doc-type", "", "override the history record document type")
	flags.String("dummy-index-prefix", "", "override the shadow index name prefix")

	rootCmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		return loadConfig(c)
	}
}

// Execute runs the command tree; main's sole responsibility is calling
// this and translating a non-nil error into a non-zero exit code.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(c *cobra.Command) error {
	flagValues := map[string]any{}
	flags := c.Flags()
	for _, name := range []string{
		"path", "host", "dry", "keep-dummies", "restore-path", "yes",
		"verbose", "detail", "log", "history-template", "history-index",
		"history-doc-type", "dummy-index-prefix",
	} {
		if !flags.Changed(name) {
			continue
		}
		switch name {
		case "path", "host", "detail":
			v, _ := flags.GetStringSlice(name)
			flagValues[name] = v
		case "dry", "keep-dummies", "yes", "verbose":
			v, _ := flags.GetBool(name)
			flagValues[name] = v
		default:
			v, _ := flags.GetString(name)
			flagValues[name] = v
		}
	}

	loaded, err := config.Load(flagValues)
	if err != nil {
		return err
	}
	cfg = loaded

	level := cfg.LogLevel
	if cfg.Verbose {
		level = "debug"
	}
	if err := observability.Init(level, cfg.LogPath); err != nil {
		return err
	}
	return nil
}

// storeFactory is the seam onto a live index-store client. Constructing
// one (bulk writes, scan/scroll, template/index CRUD, version probe
// against a real cluster) is explicitly out of scope for this engine: it
// is specified only by the store.Store interface it must present.
// Embedding programs call SetStoreFactory to supply a concrete client.
var storeFactory = func(hosts []string) (store.Store, error) {
	return nil, errors.New("no index-store client configured: call cmd.SetStoreFactory before Execute")
}

// SetStoreFactory installs the function used to construct a store.Store
// from the resolved -h/--host list. The engine core only ever depends on
// store.Store; wiring a concrete client here is the embedding program's
// responsibility.
func SetStoreFactory(f func(hosts []string) (store.Store, error)) {
	storeFactory = f
}

func openStore() (store.Store, error) {
	s, err := storeFactory(cfg.Hosts)
	if err != nil {
		return nil, fmt.Errorf("connect to index store: %w", err)
	}
	return s, nil
}
