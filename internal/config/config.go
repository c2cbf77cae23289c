// Package config loads the flat flags/env/file configuration this tool
// runs from, adapted from the teacher's viper-based loader: defaults are
// registered first, a config file is merged over them, then MIGRATES_-
// prefixed environment variables, then whatever the CLI's own flags
// resolved to last (§6 external interfaces).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/3leaps/migrates/pkg/bulkwriter"
	"github.com/3leaps/migrates/pkg/history"
	"github.com/3leaps/migrates/pkg/orchestrator"
)

const envPrefix = "MIGRATES"

// Config is the fully-resolved set of knobs every internal/cmd command
// reads from, built by Load.
type Config struct {
	// Paths are directories of user migration packages to discover units
	// from (-p/--path).
	Paths []string
	// Hosts are the index store endpoints to connect to (-h/--host).
	Hosts []string
	// RestorePath is where recovery files are written and, for the
	// restore_* commands, read from (-r/--restore-path).
	RestorePath string
	// KeepDummies disables the orchestrator's stage-10 shadow deletion
	// (-k/--keep-dummies), leaving shadows in place for inspection.
	KeepDummies bool
	// Dry runs the orchestrator read-only (-d/--dry); implies Yes.
	Dry bool
	// Yes skips confirmation prompts (-y/--yes).
	Yes bool
	// Verbose turns on before/after diff logging, one diff per (index,
	// type) pair (-v/--verbose), narrowed by Detail when it's non-empty.
	Verbose bool
	// Detail scopes verbose diff logging to indexes matching one of these
	// patterns (-l/--detail), overriding the plain Verbose flag.
	Detail []string
	// LogPath is an optional file path; empty means log to stderr.
	LogPath string
	// LogLevel is the zap level name passed to observability.Init
	// (raised to "debug" when Verbose is set).
	LogLevel string

	DummyIndexPrefix string
	HistoryIndex     string
	HistoryDocType   string
	HistoryTemplate  string

	Orchestrator orchestrator.Config
}

func defaults() Config {
	return Config{
		DummyIndexPrefix: orchestrator.DefaultShadowPrefix,
		HistoryIndex:     history.DefaultIndex,
		HistoryDocType:   history.DefaultDocType,
		HistoryTemplate:  history.DefaultTemplate,
		LogLevel:         "info",
	}
}

// Load builds a Config from, in ascending precedence: package defaults, an
// optional YAML file (migrates.yaml in the current directory or one named
// by the MIGRATES_CONFIG env var), MIGRATES_-prefixed env vars, and
// finally the already-parsed cobra flag values in flagValues (nil-safe;
// applyFlag ignores empty strings and slices and a false dry or yes).
func Load(flagValues map[string]any) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("migrates")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: read migrates.yaml: %w", err)
		}
	}

	cfg := defaults()
	applyViper(&cfg, v)
	for key, val := range flagValues {
		applyFlag(&cfg, key, val)
	}

	cfg.Orchestrator = orchestrator.Config{
		ShadowPrefix:   cfg.DummyIndexPrefix,
		Dry:            cfg.Dry,
		KeepDummies:    cfg.KeepDummies,
		DetailPatterns: cfg.Detail,
		Verbose:        cfg.Verbose,
		BulkWriter:     bulkwriter.Config{},
		History: history.Config{
			Index:    cfg.HistoryIndex,
			DocType:  cfg.HistoryDocType,
			Template: cfg.HistoryTemplate,
		},
	}
	return cfg, nil
}

func applyViper(cfg *Config, v *viper.Viper) {
	if s := v.GetStringSlice("path"); len(s) > 0 {
		cfg.Paths = s
	}
	if s := v.GetStringSlice("host"); len(s) > 0 {
		cfg.Hosts = s
	}
	if s := v.GetString("restore-path"); s != "" {
		cfg.RestorePath = s
	}
	if s := v.GetString("dummy-index-prefix"); s != "" {
		cfg.DummyIndexPrefix = s
	}
	if s := v.GetString("history-index"); s != "" {
		cfg.HistoryIndex = s
	}
	if s := v.GetString("history-doc-type"); s != "" {
		cfg.HistoryDocType = s
	}
	if s := v.GetString("history-template"); s != "" {
		cfg.HistoryTemplate = s
	}
	if s := v.GetString("log"); s != "" {
		cfg.LogPath = s
	}
	if v.IsSet("keep-dummies") {
		cfg.KeepDummies = v.GetBool("keep-dummies")
	}
	if v.IsSet("dry") {
		cfg.Dry = v.GetBool("dry")
	}
	if v.IsSet("yes") {
		cfg.Yes = v.GetBool("yes")
	}
	if cfg.Dry {
		cfg.Yes = true
	}
	if v.IsSet("verbose") {
		cfg.Verbose = v.GetBool("verbose")
	}
}

// applyFlag overlays a single already-parsed cobra flag value, keyed by
// its long flag name, onto cfg. Cobra flags always win over the file/env
// layers since they're the most specific thing the operator typed.
func applyFlag(cfg *Config, name string, val any) {
	switch name {
	case "path":
		if s, ok := val.([]string); ok && len(s) > 0 {
			cfg.Paths = s
		}
	case "host":
		if s, ok := val.([]string); ok && len(s) > 0 {
			cfg.Hosts = s
		}
	case "restore-path":
		if s, ok := val.(string); ok && s != "" {
			cfg.RestorePath = s
		}
	case "dry":
		if b, ok := val.(bool); ok && b {
			cfg.Dry = true
			cfg.Yes = true
		}
	case "keep-dummies":
		if b, ok := val.(bool); ok {
			cfg.KeepDummies = b
		}
	case "yes":
		if b, ok := val.(bool); ok && b {
			cfg.Yes = true
		}
	case "verbose":
		if b, ok := val.(bool); ok {
			cfg.Verbose = b
		}
	case "detail":
		if s, ok := val.([]string); ok && len(s) > 0 {
			cfg.Detail = s
		}
	case "log":
		if s, ok := val.(string); ok && s != "" {
			cfg.LogPath = s
		}
	case "dummy-index-prefix":
		if s, ok := val.(string); ok && s != "" {
			cfg.DummyIndexPrefix = s
		}
	case "history-index":
		if s, ok := val.(string); ok && s != "" {
			cfg.HistoryIndex = s
		}
	case "history-doc-type":
		if s, ok := val.(string); ok && s != "" {
			cfg.HistoryDocType = s
		}
	case "history-template":
		if s, ok := val.(string); ok && s != "" {
			cfg.HistoryTemplate = s
		}
	}
}
