package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cast"

	"github.com/rendis/netgraph/internal/lint"
)

// Config holds all netgraph server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr          string      `json:"listen_addr"`
	LogLevel            string      `json:"log_level"`
	DebounceMs          int         `json:"debounce_ms"`
	PoolSize            int         `json:"pool_size"`
	DefaultInputShape   []int       `json:"default_input_shape"`
	RepeatLoopThreshold int         `json:"repeat_loop_threshold"`
	Optimizer           string      `json:"optimizer,omitempty"`
	ImportQuery         string      `json:"import_query,omitempty"` // empty keeps the editor mapping
	LintRules           []lint.Rule `json:"lint_rules,omitempty"`   // nil keeps the built-in rules
	MCP                 bool        `json:"mcp"`
	DiagramBinDir       string      `json:"diagram_bin_dir"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:          ":4200",
		LogLevel:            "info",
		DebounceMs:          300,
		PoolSize:            4,
		DefaultInputShape:   []int{784},
		RepeatLoopThreshold: 3,
		DiagramBinDir:       filepath.Join(netgraphDir(), "bin"),
	}
}

// netgraphDir is ~/.netgraph, or $NETGRAPH_HOME when set.
func netgraphDir() string {
	if dir := os.Getenv("NETGRAPH_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".netgraph"
	}
	return filepath.Join(home, ".netgraph")
}

func settingsPath() string {
	return filepath.Join(netgraphDir(), "settings.json")
}

func pidPath() string {
	return filepath.Join(netgraphDir(), "netgraph.pid")
}

func loadConfig() (Config, error) {
	return loadConfigFrom(settingsPath(), os.Getenv)
}

// loadConfigFrom layers the settings file at path and the environment
// over the defaults. A missing file is not an error; a malformed one is.
func loadConfigFrom(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json.
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	// Layer 3: env vars override.
	var errs []error
	if v := getenv("NETGRAPH_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := getenv("NETGRAPH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	envInt(getenv, "NETGRAPH_DEBOUNCE_MS", &cfg.DebounceMs, &errs)
	envInt(getenv, "NETGRAPH_POOL_SIZE", &cfg.PoolSize, &errs)
	envInt(getenv, "NETGRAPH_REPEAT_LOOP_THRESHOLD", &cfg.RepeatLoopThreshold, &errs)
	if v := getenv("NETGRAPH_DEFAULT_INPUT_SHAPE"); v != "" {
		shape, err := parseShape(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("NETGRAPH_DEFAULT_INPUT_SHAPE: %w", err))
		} else {
			cfg.DefaultInputShape = shape
		}
	}
	if v := getenv("NETGRAPH_OPTIMIZER"); v != "" {
		cfg.Optimizer = v
	}
	if v := getenv("NETGRAPH_IMPORT_QUERY"); v != "" {
		cfg.ImportQuery = v
	}
	if v := getenv("NETGRAPH_MCP"); v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("NETGRAPH_MCP: %w", err))
		} else {
			cfg.MCP = b
		}
	}
	if v := getenv("NETGRAPH_DIAGRAM_BIN_DIR"); v != "" {
		cfg.DiagramBinDir = v
	}

	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	return cfg, errors.Join(errs...)
}

func envInt(getenv func(string) string, key string, dst *int, errs *[]error) {
	v := getenv(key)
	if v == "" {
		return
	}
	n, err := cast.ToIntE(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

// parseShape parses "28,28,1" or "28x28x1".
func parseShape(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == 'x' || r == ' ' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty shape %q", s)
	}
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := cast.ToIntE(f)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid dimension %q in %q", f, s)
		}
		out = append(out, n)
	}
	return out, nil
}

func (c Config) validate() error {
	var errs []error
	if c.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("debounce_ms must be >= 0, got %d", c.DebounceMs))
	}
	if c.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("pool_size must be >= 1, got %d", c.PoolSize))
	}
	if c.RepeatLoopThreshold < 1 {
		errs = append(errs, fmt.Errorf("repeat_loop_threshold must be >= 1, got %d", c.RepeatLoopThreshold))
	}
	for i, d := range c.DefaultInputShape {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("default_input_shape[%d] must be positive, got %d", i, d))
		}
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged bool
	ImportChanged   bool     // the panel decoder is rebuilt live
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.ImportQuery != new.ImportQuery {
		d.ImportChanged = true
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.DebounceMs != new.DebounceMs {
		d.RestartNeeded = append(d.RestartNeeded, "debounce_ms")
	}
	if old.PoolSize != new.PoolSize {
		d.RestartNeeded = append(d.RestartNeeded, "pool_size")
	}
	if !slices.Equal(old.DefaultInputShape, new.DefaultInputShape) {
		d.RestartNeeded = append(d.RestartNeeded, "default_input_shape")
	}
	if old.RepeatLoopThreshold != new.RepeatLoopThreshold {
		d.RestartNeeded = append(d.RestartNeeded, "repeat_loop_threshold")
	}
	if old.Optimizer != new.Optimizer {
		d.RestartNeeded = append(d.RestartNeeded, "optimizer")
	}
	if !slices.Equal(old.LintRules, new.LintRules) {
		d.RestartNeeded = append(d.RestartNeeded, "lint_rules")
	}
	if old.MCP != new.MCP {
		d.RestartNeeded = append(d.RestartNeeded, "mcp")
	}
	if old.DiagramBinDir != new.DiagramBinDir {
		d.RestartNeeded = append(d.RestartNeeded, "diagram_bin_dir")
	}
	return d
}
