package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/netgraph/internal/lint"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("NETGRAPH_HOME", home)

	cfg, err := loadConfigFrom(filepath.Join(home, "settings.json"), envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, ":4200", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 300, cfg.DebounceMs)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, []int{784}, cfg.DefaultInputShape)
	assert.Equal(t, 3, cfg.RepeatLoopThreshold)
	assert.Equal(t, filepath.Join(home, "bin"), cfg.DiagramBinDir)
	assert.False(t, cfg.MCP)
	assert.Nil(t, cfg.LintRules)
}

func TestLoadConfig_SettingsFile(t *testing.T) {
	path := writeSettings(t, `{
  "listen_addr": ":9000",
  "pool_size": 8,
  "default_input_shape": [28, 28, 1],
  "optimizer": "sgd",
  "lint_rules": [{"name": "tiny", "when": "true", "message": "always"}]
}`)

	cfg, err := loadConfigFrom(path, envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 8, cfg.PoolSize)
	assert.Equal(t, []int{28, 28, 1}, cfg.DefaultInputShape)
	assert.Equal(t, "sgd", cfg.Optimizer)
	require.Len(t, cfg.LintRules, 1)
	assert.Equal(t, "tiny", cfg.LintRules[0].Name)
	// untouched keys keep their defaults
	assert.Equal(t, 300, cfg.DebounceMs)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeSettings(t, `{"listen_addr": ":9000", "debounce_ms": 100}`)

	cfg, err := loadConfigFrom(path, envMap(map[string]string{
		"NETGRAPH_LISTEN_ADDR":         ":7000",
		"NETGRAPH_DEBOUNCE_MS":         " 50 ",
		"NETGRAPH_DEFAULT_INPUT_SHAPE": "32x32x3",
		"NETGRAPH_MCP":                 "true",
		"NETGRAPH_LOG_LEVEL":           "debug",
		"NETGRAPH_IMPORT_QUERY":        ".",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.ListenAddr)
	assert.Equal(t, 50, cfg.DebounceMs)
	assert.Equal(t, []int{32, 32, 3}, cfg.DefaultInputShape)
	assert.True(t, cfg.MCP)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ".", cfg.ImportQuery)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := writeSettings(t, `{"listen_addr": `)
	_, err := loadConfigFrom(path, envMap(nil))
	assert.ErrorContains(t, err, "parse "+path)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	path := writeSettings(t, `{"pool_size": 0, "log_level": "loud"}`)

	_, err := loadConfigFrom(path, envMap(map[string]string{
		"NETGRAPH_DEBOUNCE_MS": "soon",
		"NETGRAPH_MCP":         "maybe",
	}))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "NETGRAPH_DEBOUNCE_MS")
	assert.Contains(t, msg, "NETGRAPH_MCP")
	assert.Contains(t, msg, "pool_size must be >= 1")
	assert.Contains(t, msg, "log_level")
}

func TestParseShape(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"784", []int{784}, false},
		{"28,28,1", []int{28, 28, 1}, false},
		{"28x28x1", []int{28, 28, 1}, false},
		{"28, 28, 1", []int{28, 28, 1}, false},
		{"", nil, true},
		{"28,0", nil, true},
		{"28,-1", nil, true},
		{"a,b", nil, true},
	}
	for _, tt := range tests {
		got, err := parseShape(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDiffConfigs(t *testing.T) {
	old := defaultConfig()

	d := diffConfigs(old, old)
	assert.False(t, d.LogLevelChanged)
	assert.False(t, d.ImportChanged)
	assert.Empty(t, d.RestartNeeded)

	updated := old
	updated.LogLevel = "debug"
	updated.ImportQuery = "."
	updated.PoolSize = 16
	updated.DefaultInputShape = []int{32}
	updated.LintRules = []lint.Rule{{Name: "x", When: "true", Message: "x"}}

	d = diffConfigs(old, updated)
	assert.True(t, d.LogLevelChanged)
	assert.True(t, d.ImportChanged)
	assert.Equal(t, []string{"pool_size", "default_input_shape", "lint_rules"}, d.RestartNeeded)
}
