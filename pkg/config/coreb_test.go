package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
	fn()
}

func TestLoadCoreBRequiresAPIKey(t *testing.T) {
	withEnv(t, map[string]string{"ANTHROPIC_API_KEY": ""}, func() {
		_, err := LoadCoreB()
		assert.Error(t, err)
	})
}

func TestLoadCoreBDefaults(t *testing.T) {
	withEnv(t, map[string]string{"ANTHROPIC_API_KEY": "sk-test"}, func() {
		cfg, err := LoadCoreB()
		require.NoError(t, err)
		assert.Equal(t, "./demo.db", cfg.DBPath)
		assert.Equal(t, 10, cfg.MaxTurns)
		assert.InDelta(t, 0.50, cfg.MaxBudgetUSD, 0.0001)
		assert.Equal(t, 10000, cfg.InputMaxChars)
		assert.Equal(t, LogOutputStdout, cfg.LogOutput)
		assert.Equal(t, "mcp__sqlite__", cfg.ToolPrefix)
	})
}

func TestLoadCoreBRejectsInvalidLogOutput(t *testing.T) {
	withEnv(t, map[string]string{
		"ANTHROPIC_API_KEY":  "sk-test",
		"CLAUDE_DA_LOG_OUTPUT": "carrier-pigeon",
	}, func() {
		_, err := LoadCoreB()
		assert.Error(t, err)
	})
}

func TestLoadCoreBFileOutputRequiresPath(t *testing.T) {
	withEnv(t, map[string]string{
		"ANTHROPIC_API_KEY":  "sk-test",
		"CLAUDE_DA_LOG_OUTPUT": "file",
		"CLAUDE_DA_LOG_FILE":   "",
	}, func() {
		_, err := LoadCoreB()
		assert.Error(t, err)
	})
}
