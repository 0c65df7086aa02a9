package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subterminator/core/pkg/models"
)

func TestLoadMergesOntoBuiltinDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hulu.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: hulu\nentry_url: https://hulu.com/account\n"), 0o644))

	def, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hulu", def.Name)
	assert.Equal(t, "https://hulu.com/account", def.EntryURL)
	// Fallbacks are untouched by the override file, so the builtin defaults survive.
	assert.Len(t, def.HardcodedFallbacks, 2)
}

func TestFallbackForUnknownStateReturnsFalse(t *testing.T) {
	def := BuiltinDefault
	_, ok, err := def.FallbackFor(models.StateExitSurvey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFallbackForKnownState(t *testing.T) {
	def := BuiltinDefault
	strat, ok, err := def.FallbackFor(models.StateAccountActive)
	require.NoError(t, err)
	require.True(t, ok)
	text, _ := strat.Text()
	assert.Equal(t, "cancel membership", text)
}

func TestHeuristicOverridesTakePriorityOverDefault(t *testing.T) {
	def := Definition{
		Name: "test-service",
		HeuristicOverrides: []RuleOverrideYAML{
			{
				Reason:     "custom complete text",
				TextAny:    []string{"goodbye forever"},
				State:      models.StateComplete,
				Confidence: 0.99,
			},
		},
	}
	in := def.Heuristic()
	res := in.Interpret("https://example.com", "goodbye forever")
	assert.Equal(t, models.StateComplete, res.State)
	assert.InDelta(t, 0.99, res.Confidence, 0.0001)
}
