package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCoreADefaults(t *testing.T) {
	withEnv(t, map[string]string{"ANTHROPIC_API_KEY": ""}, func() {
		cfg, err := LoadCoreA()
		require.NoError(t, err)
		assert.Equal(t, "./output", cfg.OutputDir)
		assert.Equal(t, 30000*1_000_000, int(cfg.PageTimeout))
		assert.Equal(t, 10000*1_000_000, int(cfg.ElementTimeout))
		assert.Equal(t, 3, cfg.MaxRetries)
		assert.Equal(t, 10, cfg.MaxTransitions)
		assert.Empty(t, cfg.AnthropicAPIKey)
	})
}

func TestLoadCoreARejectsInvalidTimeout(t *testing.T) {
	withEnv(t, map[string]string{"SUBTERMINATOR_PAGE_TIMEOUT": "not-a-number"}, func() {
		_, err := LoadCoreA()
		assert.Error(t, err)
	})
}
