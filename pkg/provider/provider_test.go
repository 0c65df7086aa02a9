package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureInitializedFailsFastWithoutAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CLAUDE_DA_DB_PATH", "./does-not-matter.db")

	b := New()
	err1 := b.EnsureInitialized(context.Background())
	assert.Error(t, err1)

	// Second call must return the cached error without re-attempting I/O.
	err2 := b.EnsureInitialized(context.Background())
	assert.Equal(t, err1, err2)
}
