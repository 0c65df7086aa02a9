package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminalStates(t *testing.T) {
	assert.True(t, StateComplete.Terminal())
	assert.True(t, StateAborted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateAccountActive.Terminal())
	assert.False(t, StateUnknown.Terminal())
}

func TestAllowedFollowsTheTransitionGraph(t *testing.T) {
	assert.True(t, Allowed(StateStart, StateAccountActive))
	assert.True(t, Allowed(StateAccountActive, StateRetentionOffer))
	assert.True(t, Allowed(StateFinalConfirmation, StateComplete))
	assert.False(t, Allowed(StateStart, StateComplete))
	assert.False(t, Allowed(StateAccountCancelled, StateRetentionOffer))
}

func TestAllowedExpandsUnknownToAnyNonTerminalOrFailed(t *testing.T) {
	assert.True(t, Allowed(StateUnknown, StateFailed))
	assert.True(t, Allowed(StateUnknown, StateLoginRequired))
	assert.False(t, Allowed(StateUnknown, StateComplete))
	assert.False(t, Allowed(StateUnknown, StateAborted))
}
