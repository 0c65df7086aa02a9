package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCSSStrategyRejectsEmpty(t *testing.T) {
	_, err := NewCSSStrategy("")
	assert.Error(t, err)
}

func TestNewARIAStrategyRequiresRole(t *testing.T) {
	_, err := NewARIAStrategy("", "Cancel")
	assert.Error(t, err)

	s, err := NewARIAStrategy("button", "")
	require.NoError(t, err)
	role, name := s.ARIA()
	assert.Equal(t, "button", role)
	assert.Equal(t, "", name)
}

func TestNewCoordinatesStrategyBoundary(t *testing.T) {
	_, err := NewCoordinatesStrategy(-1, 0)
	assert.Error(t, err)

	s, err := NewCoordinatesStrategy(0, 0)
	require.NoError(t, err)
	x, y := s.Coordinates()
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)
}

func TestDescribeIsDeterministic(t *testing.T) {
	s1, _ := NewARIAStrategy("button", "Cancel membership")
	s2, _ := NewARIAStrategy("button", "Cancel membership")
	assert.Equal(t, s1.Describe(), s2.Describe())
}

func TestAllowedTransitions(t *testing.T) {
	assert.True(t, Allowed(StateAccountActive, StateRetentionOffer))
	assert.True(t, Allowed(StateRetentionOffer, StateRetentionOffer))
	assert.False(t, Allowed(StateAccountActive, StateComplete))
	assert.True(t, Allowed(StateUnknown, StateAccountActive))
	assert.True(t, Allowed(StateUnknown, StateFailed))
	assert.False(t, Allowed(StateUnknown, StateComplete))
	assert.True(t, Allowed(StateAccountCancelled, StateComplete))
	assert.False(t, Allowed(StateAccountCancelled, StateFailed))
}

func TestTerminalStatesExcludeUnknown(t *testing.T) {
	assert.True(t, StateComplete.Terminal())
	assert.True(t, StateAborted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateUnknown.Terminal())
}
