package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subterminator/core/pkg/models"
)

func TestBuildPlanTranslatesCSSTargets(t *testing.T) {
	out := toolOutput{
		ActionType: "click",
		Targets: []targetSpec{
			{Method: "css", Selector: "#cancel"},
			{Method: "text", Text: "cancel", Exact: false},
		},
		Reasoning:  "the cancel button is visible",
		Confidence: 0.9,
	}
	plan, err := buildPlan(out)
	require.NoError(t, err)
	assert.Equal(t, models.ActionClick, plan.ActionType())
	assert.Equal(t, "css:#cancel", plan.Primary().Describe())
	assert.Len(t, plan.Fallbacks(), 1)
}

func TestBuildPlanRejectsUnknownActionType(t *testing.T) {
	out := toolOutput{
		ActionType: "teleport",
		Targets:    []targetSpec{{Method: "css", Selector: "#x"}},
		Confidence: 0.9,
	}
	_, err := buildPlan(out)
	assert.Error(t, err)
}

func TestBuildPlanRejectsNoTargets(t *testing.T) {
	out := toolOutput{ActionType: "click", Confidence: 0.9}
	_, err := buildPlan(out)
	assert.Error(t, err)
}

func TestBuildPlanCarriesExpectedNextState(t *testing.T) {
	out := toolOutput{
		ActionType:        "click",
		ExpectedNextState: string(models.StateRetentionOffer),
		Targets:           []targetSpec{{Method: "css", Selector: "#cancel"}, {Method: "coordinates", X: 1, Y: 2}},
		Confidence:        0.9,
	}
	plan, err := buildPlan(out)
	require.NoError(t, err)
	expected, ok := plan.ExpectedState()
	require.True(t, ok)
	assert.Equal(t, models.StateRetentionOffer, expected)
}
