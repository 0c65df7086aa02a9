package cancelagent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subterminator/core/pkg/browser"
	"github.com/subterminator/core/pkg/cansession"
	"github.com/subterminator/core/pkg/heuristic"
	"github.com/subterminator/core/pkg/models"
)

type fakeBrain struct {
	plan    *models.ActionPlan
	planErr error

	selfCorrectStrategies []string
	selfCorrectErrs       []string
}

func (f *fakeBrain) Plan(ctx context.Context, agentCtx *models.AgentContext, goal string) (*models.ActionPlan, error) {
	return f.plan, f.planErr
}

func (f *fakeBrain) SelfCorrect(ctx context.Context, agentCtx *models.AgentContext, goal, failedStrategyDescription, failedErrorMessage string) (*models.ActionPlan, error) {
	f.selfCorrectStrategies = append(f.selfCorrectStrategies, failedStrategyDescription)
	f.selfCorrectErrs = append(f.selfCorrectErrs, failedErrorMessage)
	return f.plan, f.planErr
}

func mustPlan(t *testing.T, target models.TargetStrategy, actionType models.ActionType, expected models.State) *models.ActionPlan {
	t.Helper()
	plan, err := models.NewActionPlan(models.ActionPlanInput{
		Primary:       target,
		ActionType:    actionType,
		Reasoning:     "test",
		Confidence:    0.9,
		ExpectedState: &expected,
	})
	require.NoError(t, err)
	return plan
}

func TestHandleStateSucceedsOnFirstAttempt(t *testing.T) {
	mockDriver := &browser.Mock{Pages: []browser.MockPage{
		{URL: "https://netflix.com/account", Text: "cancel membership"},
		{URL: "https://netflix.com/retention", Text: "before you go, special offer"},
	}}
	text, _ := models.NewTextStrategy("cancel membership", false)
	brain := &fakeBrain{plan: mustPlan(t, text, models.ActionClick, models.StateRetentionOffer)}

	agent := New(mockDriver, brain, heuristic.NewDefault(), nil)
	next, err := agent.HandleState(context.Background(), models.StateAccountActive)
	require.NoError(t, err)
	assert.Equal(t, models.StateRetentionOffer, next)
}

func TestHandleStateReturnsUnknownWhenValidationNeverSucceeds(t *testing.T) {
	mockDriver := &browser.Mock{Pages: []browser.MockPage{
		{URL: "https://netflix.com/account", Text: "cancel membership"},
	}}
	text, _ := models.NewTextStrategy("cancel membership", false)
	// expects RETENTION_OFFER but the mock page never advances to it
	brain := &fakeBrain{plan: mustPlan(t, text, models.ActionClick, models.StateRetentionOffer)}

	agent := New(mockDriver, brain, heuristic.NewDefault(), nil)
	next, err := agent.HandleState(context.Background(), models.StateAccountActive)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnknown, next)
}

func TestHandleStateRejectsStateWithNoGoal(t *testing.T) {
	mockDriver := &browser.Mock{Pages: []browser.MockPage{{URL: "x", Text: "y"}}}
	agent := New(mockDriver, &fakeBrain{}, heuristic.NewDefault(), nil)
	_, err := agent.HandleState(context.Background(), models.StateComplete)
	assert.Error(t, err)
}

func TestHandleStateFeedsValidationMismatchIntoSelfCorrect(t *testing.T) {
	mockDriver := &browser.Mock{Pages: []browser.MockPage{
		{URL: "https://netflix.com/account", Text: "cancel membership"},
	}}
	text, _ := models.NewTextStrategy("cancel membership", false)
	// execute always succeeds (the click lands) but the page never reaches
	// RETENTION_OFFER, so validate fails every attempt.
	brain := &fakeBrain{plan: mustPlan(t, text, models.ActionClick, models.StateRetentionOffer)}

	agent := New(mockDriver, brain, heuristic.NewDefault(), nil)
	next, err := agent.HandleState(context.Background(), models.StateAccountActive)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnknown, next)

	// SelfCorrect is called on attempts 2 and 3; both should carry the
	// validation mismatch, not a stale/empty execute-failure description.
	require.Len(t, brain.selfCorrectErrs, 2)
	for _, msg := range brain.selfCorrectErrs {
		assert.Contains(t, msg, "expected state")
		assert.Contains(t, msg, string(models.StateRetentionOffer))
	}
	for _, strategy := range brain.selfCorrectStrategies {
		assert.Equal(t, "text:\"cancel membership\"", strategy)
	}
}

func TestHandleStateRecordsAICallsOnSession(t *testing.T) {
	mockDriver := &browser.Mock{Pages: []browser.MockPage{
		{URL: "https://netflix.com/account", Text: "cancel membership"},
		{URL: "https://netflix.com/retention", Text: "before you go, special offer"},
	}}
	text, _ := models.NewTextStrategy("cancel membership", false)
	brain := &fakeBrain{plan: mustPlan(t, text, models.ActionClick, models.StateRetentionOffer)}

	sess, err := cansession.New(t.TempDir(), "netflix", time.Now())
	require.NoError(t, err)

	agent := New(mockDriver, brain, heuristic.NewDefault(), sess)
	_, err = agent.HandleState(context.Background(), models.StateAccountActive)
	require.NoError(t, err)

	require.NoError(t, sess.Finalize("success", models.StateRetentionOffer, nil))

	data, err := os.ReadFile(filepath.Join(sess.Dir(), "session.json"))
	require.NoError(t, err)
	var manifest cansession.Manifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	require.Len(t, manifest.AICalls, 1)
	assert.Equal(t, string(models.StateAccountActive), manifest.AICalls[0].State)
	assert.Equal(t, "test", manifest.AICalls[0].Reasoning)
	assert.Equal(t, 0.9, manifest.AICalls[0].Confidence)
}
