// Package cancelagent implements the per-state agent loop: perceive, plan,
// execute, validate, self-correct (§4.2). Grounded on codeready-toolchain-
// tarsy's controller/streaming.go call-then-collect shape, adapted from one
// LM call per turn to the planner's multi-strategy execute/validate cycle.
package cancelagent

import (
	"context"
	"fmt"
	"time"

	"github.com/subterminator/core/pkg/browser"
	"github.com/subterminator/core/pkg/cansession"
	"github.com/subterminator/core/pkg/heuristic"
	"github.com/subterminator/core/pkg/models"
	"github.com/subterminator/core/pkg/taxonomy"
)

// Brain is the planner capability the agent depends on — satisfied by
// *planner.Planner in production and by a stub in tests, per the pack's
// dynamic-dispatch convention for planner/heuristic/browser (§9).
type Brain interface {
	Plan(ctx context.Context, agentCtx *models.AgentContext, goal string) (*models.ActionPlan, error)
	SelfCorrect(ctx context.Context, agentCtx *models.AgentContext, goal, failedStrategyDescription, failedErrorMessage string) (*models.ActionPlan, error)
}

// perStrategyTimeout and maxStrategiesPerPlan bound execute (§4.2 "Execute
// contract"): 3,000ms per strategy, total <= 4 * 3,000ms (1 primary + up to
// 3 fallbacks).
const perStrategyTimeout = 3000 * time.Millisecond
const postActionSettle = 1000 * time.Millisecond

// stateGoal is one row of the static per-state goal/expectedNext table
// (§4.2 step 1).
type stateGoal struct {
	Goal         string
	ExpectedNext models.State
}

// goalTable holds the states the agent is responsible for; START,
// LOGIN_REQUIRED, FINAL_CONFIRMATION, ACCOUNT_CANCELLED, and
// THIRD_PARTY_BILLING are handled directly by the orchestrator (§4.1).
var goalTable = map[models.State]stateGoal{
	models.StateAccountActive:  {Goal: "Click the cancel membership link", ExpectedNext: models.StateRetentionOffer},
	models.StateRetentionOffer: {Goal: "Decline the retention offer and continue cancelling", ExpectedNext: models.StateExitSurvey},
	models.StateExitSurvey:     {Goal: "Complete the exit survey and proceed to final confirmation", ExpectedNext: models.StateFinalConfirmation},
}

// validProgressions lets validate accept a state further along the flow
// than expectedNext when the flow legitimately skips a page (§4.2 "skip-a-state
// acceptance").
var validProgressions = map[models.State][]models.State{
	models.StateRetentionOffer: {models.StateExitSurvey, models.StateFinalConfirmation},
	models.StateExitSurvey:     {models.StateFinalConfirmation},
}

// MaxRetries bounds attempts within handleState (§4.2 step 2).
const MaxRetries = 3

// Agent drives one state's perceive/plan/execute/validate cycle. It holds
// borrowed references to the browser, planner, and heuristic; it owns its
// own action/error history until the orchestrator clears it at flow start
// (§3).
type Agent struct {
	driver   browser.Driver
	planner  Brain
	detector *heuristic.Interpreter
	session  *cansession.Session

	actions []models.ActionRecord
	errors  []models.ErrorRecord
}

// New builds an Agent over borrowed collaborators. session may be nil (e.g.
// in tests that don't exercise the per-run log), in which case AI calls are
// simply not recorded.
func New(driver browser.Driver, p Brain, detector *heuristic.Interpreter, session *cansession.Session) *Agent {
	return &Agent{driver: driver, planner: p, detector: detector, session: session}
}

// ClearHistory discards accumulated action/error history (called by the
// orchestrator at flow start, §3).
func (a *Agent) ClearHistory() {
	a.actions = nil
	a.errors = nil
}

// HandleState runs the perceive/plan/execute/validate loop for s and
// returns the resulting state, or UNKNOWN if every attempt fails to
// validate (§4.2).
func (a *Agent) HandleState(ctx context.Context, s models.State) (models.State, error) {
	sg, ok := goalTable[s]
	if !ok {
		return models.StateUnknown, taxonomy.New(taxonomy.KindConfiguration, "agent has no goal for state", nil)
	}

	var lastValidation *models.ValidationResult
	var lastFailedStrategy, lastFailedErr string

	for attempt := 1; attempt <= MaxRetries; attempt++ {
		agentCtx, err := a.perceive(ctx)
		if err != nil {
			return models.StateUnknown, err
		}

		var plan *models.ActionPlan
		if attempt == 1 {
			plan, err = a.planner.Plan(ctx, agentCtx, sg.Goal)
		} else {
			plan, err = a.planner.SelfCorrect(ctx, agentCtx, sg.Goal, lastFailedStrategy, lastFailedErr)
		}
		if err != nil {
			return models.StateUnknown, err
		}
		if a.session != nil {
			a.session.RecordAICall(s, plan.Reasoning(), plan.Confidence())
		}

		result, execErr := a.execute(ctx, plan)
		if execErr != nil || !result.Success {
			lastFailedStrategy = result.StrategyUsed.Describe()
			if execErr != nil {
				lastFailedErr = execErr.Error()
			} else {
				lastFailedErr = "all targeting strategies failed"
			}
			a.errors = append(a.errors, models.ErrorRecord{
				Kind:      "element_not_found",
				Message:   lastFailedErr,
				Strategy:  "all",
				Timestamp: nowFn(),
			})
			continue
		}

		validation, err := a.validate(ctx, plan)
		if err != nil {
			return models.StateUnknown, err
		}
		lastValidation = &validation
		if validation.Success {
			return validation.ActualState, nil
		}

		lastFailedStrategy = result.StrategyUsed.Describe()
		lastFailedErr = fmt.Sprintf("expected state %q after action, observed %q", validation.ExpectedState, validation.ActualState)
		a.errors = append(a.errors, models.ErrorRecord{
			Kind:      "state_detection_error",
			Message:   lastFailedErr,
			Strategy:  lastFailedStrategy,
			Timestamp: nowFn(),
		})
	}
	_ = lastValidation
	return models.StateUnknown, nil
}

// perceive gathers the observation set fed to the planner (§4.2 "Perceive
// contract").
func (a *Agent) perceive(ctx context.Context) (*models.AgentContext, error) {
	screenshot, err := a.driver.Screenshot(ctx)
	if err != nil {
		return nil, err
	}

	tree, err := a.driver.AccessibilityTree(ctx)
	if err != nil {
		tree = "{}"
	}

	url, err := a.driver.URL(ctx)
	if err != nil {
		return nil, err
	}
	visibleText, err := a.driver.VisibleText(ctx)
	if err != nil {
		return nil, err
	}
	w, h, _ := a.driver.Viewport(ctx)
	sx, sy, _ := a.driver.ScrollPosition(ctx)

	return &models.AgentContext{
		Screenshot:        screenshot,
		AccessibilityTree: tree,
		HTMLSnippet:       a.bestEffortHTMLSnippet(ctx),
		URL:               url,
		VisibleText:       visibleText,
		ViewportW:         w,
		ViewportH:         h,
		ScrollX:           sx,
		ScrollY:           sy,
		RecentActions:     models.RecentActions(a.actions),
		Errors:            a.errors,
	}, nil
}

func (a *Agent) bestEffortHTMLSnippet(ctx context.Context) string {
	html, err := a.driver.HTML(ctx)
	if err != nil {
		return ""
	}
	if len(html) > models.MaxHTMLSnippetChars {
		return html[:models.MaxHTMLSnippetChars]
	}
	return html
}

// execute dispatches to the browser for each strategy in priority order,
// stopping at the first success (§4.2 "Execute contract").
func (a *Agent) execute(ctx context.Context, plan *models.ActionPlan) (models.ExecutionResult, error) {
	value, _ := plan.Value()

	for _, strategy := range plan.Strategies() {
		strategyCtx, cancel := context.WithTimeout(ctx, perStrategyTimeout)
		err := a.dispatch(strategyCtx, plan.ActionType(), strategy, value)
		cancel()
		if err == nil {
			time.Sleep(postActionSettle)
			post, _ := a.driver.Screenshot(ctx)
			a.actions = append(a.actions, models.ActionRecord{
				ActionType: plan.ActionType(),
				Target:     strategy.Describe(),
				Success:    true,
				Timestamp:  nowFn(),
			})
			if len(a.actions) > models.MaxActionHistory {
				a.actions = a.actions[len(a.actions)-models.MaxActionHistory:]
			}
			return models.ExecutionResult{
				Success:        true,
				Plan:           plan,
				StrategyUsed:   strategy,
				PostScreenshot: post,
			}, nil
		}
	}
	strategies := plan.Strategies()
	last := strategies[len(strategies)-1]
	return models.ExecutionResult{Success: false, Plan: plan, StrategyUsed: last}, nil
}

func (a *Agent) dispatch(ctx context.Context, actionType models.ActionType, strategy models.TargetStrategy, value string) error {
	switch actionType {
	case models.ActionClick:
		return a.clickStrategy(ctx, strategy)
	case models.ActionFill:
		sel, err := selectorFor(strategy)
		if err != nil {
			return err
		}
		return a.driver.Fill(ctx, sel, value)
	case models.ActionSelect:
		sel, err := selectorFor(strategy)
		if err != nil {
			return err
		}
		return a.driver.SelectOption(ctx, sel, value)
	case models.ActionNavigate:
		return a.driver.Navigate(ctx, value, perStrategyTimeout)
	case models.ActionWait:
		time.Sleep(perStrategyTimeout)
		return nil
	case models.ActionScroll:
		_, err := a.driver.Evaluate(ctx, "() => window.scrollBy(0, 400)")
		return err
	default:
		return taxonomy.New(taxonomy.KindConfiguration, "unknown action type", nil)
	}
}

func (a *Agent) clickStrategy(ctx context.Context, strategy models.TargetStrategy) error {
	switch strategy.Method() {
	case models.MethodCSS:
		return a.driver.Click(ctx, []string{strategy.CSS()})
	case models.MethodARIA:
		role, name := strategy.ARIA()
		return a.driver.ClickByRole(ctx, role, name)
	case models.MethodText:
		text, exact := strategy.Text()
		return a.driver.ClickByText(ctx, text, exact)
	case models.MethodCoordinates:
		x, y := strategy.Coordinates()
		return a.driver.ClickAtCoordinates(ctx, x, y)
	default:
		return taxonomy.New(taxonomy.KindConfiguration, "unknown target method", nil)
	}
}

func selectorFor(strategy models.TargetStrategy) (string, error) {
	if strategy.Method() != models.MethodCSS {
		return "", taxonomy.New(taxonomy.KindConfiguration, "fill/select require a css strategy", nil)
	}
	return strategy.CSS(), nil
}

// validate queries the browser's current URL/text, interprets them, and
// checks against plan.ExpectedState (with skip-a-state acceptance) (§4.2
// "Validate contract").
func (a *Agent) validate(ctx context.Context, plan *models.ActionPlan) (models.ValidationResult, error) {
	url, err := a.driver.URL(ctx)
	if err != nil {
		return models.ValidationResult{}, err
	}
	text, err := a.driver.VisibleText(ctx)
	if err != nil {
		return models.ValidationResult{}, err
	}

	res := a.detector.Interpret(url, text)
	expected, hasExpected := plan.ExpectedState()

	success := !hasExpected || res.State == expected
	if !success {
		for _, allowed := range validProgressions[expected] {
			if res.State == allowed {
				success = true
				break
			}
		}
	}

	return models.ValidationResult{
		Success:               success,
		ExpectedState:         expected,
		ActualState:           res.State,
		InterpreterConfidence: res.Confidence,
	}, nil
}

// nowFn is a seam for deterministic tests; production code leaves it at the
// package default (time.Now).
var nowFn = time.Now
