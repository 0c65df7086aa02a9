package models

import "fmt"

// ActionType is the closed sum of things an ActionPlan can ask the browser
// driver to do (§3, §9 "Tagged variants").
type ActionType string

const (
	ActionClick    ActionType = "click"
	ActionFill     ActionType = "fill"
	ActionSelect   ActionType = "select"
	ActionScroll   ActionType = "scroll"
	ActionWait     ActionType = "wait"
	ActionNavigate ActionType = "navigate"
)

// MaxFallbackTargets is the invariant bound on ActionPlan.fallback_targets.
const MaxFallbackTargets = 3

// ActionPlan is the planner's structured output: a primary target plus up to
// three fallbacks, immutable after construction via NewActionPlan.
type ActionPlan struct {
	primary       TargetStrategy
	fallbacks     []TargetStrategy
	actionType    ActionType
	value         string
	hasValue      bool
	reasoning     string
	confidence    float64
	expectedState State
	hasExpected   bool
}

// ActionPlanInput collects the constructor arguments for NewActionPlan.
type ActionPlanInput struct {
	Primary       TargetStrategy
	Fallbacks     []TargetStrategy
	ActionType    ActionType
	Value         *string
	Reasoning     string
	Confidence    float64
	ExpectedState *State
}

// NewActionPlan validates and constructs an ActionPlan. Enforces: at most
// MaxFallbackTargets fallbacks, confidence in [0,1], and that a value is
// present when required by ActionType (fill/select).
func NewActionPlan(in ActionPlanInput) (*ActionPlan, error) {
	if len(in.Fallbacks) > MaxFallbackTargets {
		return nil, fmt.Errorf("fallback_targets has %d entries, max is %d", len(in.Fallbacks), MaxFallbackTargets)
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return nil, fmt.Errorf("confidence %f is out of range [0,1]", in.Confidence)
	}
	switch in.ActionType {
	case ActionClick, ActionFill, ActionSelect, ActionScroll, ActionWait, ActionNavigate:
	default:
		return nil, fmt.Errorf("unrecognized action_type %q", in.ActionType)
	}
	if (in.ActionType == ActionFill || in.ActionType == ActionSelect) && in.Value == nil {
		return nil, fmt.Errorf("action_type %q requires a value", in.ActionType)
	}

	p := &ActionPlan{
		primary:    in.Primary,
		fallbacks:  append([]TargetStrategy(nil), in.Fallbacks...),
		actionType: in.ActionType,
		reasoning:  in.Reasoning,
		confidence: in.Confidence,
	}
	if in.Value != nil {
		p.value = *in.Value
		p.hasValue = true
	}
	if in.ExpectedState != nil {
		p.expectedState = *in.ExpectedState
		p.hasExpected = true
	}
	return p, nil
}

// Primary returns the plan's primary target strategy.
func (p *ActionPlan) Primary() TargetStrategy { return p.primary }

// Fallbacks returns the plan's fallback strategies, in priority order.
func (p *ActionPlan) Fallbacks() []TargetStrategy { return p.fallbacks }

// Strategies returns primary followed by fallbacks, the full priority order
// the agent's execute step walks.
func (p *ActionPlan) Strategies() []TargetStrategy {
	return append([]TargetStrategy{p.primary}, p.fallbacks...)
}

// ActionType returns the plan's action type.
func (p *ActionPlan) ActionType() ActionType { return p.actionType }

// Value returns the fill/select value and whether one was set.
func (p *ActionPlan) Value() (string, bool) { return p.value, p.hasValue }

// Reasoning returns the planner's free-text rationale.
func (p *ActionPlan) Reasoning() string { return p.reasoning }

// Confidence returns the planner's confidence in [0,1].
func (p *ActionPlan) Confidence() float64 { return p.confidence }

// ExpectedState returns the expected post-action state and whether one was set.
func (p *ActionPlan) ExpectedState() (State, bool) { return p.expectedState, p.hasExpected }
