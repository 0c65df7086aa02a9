// Package planner translates an AgentContext and goal into an ActionPlan
// via a vision-capable language-model call (§4.3). Grounded on
// codeready-toolchain-tarsy/pkg/agent/controller/streaming.go's call/collect
// split and goadesign-goa-ai's tool-input JSON-schema encoding pattern.
package planner

import (
	"context"
	"encoding/json"
	"time"

	"github.com/subterminator/core/pkg/llmclient"
	"github.com/subterminator/core/pkg/models"
	"github.com/subterminator/core/pkg/taxonomy"
)

// lowConfidenceGate is the threshold below which a plan triggers one retry
// before failing outright (§4.3 "Confidence gate").
const lowConfidenceGate = 0.6

// perCallTimeout and totalTimeout bound the planner's LM usage (§4.3
// "Async contract"): two sequential calls at most (confidence-gate retry).
const perCallTimeout = 30 * time.Second
const totalTimeout = 60 * time.Second

const systemPrompt = `You are a browser automation agent cancelling a subscription.
When identifying an element, prefer methods in this priority order: css > aria > text > coordinates.
Always provide at least two targeting methods (a primary and at least one fallback).
Your confidence must honestly reflect your certainty; report the UNKNOWN state when it is genuinely unclear.
The fill and select action types require a non-empty value.
Call the browser_action tool with your decision.`

// toolSchema is the JSON Schema for the browser_action structured output
// (§4.3 "Structured output").
var toolSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "state": {"type": "string"},
    "expected_next_state": {"type": "string"},
    "action_type": {"type": "string", "enum": ["click", "fill", "select", "scroll", "wait", "navigate"]},
    "targets": {
      "type": "array",
      "minItems": 1,
      "maxItems": 4,
      "items": {
        "type": "object",
        "properties": {
          "method": {"type": "string", "enum": ["css", "aria", "text", "coordinates"]},
          "selector": {"type": "string"},
          "role": {"type": "string"},
          "name": {"type": "string"},
          "text": {"type": "string"},
          "exact": {"type": "boolean"},
          "x": {"type": "integer"},
          "y": {"type": "integer"}
        },
        "required": ["method"]
      }
    },
    "value": {"type": "string"},
    "reasoning": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "required": ["action_type", "targets", "reasoning", "confidence"]
}`)

var browserActionTool = llmclient.ToolDefinition{
	Name:        "browser_action",
	Description: "Report the next browser action to take, with primary and fallback targets.",
	InputSchema: toolSchema,
}

// toolOutput is the raw JSON shape a browser_action tool call decodes into.
type toolOutput struct {
	State             string       `json:"state"`
	ExpectedNextState string       `json:"expected_next_state"`
	ActionType        string       `json:"action_type"`
	Targets           []targetSpec `json:"targets"`
	Value             *string      `json:"value"`
	Reasoning         string       `json:"reasoning"`
	Confidence        float64      `json:"confidence"`
}

type targetSpec struct {
	Method   string `json:"method"`
	Selector string `json:"selector"`
	Role     string `json:"role"`
	Name     string `json:"name"`
	Text     string `json:"text"`
	Exact    bool   `json:"exact"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

func (t targetSpec) toStrategy() (models.TargetStrategy, error) {
	switch t.Method {
	case "css":
		return models.NewCSSStrategy(t.Selector)
	case "aria":
		return models.NewARIAStrategy(t.Role, t.Name)
	case "text":
		return models.NewTextStrategy(t.Text, t.Exact)
	case "coordinates":
		return models.NewCoordinatesStrategy(t.X, t.Y)
	default:
		return models.TargetStrategy{}, taxonomy.New(taxonomy.KindStateDetection, "planner returned unknown target method", nil)
	}
}

var actionTypeByName = map[string]models.ActionType{
	"click":    models.ActionClick,
	"fill":     models.ActionFill,
	"select":   models.ActionSelect,
	"scroll":   models.ActionScroll,
	"wait":     models.ActionWait,
	"navigate": models.ActionNavigate,
}

// Planner drives the LM to produce ActionPlans.
type Planner struct {
	client *llmclient.Client
}

// New builds a Planner over an llmclient.Client.
func New(client *llmclient.Client) *Planner {
	return &Planner{client: client}
}

// Plan requests a single browser_action decision for ctx/goal, applying the
// confidence gate (one retry on low confidence, then StateDetectionError).
func (p *Planner) Plan(ctx context.Context, agentCtx *models.AgentContext, goal string) (*models.ActionPlan, error) {
	callCtx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	plan, confidence, err := p.callOnce(callCtx, agentCtx, goal, "")
	if err != nil {
		return nil, err
	}
	if confidence >= lowConfidenceGate {
		return plan, nil
	}

	retryNote := "your previous response had low confidence; analyse more carefully or explain why impossible"
	plan, confidence, err = p.callOnce(callCtx, agentCtx, goal, retryNote)
	if err != nil {
		return nil, err
	}
	if confidence < lowConfidenceGate {
		return nil, taxonomy.New(taxonomy.KindStateDetection, "planner confidence remained low after retry", nil)
	}
	return plan, nil
}

// SelfCorrect rebuilds the prompt with a note about a previously failed
// strategy that directs the model to use a different targeting method (§4.2
// "Self-correct contract"); the returned plan is not checked against that
// directive.
func (p *Planner) SelfCorrect(ctx context.Context, agentCtx *models.AgentContext, goal, failedStrategyDescription, failedErrorMessage string) (*models.ActionPlan, error) {
	note := "the previous attempt failed using strategy " + failedStrategyDescription + ": " + failedErrorMessage +
		". Your next plan must use a different targeting method than that one."
	callCtx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	plan, confidence, err := p.callOnce(callCtx, agentCtx, goal, note)
	if err != nil {
		return nil, err
	}
	if confidence < lowConfidenceGate {
		return nil, taxonomy.New(taxonomy.KindStateDetection, "self-correct confidence below gate", nil)
	}
	return plan, nil
}

func (p *Planner) callOnce(ctx context.Context, agentCtx *models.AgentContext, goal, extraNote string) (*models.ActionPlan, float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()

	promptText := agentCtx.ToPromptText(goal)
	if extraNote != "" {
		promptText = extraNote + "\n\n" + promptText
	}

	content := []llmclient.ContentBlock{llmclient.TextBlock(promptText)}
	if len(agentCtx.Screenshot) > 0 {
		content = append([]llmclient.ContentBlock{llmclient.ImageBlock(agentCtx.Screenshot)}, content...)
	}

	resp, err := p.client.Complete(callCtx, llmclient.Request{
		System:        systemPrompt,
		Messages:      []llmclient.Message{{Role: llmclient.RoleUser, Content: content}},
		Tools:         []llmclient.ToolDefinition{browserActionTool},
		ForceToolName: "browser_action",
		MaxTokens:     1024,
	})
	if err != nil {
		return nil, 0, err
	}

	if len(resp.ToolCalls) == 0 {
		return nil, 0, taxonomy.New(taxonomy.KindStateDetection, "planner did not call browser_action", nil)
	}
	var out toolOutput
	if err := json.Unmarshal(resp.ToolCalls[0].Input, &out); err != nil {
		return nil, 0, taxonomy.New(taxonomy.KindStateDetection, "planner returned malformed browser_action input", err)
	}

	plan, err := buildPlan(out)
	if err != nil {
		return nil, 0, err
	}
	return plan, out.Confidence, nil
}

func buildPlan(out toolOutput) (*models.ActionPlan, error) {
	if len(out.Targets) == 0 {
		return nil, taxonomy.New(taxonomy.KindStateDetection, "planner returned no targets", nil)
	}
	primary, err := out.Targets[0].toStrategy()
	if err != nil {
		return nil, err
	}
	var fallbacks []models.TargetStrategy
	for _, t := range out.Targets[1:] {
		strat, err := t.toStrategy()
		if err != nil {
			return nil, err
		}
		fallbacks = append(fallbacks, strat)
	}

	actionType, ok := actionTypeByName[out.ActionType]
	if !ok {
		return nil, taxonomy.New(taxonomy.KindStateDetection, "planner returned unknown action_type", nil)
	}

	var expected *models.State
	if out.ExpectedNextState != "" {
		s := models.State(out.ExpectedNextState)
		expected = &s
	}

	plan, err := models.NewActionPlan(models.ActionPlanInput{
		Primary:       primary,
		Fallbacks:     fallbacks,
		ActionType:    actionType,
		Value:         out.Value,
		Reasoning:     out.Reasoning,
		Confidence:    out.Confidence,
		ExpectedState: expected,
	})
	if err != nil {
		return nil, taxonomy.New(taxonomy.KindStateDetection, "planner produced an invalid action plan", err)
	}
	return plan, nil
}
