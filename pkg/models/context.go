package models

import (
	"fmt"
	"strings"
)

// MaxHTMLSnippetChars bounds AgentContext.HTMLSnippet (§3).
const MaxHTMLSnippetChars = 5000

// AgentContext is a snapshot taken at one perceive step (§3). It is the unit
// of state fed to the planner and is serializable into a prompt-text block.
type AgentContext struct {
	Screenshot       []byte // PNG bytes
	AccessibilityTree string // pruned JSON text, "{}" on absence
	HTMLSnippet      string // interactive-HTML snippet, capped at MaxHTMLSnippetChars, "" on failure
	URL              string
	VisibleText      string
	ViewportW        int
	ViewportH        int
	ScrollX          int
	ScrollY          int
	RecentActions    []ActionRecord
	Errors           []ErrorRecord
}

// ToPromptText renders the non-image portions of the context into the
// text block the planner attaches alongside the screenshot image block
// (§4.3 "user message carries ... a text block containing").
func (c *AgentContext) ToPromptText(goal string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", c.URL)
	fmt.Fprintf(&b, "Viewport: %dx%d\n", c.ViewportW, c.ViewportH)
	fmt.Fprintf(&b, "Scroll: (%d,%d)\n", c.ScrollX, c.ScrollY)
	fmt.Fprintf(&b, "Goal: %s\n\n", goal)
	fmt.Fprintf(&b, "Accessibility tree (pruned):\n%s\n\n", c.AccessibilityTree)
	fmt.Fprintf(&b, "Interactive HTML snippet:\n%s\n\n", c.HTMLSnippet)

	b.WriteString("Previous actions:\n")
	if len(c.RecentActions) == 0 {
		b.WriteString("(none)\n")
	}
	for _, a := range c.RecentActions {
		fmt.Fprintf(&b, "- %s on %q: success=%v at %s\n", a.ActionType, a.Target, a.Success, a.Timestamp.Format("15:04:05"))
	}

	b.WriteString("\nErrors so far:\n")
	if len(c.Errors) == 0 {
		b.WriteString("(none)\n")
	}
	for _, e := range c.Errors {
		fmt.Fprintf(&b, "- [%s] %s (strategy=%s)\n", e.Kind, e.Message, e.Strategy)
	}

	fmt.Fprintf(&b, "\nVisible text:\n%s\n", c.VisibleText)
	return b.String()
}

// ExecutionResult is the post-execute value (§3).
type ExecutionResult struct {
	Success           bool
	Plan              *ActionPlan
	StrategyUsed      TargetStrategy
	PostScreenshot    []byte
	ElapsedMS         int64
}

// ValidationResult is the post-validate value (§3).
type ValidationResult struct {
	Success              bool
	ExpectedState        State
	ActualState          State
	InterpreterConfidence float64
}
