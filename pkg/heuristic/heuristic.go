// Package heuristic implements the pure, I/O-free page-state detector used
// both as the first-pass detector and as the post-action validator (§4.5).
// Grounded on models.State's closed enum (pkg/models/state.go) and on the
// teacher's preference for small, pure, independently-testable rule
// evaluators (codeready-toolchain-tarsy/pkg/config validators).
package heuristic

import (
	"strings"

	"github.com/subterminator/core/pkg/models"
)

// Rule is one ordered match clause: Match inspects the lower-cased URL and
// visible text and, on a hit, returns the detected state/confidence/reason.
type Rule struct {
	Reason string
	Match  func(url, text string) bool
	State  models.State
	Conf   float64
}

// Result is the heuristic's verdict for one observation.
type Result struct {
	State      models.State
	Confidence float64
	Reason     string
}

// DefaultRules is the built-in rule table from §4.5, evaluated in order;
// first match wins. Both url and text are matched case-insensitively by the
// Interpreter, so rules here compare against already-lower-cased input.
var DefaultRules = []Rule{
	{
		Reason: "url contains /login",
		Match:  func(url, text string) bool { return strings.Contains(url, "/login") },
		State:  models.StateLoginRequired,
		Conf:   0.95,
	},
	{
		Reason: "url contains /account and text mentions cancel membership",
		Match: func(url, text string) bool {
			return strings.Contains(url, "/account") && strings.Contains(text, "cancel membership")
		},
		State: models.StateAccountActive,
		Conf:  0.85,
	},
	{
		Reason: "text mentions restart membership",
		Match:  func(url, text string) bool { return strings.Contains(text, "restart membership") },
		State:  models.StateAccountCancelled,
		Conf:   0.85,
	},
	{
		Reason: "text mentions a third-party billing provider",
		Match: func(url, text string) bool {
			return containsAny(text, "billed through", "itunes", "google play", "t-mobile")
		},
		State: models.StateThirdPartyBilling,
		Conf:  0.80,
	},
	{
		Reason: "text mentions a retention offer",
		Match:  func(url, text string) bool { return containsAny(text, "before you go", "special offer") },
		State:  models.StateRetentionOffer,
		Conf:   0.75,
	},
	{
		Reason: "text mentions an exit survey prompt",
		Match: func(url, text string) bool {
			return containsAny(text, "why are you leaving", "reason for cancelling")
		},
		State: models.StateExitSurvey,
		Conf:  0.75,
	},
	{
		Reason: "text mentions finish cancellation",
		Match:  func(url, text string) bool { return strings.Contains(text, "finish cancellation") },
		State:  models.StateFinalConfirmation,
		Conf:   0.80,
	},
	{
		Reason: "text mentions cancelled and subscription",
		Match: func(url, text string) bool {
			return strings.Contains(text, "cancelled") && strings.Contains(text, "subscription")
		},
		State: models.StateComplete,
		Conf:  0.80,
	},
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Interpreter evaluates a rules table against page observations. It holds no
// I/O handles and is safe for concurrent use, since Interpret never mutates
// shared state.
type Interpreter struct {
	rules []Rule
}

// New builds an Interpreter over rules, evaluated in table order.
func New(rules []Rule) *Interpreter {
	return &Interpreter{rules: rules}
}

// NewDefault builds an Interpreter over DefaultRules.
func NewDefault() *Interpreter {
	return New(DefaultRules)
}

// Interpret returns the first matching rule's verdict, or UNKNOWN at
// confidence 0 when nothing matches.
func (in *Interpreter) Interpret(url, visibleText string) Result {
	loURL := strings.ToLower(url)
	loText := strings.ToLower(visibleText)
	for _, r := range in.rules {
		if r.Match(loURL, loText) {
			return Result{State: r.State, Confidence: r.Conf, Reason: r.Reason}
		}
	}
	return Result{State: models.StateUnknown, Confidence: 0.0, Reason: "no rule matched"}
}

// WithOverrides returns a new Interpreter whose rules are overrides followed
// by the receiver's own rules — service-specific instances prepend their own
// higher-priority rules ahead of the shared defaults (§4.5 "Service-specific
// instances may override the rules table").
func (in *Interpreter) WithOverrides(overrides []Rule) *Interpreter {
	merged := make([]Rule, 0, len(overrides)+len(in.rules))
	merged = append(merged, overrides...)
	merged = append(merged, in.rules...)
	return New(merged)
}
