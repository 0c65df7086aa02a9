// Package orchestrator drives Core A's state machine from START to a
// terminal state, delegating page-level decisions to the agent and
// enforcing the two human-in-the-loop checkpoints (§4.1). Grounded on
// codeready-toolchain-tarsy/cmd/tarsy/main.go's top-level run-and-recover
// shape and pkg/session/manager.go's ownership pattern, adapted from
// "one incident session" to "one cancellation run".
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/subterminator/core/pkg/browser"
	"github.com/subterminator/core/pkg/cansession"
	"github.com/subterminator/core/pkg/heuristic"
	"github.com/subterminator/core/pkg/models"
	"github.com/subterminator/core/pkg/service"
	"github.com/subterminator/core/pkg/taxonomy"
)

// maxTransitions is the hard cap on state transitions per run (§4.1
// "Bounds"); an 11th attempted transition terminates in FAILED.
const maxTransitions = 10

// Agent is the capability the orchestrator delegates page-level states to.
type Agent interface {
	HandleState(ctx context.Context, s models.State) (models.State, error)
	ClearHistory()
}

// CheckpointFunc blocks until a human resolves a checkpoint (authentication
// or final confirmation) or the timeout elapses. It returns an error only on
// timeout or cancellation; a nil error means the operator signalled "go".
type CheckpointFunc func(ctx context.Context, timeout time.Duration) error

// Options configures one orchestrator run.
type Options struct {
	Service        *service.Definition
	Driver         browser.Driver
	Agent          Agent
	Session        *cansession.Session
	DryRun         bool
	AuthTimeout    time.Duration // default 300s
	ConfirmTimeout time.Duration // default 120s
	MaxRetries     int           // default 3, transient-error backoff bound
	AwaitAuth      CheckpointFunc
	AwaitConfirm   CheckpointFunc
}

// Outcome is the final result of a run.
type Outcome struct {
	FinalState models.State
	Result     string // "success" | "failed" | "aborted" | "third_party_billing"
}

// Orchestrator drives one cancellation run end to end.
type Orchestrator struct {
	opts      Options
	detector  *heuristic.Interpreter
	retries   map[models.State]int
}

// New builds an Orchestrator, applying documented defaults for zero-valued
// timeouts/retries.
func New(opts Options) *Orchestrator {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 300 * time.Second
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 120 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Orchestrator{
		opts:     opts,
		detector: opts.Service.Heuristic(),
		retries:  map[models.State]int{},
	}
}

// Run drives the state machine from START to a terminal state. It always
// closes the browser and finalizes the session log on the way out,
// including when it recovers from a panic.
func (o *Orchestrator) Run(ctx context.Context) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = taxonomy.New(taxonomy.KindTransient, fmt.Sprintf("orchestrator panicked: %v", r), nil)
			outcome = Outcome{FinalState: models.StateFailed, Result: "failed"}
		}
		o.opts.Driver.Close()
		result := outcome.Result
		if result == "" {
			result = "failed"
		}
		_ = o.opts.Session.Finalize(result, outcome.FinalState, err)
	}()

	current := models.StateStart
	o.opts.Agent.ClearHistory()

	for transitionCount := 0; ; transitionCount++ {
		if transitionCount >= maxTransitions {
			o.recordTransition(current, models.StateFailed, "max_transitions_exceeded", 0)
			return Outcome{FinalState: models.StateFailed, Result: "failed"}, nil
		}

		next, trigger, confidence, stepErr := o.step(ctx, current)
		if stepErr != nil {
			if taxonomy.Is(stepErr, taxonomy.KindUserAborted) {
				o.recordTransition(current, models.StateAborted, trigger, confidence)
				return Outcome{FinalState: models.StateAborted, Result: "aborted"}, nil
			}
			o.recordTransition(current, models.StateFailed, trigger, confidence)
			return Outcome{FinalState: models.StateFailed, Result: "failed"}, nil
		}

		if !models.Allowed(current, next) {
			return Outcome{}, taxonomy.New(taxonomy.KindConfiguration, fmt.Sprintf("illegal transition %s -> %s", current, next), nil)
		}
		o.recordTransition(current, next, trigger, confidence)
		current = next

		if current.Terminal() {
			result := "success"
			switch current {
			case models.StateFailed:
				result = "failed"
				if trigger == "third_party_billing" {
					result = "third_party_billing"
				}
			case models.StateAborted:
				result = "aborted"
			}
			return Outcome{FinalState: current, Result: result}, nil
		}
	}
}

// step computes the next state for current, applying the orchestrator's
// special-cased states and human checkpoints, and delegating everything
// else to the agent with retry-with-backoff on transient errors (§4.1
// "State handling rules", "Failure semantics").
func (o *Orchestrator) step(ctx context.Context, current models.State) (models.State, string, float64, error) {
	switch current {
	case models.StateStart:
		if err := o.opts.Driver.Navigate(ctx, o.opts.Service.EntryURL, 30*time.Second); err != nil {
			return o.detectAfterError(ctx, err)
		}
		return o.detect(ctx, "navigate")

	case models.StateLoginRequired:
		if o.opts.AwaitAuth == nil {
			return models.StateFailed, "no_auth_checkpoint_configured", 0, nil
		}
		if err := o.opts.AwaitAuth(ctx, o.opts.AuthTimeout); err != nil {
			return models.State(""), "auth_checkpoint", 0, taxonomy.New(taxonomy.KindUserAborted, "authentication checkpoint timed out", err)
		}
		return o.detect(ctx, "human_authenticated")

	case models.StateFinalConfirmation:
		if o.opts.DryRun {
			return models.StateComplete, "dry_run_short_circuit", 1.0, nil
		}
		if o.opts.AwaitConfirm == nil {
			return models.StateFailed, "no_confirm_checkpoint_configured", 0, nil
		}
		if err := o.opts.AwaitConfirm(ctx, o.opts.ConfirmTimeout); err != nil {
			return models.State(""), "confirm_checkpoint", 0, taxonomy.New(taxonomy.KindUserAborted, "final confirmation checkpoint timed out", err)
		}
		return models.StateComplete, "human_confirmed", 1.0, nil

	case models.StateAccountCancelled:
		return models.StateComplete, "already_cancelled", 1.0, nil

	case models.StateThirdPartyBilling:
		fmt.Println("This subscription is billed through a third party. Cancel it from that provider directly.")
		return models.StateFailed, "third_party_billing", 1.0, nil

	default:
		return o.delegateToAgent(ctx, current)
	}
}

func (o *Orchestrator) delegateToAgent(ctx context.Context, current models.State) (models.State, string, float64, error) {
	next, err := o.opts.Agent.HandleState(ctx, current)
	if err == nil {
		return next, "agent", 0, nil
	}

	if taxonomy.Is(err, taxonomy.KindTransient) {
		return o.retryOrFallback(ctx, current, err)
	}
	return models.State(""), "agent_error", 0, err
}

// retryOrFallback retries transient errors with exponential backoff
// (powers of 2 seconds) up to MaxRetries, then falls back to the service's
// hardcoded handler for current (§4.1, §4.5 hardcoded fallbacks).
func (o *Orchestrator) retryOrFallback(ctx context.Context, current models.State, lastErr error) (models.State, string, float64, error) {
	o.retries[current]++
	if o.retries[current] <= o.opts.MaxRetries {
		backoff := time.Duration(math.Pow(2, float64(o.retries[current]))) * time.Second
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return models.State(""), "", 0, ctx.Err()
		}
		return o.delegateToAgent(ctx, current)
	}

	strategy, ok, ferr := o.opts.Service.FallbackFor(current)
	if ferr != nil || !ok {
		return models.State(""), "agent_error", 0, lastErr
	}
	if err := clickHardcodedFallback(ctx, o.opts.Driver, strategy); err != nil {
		return models.State(""), "hardcoded_fallback_failed", 0, err
	}
	return o.detect(ctx, "hardcoded_fallback")
}

func clickHardcodedFallback(ctx context.Context, d browser.Driver, strategy models.TargetStrategy) error {
	switch strategy.Method() {
	case models.MethodCSS:
		return d.Click(ctx, []string{strategy.CSS()})
	case models.MethodARIA:
		role, name := strategy.ARIA()
		return d.ClickByRole(ctx, role, name)
	case models.MethodText:
		text, exact := strategy.Text()
		return d.ClickByText(ctx, text, exact)
	case models.MethodCoordinates:
		x, y := strategy.Coordinates()
		return d.ClickAtCoordinates(ctx, x, y)
	default:
		return taxonomy.New(taxonomy.KindConfiguration, "unknown hardcoded fallback method", nil)
	}
}

// detect runs the heuristic against the current page for use as a detector
// (first pass, §4.5) rather than a post-action validator.
func (o *Orchestrator) detect(ctx context.Context, trigger string) (models.State, string, float64, error) {
	url, err := o.opts.Driver.URL(ctx)
	if err != nil {
		return models.State(""), trigger, 0, err
	}
	text, err := o.opts.Driver.VisibleText(ctx)
	if err != nil {
		return models.State(""), trigger, 0, err
	}
	res := o.detector.Interpret(url, text)
	return res.State, trigger, res.Confidence, nil
}

func (o *Orchestrator) detectAfterError(ctx context.Context, navErr error) (models.State, string, float64, error) {
	if !taxonomy.Is(navErr, taxonomy.KindTransient) {
		return models.State(""), "navigate_failed", 0, navErr
	}
	return o.detect(ctx, "navigate_retry")
}

func (o *Orchestrator) recordTransition(from, to models.State, trigger string, confidence float64) {
	url, _ := o.opts.Driver.URL(context.Background())
	shot, _ := o.opts.Driver.Screenshot(context.Background())
	_, _ = o.opts.Session.RecordTransition(from, to, trigger, url, trigger, confidence, shot)
}
