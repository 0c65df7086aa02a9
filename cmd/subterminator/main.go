// subterminator drives one subscription-cancellation run end to end,
// wiring the browser driver, heuristic detector, planner, agent, and
// orchestrator behind a small `cancel <service>` CLI (§6 "CLI (Core A)").
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/subterminator/core/pkg/browser"
	"github.com/subterminator/core/pkg/cancelagent"
	"github.com/subterminator/core/pkg/cansession"
	"github.com/subterminator/core/pkg/config"
	"github.com/subterminator/core/pkg/heuristic"
	"github.com/subterminator/core/pkg/llmclient"
	"github.com/subterminator/core/pkg/models"
	"github.com/subterminator/core/pkg/orchestrator"
	"github.com/subterminator/core/pkg/planner"
	"github.com/subterminator/core/pkg/service"
	"github.com/subterminator/core/pkg/taxonomy"
)

// Exit codes (§6 "CLI exit codes"): 0 success, 1 failed, 2 aborted, 3
// configuration error, 4 third-party billing.
const (
	exitSuccess           = 0
	exitFailed            = 1
	exitAborted           = 2
	exitConfigurationErr  = 3
	exitThirdPartyBilling = 4
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "cancel" {
		fmt.Fprintln(os.Stderr, "usage: subterminator cancel <service> [--dry-run] [--target live|mock] [--verbose] [--output-dir <path>]")
		os.Exit(exitConfigurationErr)
	}

	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "stop at the final confirmation checkpoint instead of completing it")
	target := fs.String("target", "live", "browser target: live (real browser) or mock (scripted demo pages)")
	verbose := fs.Bool("verbose", false, "enable verbose logging")
	outputDir := fs.String("output-dir", "", "override the session output directory")
	serviceFile := fs.String("service-file", "", "path to a service YAML definition (defaults to the built-in Netflix definition)")
	configDir := fs.String("config-dir", ".", "directory containing the .env file")
	fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: subterminator cancel <service> [flags]")
		os.Exit(exitConfigurationErr)
	}
	serviceName := fs.Arg(0)

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
	}

	cfg, err := config.LoadCoreA()
	if err != nil {
		log.Printf("configuration error: %v", err)
		os.Exit(exitConfigurationErr)
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}

	var def *service.Definition
	if *serviceFile != "" {
		def, err = service.Load(*serviceFile)
		if err != nil {
			log.Printf("configuration error: %v", err)
			os.Exit(exitConfigurationErr)
		}
	} else {
		builtin := service.BuiltinDefault
		def = &builtin
	}
	if serviceName != def.Name {
		def.Name = serviceName
	}

	var driver browser.Driver
	if *target == "mock" {
		driver = demoMockDriver()
	} else {
		d, err := browser.Launch(browser.Options{Mode: browser.LaunchDirect, Headless: false})
		if err != nil {
			log.Printf("configuration error: %v", err)
			os.Exit(exitConfigurationErr)
		}
		driver = d
	}

	session, err := cansession.New(cfg.OutputDir, def.Name, time.Now())
	if err != nil {
		log.Printf("configuration error: %v", err)
		os.Exit(exitConfigurationErr)
	}

	brain, err := buildBrain(cfg)
	if err != nil {
		log.Printf("configuration error: %v", err)
		os.Exit(exitConfigurationErr)
	}

	agent := cancelagent.New(driver, brain, heuristic.NewDefault(), session)

	orch := orchestrator.New(orchestrator.Options{
		Service:        def,
		Driver:         driver,
		Agent:          agent,
		Session:        session,
		DryRun:         *dryRun,
		AuthTimeout:    cfg.AuthTimeout,
		ConfirmTimeout: cfg.ConfirmTimeout,
		MaxRetries:     cfg.MaxRetries,
		AwaitAuth:      stdinCheckpoint("Please complete authentication in the browser, then press Enter to continue."),
		AwaitConfirm:   stdinCheckpoint("Review the final confirmation page, then press Enter to submit the cancellation."),
	})

	if *verbose {
		log.Printf("Starting cancellation run for %s (dry-run=%v, target=%s)", def.Name, *dryRun, *target)
	}

	outcome, err := orch.Run(context.Background())
	if err != nil {
		log.Printf("orchestrator error: %v", err)
		os.Exit(exitConfigurationErr)
	}

	log.Printf("Run finished: final_state=%s result=%s session=%s", outcome.FinalState, outcome.Result, session.Dir())

	switch outcome.Result {
	case "success":
		os.Exit(exitSuccess)
	case "aborted":
		os.Exit(exitAborted)
	case "third_party_billing":
		os.Exit(exitThirdPartyBilling)
	default:
		os.Exit(exitFailed)
	}
}

// buildBrain constructs the planner the agent consults. Without an API key,
// cancellation still proceeds on heuristic detection and the service's
// hardcoded fallbacks alone (§6 "optional; heuristic-only runs without it");
// heuristicOnlyBrain stands in for the planner so the orchestrator's existing
// retry-then-fallback path (§4.1) drives the run forward.
func buildBrain(cfg *config.CoreAConfig) (cancelagent.Brain, error) {
	if cfg.AnthropicAPIKey == "" {
		log.Println("No ANTHROPIC_API_KEY configured; running in heuristic-only mode")
		return heuristicOnlyBrain{}, nil
	}
	client, err := llmclient.NewFromAPIKey(cfg.AnthropicAPIKey, "claude-sonnet-4-5-20250929")
	if err != nil {
		return nil, err
	}
	return planner.New(client), nil
}

// heuristicOnlyBrain always reports a transient failure so the orchestrator
// works through its retry budget (with exponential backoff between attempts)
// and then falls back to the service's hardcoded selectors instead of calling
// a language model.
type heuristicOnlyBrain struct{}

func (heuristicOnlyBrain) Plan(ctx context.Context, agentCtx *models.AgentContext, goal string) (*models.ActionPlan, error) {
	return nil, taxonomy.New(taxonomy.KindTransient, "heuristic-only mode: no planner configured", nil)
}

func (heuristicOnlyBrain) SelfCorrect(ctx context.Context, agentCtx *models.AgentContext, goal, failedStrategyDescription, failedErrorMessage string) (*models.ActionPlan, error) {
	return nil, taxonomy.New(taxonomy.KindTransient, "heuristic-only mode: no planner configured", nil)
}

// stdinCheckpoint builds a CheckpointFunc that prints message and blocks
// until the operator presses Enter or timeout elapses (§4.1 "human-in-the-
// loop checkpoints").
func stdinCheckpoint(message string) orchestrator.CheckpointFunc {
	return func(ctx context.Context, timeout time.Duration) error {
		fmt.Println(message)
		done := make(chan struct{})
		go func() {
			bufio.NewReader(os.Stdin).ReadString('\n')
			close(done)
		}()

		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-done:
			return nil
		case <-timer.C:
			return fmt.Errorf("checkpoint timed out after %s", timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// demoMockDriver plays back a scripted healthy cancellation flow for
// --target mock, letting the whole pipeline run without a live browser or
// language model (§9 "S1 — Healthy cancellation, dry-run").
func demoMockDriver() *browser.Mock {
	return &browser.Mock{
		Pages: []browser.MockPage{
			{URL: "https://www.netflix.com/account", Text: "cancel membership"},
			{URL: "https://www.netflix.com/cancelplan", Text: "before you go, here is a special offer"},
			{URL: "https://www.netflix.com/cancelplan/survey", Text: "why are you leaving? tell us your reason for cancelling"},
			{URL: "https://www.netflix.com/cancelplan/confirm", Text: "finish cancellation"},
			{URL: "https://www.netflix.com/cancelplan/done", Text: "your subscription has been cancelled"},
		},
	}
}
