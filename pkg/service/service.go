// Package service defines per-subscription-service cancellation
// definitions: entry URL, heuristic rule overrides, and hardcoded fallback
// selectors used when the language model is unavailable (§4.5, §9 "only
// Netflix is present... treat multi-service support as additive"). Service
// YAML definitions are merged onto BuiltinDefault with dario.cat/mergo, the
// same merge-over-defaults shape the teacher uses for its Tarsy YAML config
// (codeready-toolchain-tarsy/pkg/config/loader.go's resolve* helpers).
package service

import (
	"fmt"
	"os"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/subterminator/core/pkg/heuristic"
	"github.com/subterminator/core/pkg/models"
)

// HardcodedFallback is a known-selector action to perform for a given state
// when the planner (LM) is unavailable or erroring transiently, keeping the
// orchestrator able to make forward progress without a model (§4.2 "the
// orchestrator falls back to a service-specific hardcoded handler").
type HardcodedFallback struct {
	State    models.State        `yaml:"state"`
	Strategy FallbackStrategyYAML `yaml:"strategy"`
}

// FallbackStrategyYAML is the YAML-serializable shape of a TargetStrategy;
// it is translated into a models.TargetStrategy via ToStrategy.
type FallbackStrategyYAML struct {
	Method string `yaml:"method"` // css | aria | text
	CSS    string `yaml:"css,omitempty"`
	Role   string `yaml:"role,omitempty"`
	Name   string `yaml:"name,omitempty"`
	Text   string `yaml:"text,omitempty"`
	Exact  bool   `yaml:"exact,omitempty"`
}

// ToStrategy builds the validated models.TargetStrategy this YAML describes.
func (f FallbackStrategyYAML) ToStrategy() (models.TargetStrategy, error) {
	switch f.Method {
	case "css":
		return models.NewCSSStrategy(f.CSS)
	case "aria":
		return models.NewARIAStrategy(f.Role, f.Name)
	case "text":
		return models.NewTextStrategy(f.Text, f.Exact)
	default:
		return models.TargetStrategy{}, fmt.Errorf("service: unknown fallback strategy method %q", f.Method)
	}
}

// RuleOverrideYAML is one heuristic rule expressed declaratively, so a
// service definition can override detection without writing Go.
type RuleOverrideYAML struct {
	Reason      string  `yaml:"reason"`
	URLContains string  `yaml:"url_contains,omitempty"`
	TextAny     []string `yaml:"text_any,omitempty"`
	State       models.State `yaml:"state"`
	Confidence  float64 `yaml:"confidence"`
}

func (r RuleOverrideYAML) toRule() heuristic.Rule {
	urlContains := r.URLContains
	textAny := r.TextAny
	return heuristic.Rule{
		Reason: r.Reason,
		State:  r.State,
		Conf:   r.Confidence,
		Match: func(url, text string) bool {
			if urlContains != "" {
				return strings.Contains(url, urlContains)
			}
			for _, needle := range textAny {
				if strings.Contains(text, needle) {
					return true
				}
			}
			return false
		},
	}
}

// Definition is one subscription service's cancellation configuration.
type Definition struct {
	Name               string              `yaml:"name"`
	EntryURL           string              `yaml:"entry_url"`
	HeuristicOverrides []RuleOverrideYAML  `yaml:"heuristic_overrides,omitempty"`
	HardcodedFallbacks []HardcodedFallback `yaml:"hardcoded_fallbacks,omitempty"`
}

// BuiltinDefault is the baseline every loaded Definition is merged onto, so
// a service YAML need only specify the fields it wants to override.
var BuiltinDefault = Definition{
	Name:     "netflix",
	EntryURL: "https://www.netflix.com/account",
	HardcodedFallbacks: []HardcodedFallback{
		{
			State:    models.StateAccountActive,
			Strategy: FallbackStrategyYAML{Method: "text", Text: "cancel membership", Exact: false},
		},
		{
			State:    models.StateFinalConfirmation,
			Strategy: FallbackStrategyYAML{Method: "text", Text: "finish cancellation", Exact: false},
		},
	},
}

// Load reads a service YAML file from path and merges it onto BuiltinDefault
// (file values win). A file that cannot be read, a missing one included, is
// returned as an error wrapping the underlying os error.
func Load(path string) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("service: read %q: %w", path, err)
	}
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("service: parse %q: %w", path, err)
	}
	merged := BuiltinDefault
	if err := mergo.Merge(&merged, def, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("service: merge %q onto default: %w", path, err)
	}
	return &merged, nil
}

// Heuristic builds a heuristic.Interpreter with this Definition's overrides
// taking priority over heuristic.DefaultRules.
func (d *Definition) Heuristic() *heuristic.Interpreter {
	overrides := make([]heuristic.Rule, 0, len(d.HeuristicOverrides))
	for _, o := range d.HeuristicOverrides {
		overrides = append(overrides, o.toRule())
	}
	return heuristic.NewDefault().WithOverrides(overrides)
}

// FallbackFor returns the hardcoded TargetStrategy for state, if one is
// configured for this service.
func (d *Definition) FallbackFor(state models.State) (models.TargetStrategy, bool, error) {
	for _, f := range d.HardcodedFallbacks {
		if f.State == state {
			strat, err := f.Strategy.ToStrategy()
			if err != nil {
				return models.TargetStrategy{}, false, err
			}
			return strat, true, nil
		}
	}
	return models.TargetStrategy{}, false, nil
}
