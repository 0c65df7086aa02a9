package config

import (
	"os"
	"time"

	"github.com/subterminator/core/pkg/taxonomy"
)

// CoreAConfig is SubTerminator's immutable, validated configuration (§6
// "Environment configuration (Core A)").
type CoreAConfig struct {
	AnthropicAPIKey string // optional; heuristic-only runs without it
	OutputDir       string
	PageTimeout     time.Duration
	ElementTimeout  time.Duration

	// AuthTimeout / ConfirmTimeout are human-checkpoint timeouts (§4.1).
	// Not environment-configured in §6's table but given sane defaults here;
	// orchestrator.Options callers may override per invocation.
	AuthTimeout    time.Duration
	ConfirmTimeout time.Duration
	MaxRetries     int
	MaxTransitions int
}

// LoadCoreA reads SUBTERMINATOR_* and ANTHROPIC_API_KEY from the environment.
func LoadCoreA() (*CoreAConfig, error) {
	pageMS, err := getEnvInt("SUBTERMINATOR_PAGE_TIMEOUT", 30000)
	if err != nil {
		return nil, err
	}
	elemMS, err := getEnvInt("SUBTERMINATOR_ELEMENT_TIMEOUT", 10000)
	if err != nil {
		return nil, err
	}

	cfg := &CoreAConfig{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OutputDir:       getEnvDefault("SUBTERMINATOR_OUTPUT", "./output"),
		PageTimeout:     time.Duration(pageMS) * time.Millisecond,
		ElementTimeout:  time.Duration(elemMS) * time.Millisecond,
		AuthTimeout:     300 * time.Second,
		ConfirmTimeout:  120 * time.Second,
		MaxRetries:      3,
		MaxTransitions:  10,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *CoreAConfig) validate() error {
	if c.OutputDir == "" {
		return taxonomy.New(taxonomy.KindConfiguration, "SUBTERMINATOR_OUTPUT must not be empty", nil)
	}
	if c.PageTimeout <= 0 || c.ElementTimeout <= 0 {
		return taxonomy.New(taxonomy.KindConfiguration, "page/element timeouts must be positive", nil)
	}
	return nil
}
