// Package config loads and validates the fixed set of environment-variable
// keys for each core (§6) and produces immutable configuration values,
// following the teacher's load → validate → return shape
// (codeready-toolchain-tarsy/pkg/config/loader.go's config.Initialize).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/subterminator/core/pkg/taxonomy"
)

// CoreBConfig is Claude-DA's immutable, validated configuration (§6 "Environment
// configuration (Core B)").
type CoreBConfig struct {
	AnthropicAPIKey string
	DBPath          string
	Model           string
	MaxTurns        int
	MaxBudgetUSD    float64
	InputMaxChars   int
	LogOutput       LogOutput
	LogFile         string
	LogVerbose      bool

	// ToolPrefix is the MCP tool-name prefix (Open Question in §9: "treat it
	// as configuration"). Defaults to "mcp__sqlite__".
	ToolPrefix string
}

// LogOutput is the closed sum of audit sink destinations.
type LogOutput string

const (
	LogOutputStdout LogOutput = "stdout"
	LogOutputFile   LogOutput = "file"
	LogOutputBoth   LogOutput = "both"
)

// LoadCoreB reads CLAUDE_DA_* and ANTHROPIC_API_KEY from the environment,
// applies defaults, and validates. Returns a KindConfiguration taxonomy error
// on any problem — fatal at startup, per §7.
func LoadCoreB() (*CoreBConfig, error) {
	cfg := &CoreBConfig{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		DBPath:          getEnvDefault("CLAUDE_DA_DB_PATH", "./demo.db"),
		Model:           getEnvDefault("CLAUDE_DA_MODEL", "claude-sonnet-4-5-20250929"),
		LogOutput:       LogOutput(getEnvDefault("CLAUDE_DA_LOG_OUTPUT", string(LogOutputStdout))),
		LogFile:         getEnvDefault("CLAUDE_DA_LOG_FILE", "./claude-da-audit.jsonl"),
		ToolPrefix:      getEnvDefault("CLAUDE_DA_TOOL_PREFIX", "mcp__sqlite__"),
	}

	var err error
	if cfg.MaxTurns, err = getEnvInt("CLAUDE_DA_MAX_TURNS", 10); err != nil {
		return nil, err
	}
	if cfg.MaxBudgetUSD, err = getEnvFloat("CLAUDE_DA_MAX_BUDGET_USD", 0.50); err != nil {
		return nil, err
	}
	if cfg.InputMaxChars, err = getEnvInt("CLAUDE_DA_INPUT_MAX_CHARS", 10000); err != nil {
		return nil, err
	}
	if cfg.LogVerbose, err = getEnvBool("CLAUDE_DA_LOG_VERBOSE", false); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *CoreBConfig) validate() error {
	if c.AnthropicAPIKey == "" {
		return taxonomy.New(taxonomy.KindConfiguration, "ANTHROPIC_API_KEY is required", nil)
	}
	switch c.LogOutput {
	case LogOutputStdout, LogOutputFile, LogOutputBoth:
	default:
		return taxonomy.New(taxonomy.KindConfiguration, fmt.Sprintf("CLAUDE_DA_LOG_OUTPUT %q must be one of stdout|file|both", c.LogOutput), nil)
	}
	if (c.LogOutput == LogOutputFile || c.LogOutput == LogOutputBoth) && c.LogFile == "" {
		return taxonomy.New(taxonomy.KindConfiguration, "CLAUDE_DA_LOG_FILE is required when CLAUDE_DA_LOG_OUTPUT is file or both", nil)
	}
	if c.MaxTurns < 1 {
		return taxonomy.New(taxonomy.KindConfiguration, "CLAUDE_DA_MAX_TURNS must be >= 1", nil)
	}
	if c.MaxBudgetUSD <= 0 {
		return taxonomy.New(taxonomy.KindConfiguration, "CLAUDE_DA_MAX_BUDGET_USD must be > 0", nil)
	}
	if c.InputMaxChars < 1 {
		return taxonomy.New(taxonomy.KindConfiguration, "CLAUDE_DA_INPUT_MAX_CHARS must be >= 1", nil)
	}
	return nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, taxonomy.New(taxonomy.KindConfiguration, fmt.Sprintf("%s must be an integer", key), err)
	}
	return n, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, taxonomy.New(taxonomy.KindConfiguration, fmt.Sprintf("%s must be a number", key), err)
	}
	return f, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, taxonomy.New(taxonomy.KindConfiguration, fmt.Sprintf("%s must be a boolean", key), err)
	}
	return b, nil
}
