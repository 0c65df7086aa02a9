// Package provider is Core B's process-wide singleton bridge: it lazily
// discovers the schema, verifies read-only access, builds the system
// prompt, and constructs the agent session factory and audit logger exactly
// once, caching any initialization failure so later requests fail fast
// (§4.9). Grounded on codeready-toolchain-tarsy/pkg/config/loader.go's
// Initialize-once-then-reuse shape, adapted to a lazily-triggered async
// lock instead of eager process startup.
package provider

import (
	"context"
	"database/sql"
	"os"
	"sync"

	"github.com/subterminator/core/pkg/analystagent"
	"github.com/subterminator/core/pkg/audit"
	"github.com/subterminator/core/pkg/config"
	"github.com/subterminator/core/pkg/dbschema"
	"github.com/subterminator/core/pkg/llmclient"
	"github.com/subterminator/core/pkg/mcptool"
	"github.com/subterminator/core/pkg/prompt"
	"github.com/subterminator/core/pkg/taxonomy"
)

// Bridge is the lazily-initialized process-wide singleton.
type Bridge struct {
	mu          sync.Mutex
	initialized bool
	initErr     error

	cfg          *config.CoreBConfig
	db           *sql.DB
	systemPrompt string
	llm          *llmclient.Client
	auditLogger  *audit.Logger
}

// New constructs an uninitialized Bridge. EnsureInitialized must succeed
// before NewAgentSession, AuditLogger, or Config return usable values.
func New() *Bridge {
	return &Bridge{}
}

// EnsureInitialized runs initialization exactly once; concurrent callers
// block on the same attempt. On failure, the error is cached so subsequent
// calls fail fast without retrying I/O (§4.9).
func (b *Bridge) EnsureInitialized(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}
	if b.initErr != nil {
		return b.initErr
	}

	if err := b.initializeLocked(ctx); err != nil {
		b.initErr = err
		return err
	}
	b.initialized = true
	return nil
}

func (b *Bridge) initializeLocked(ctx context.Context) error {
	cfg, err := config.LoadCoreB()
	if err != nil {
		return err
	}

	db, err := dbschema.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	if err := dbschema.VerifyReadOnly(db); err != nil {
		db.Close()
		return err
	}

	schema, err := dbschema.Discover(db)
	if err != nil {
		db.Close()
		return err
	}

	systemPrompt, err := prompt.Build(schema)
	if err != nil {
		db.Close()
		return err
	}

	llm, err := llmclient.NewFromAPIKey(cfg.AnthropicAPIKey, cfg.Model)
	if err != nil {
		db.Close()
		return taxonomy.New(taxonomy.KindConfiguration, "build LM client", err)
	}

	auditSink, file, err := buildAuditSink(cfg)
	if err != nil {
		db.Close()
		return err
	}
	_ = file // kept alive by the process; closed on process exit

	b.cfg = cfg
	b.db = db
	b.systemPrompt = systemPrompt
	b.llm = llm
	b.auditLogger = audit.New(auditSink)
	return nil
}

func buildAuditSink(cfg *config.CoreBConfig) (audit.Sink, interface{ Close() error }, error) {
	switch cfg.LogOutput {
	case config.LogOutputStdout:
		return audit.NewWriterSink(os.Stdout), noopCloser{}, nil
	case config.LogOutputFile:
		sink, f, err := audit.NewFileSink(cfg.LogFile)
		if err != nil {
			return nil, nil, taxonomy.New(taxonomy.KindConfiguration, "open audit file", err)
		}
		return sink, f, nil
	case config.LogOutputBoth:
		fileSink, f, err := audit.NewFileSink(cfg.LogFile)
		if err != nil {
			return nil, nil, taxonomy.New(taxonomy.KindConfiguration, "open audit file", err)
		}
		return audit.NewMultiSink(audit.NewWriterSink(os.Stdout), fileSink), f, nil
	default:
		return nil, nil, taxonomy.New(taxonomy.KindConfiguration, "unknown log output mode", nil)
	}
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

// NewAgentSession builds a fresh per-request analyst session and tool
// server, ready for Run. The caller owns the returned Server's lifecycle
// and must Close it after the request (§4.7, §5 "terminated when the
// session ends").
func (b *Bridge) NewAgentSession(ctx context.Context) (*analystagent.Session, *mcptool.Server, error) {
	b.mu.Lock()
	cfg := b.cfg
	systemPrompt := b.systemPrompt
	llm := b.llm
	b.mu.Unlock()

	tools := mcptool.NewServer("mcp-server-sqlite", nil, cfg.DBPath, cfg.ToolPrefix)
	if err := tools.Start(ctx); err != nil {
		return nil, nil, err
	}

	session := analystagent.New(llm, analystagent.Options{
		SystemPrompt: systemPrompt,
		Tools:        tools,
		MaxTurns:     cfg.MaxTurns,
		MaxBudgetUSD: cfg.MaxBudgetUSD,
		Model:        cfg.Model,
		LogVerbose:   cfg.LogVerbose,
	})
	return session, tools, nil
}

// AuditLogger returns the shared audit logger.
func (b *Bridge) AuditLogger() *audit.Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.auditLogger
}

// Config returns the loaded configuration.
func (b *Bridge) Config() *config.CoreBConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// Close releases the database handle. Call once at process shutdown.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
