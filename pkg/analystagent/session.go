// Package analystagent runs one per-request analyst session: a fresh
// system-prompted conversation with a single sqlite tool server, a turn/
// budget cap, and a wall-clock deadline (§4.7). Grounded on codeready-
// toolchain-tarsy/pkg/agent/controller/streaming.go's collectStreamWithCallback
// reduction, adapted from "LM text + thinking + tool chunks" to "LM text +
// tool_use(SQL) + tool_result(rows)".
package analystagent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/subterminator/core/pkg/llmclient"
	"github.com/subterminator/core/pkg/mcptool"
	"github.com/subterminator/core/pkg/models"
	"github.com/subterminator/core/pkg/taxonomy"
)

// Deadline bounds one session's wall-clock time (§4.7).
const Deadline = 240 * time.Second

// modelPrice is a model's per-million-token input/output rate, used to turn
// TokenUsage into a running USD estimate checked against MaxBudgetUSD.
type modelPrice struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// modelPricing holds the rates for the models this module is configured to
// call; an unlisted model falls back to defaultPrice.
var modelPricing = map[string]modelPrice{
	"claude-sonnet-4-5-20250929": {InputPerMTok: 3.0, OutputPerMTok: 15.0},
	"claude-opus-4-1-20250805":   {InputPerMTok: 15.0, OutputPerMTok: 75.0},
	"claude-haiku-4-5-20251001":  {InputPerMTok: 1.0, OutputPerMTok: 5.0},
}

var defaultPrice = modelPrice{InputPerMTok: 3.0, OutputPerMTok: 15.0}

func priceFor(model string) modelPrice {
	if p, ok := modelPricing[model]; ok {
		return p
	}
	return defaultPrice
}

// costOf estimates the USD cost of one LM call's token usage.
func costOf(model string, usage llmclient.TokenUsage) float64 {
	p := priceFor(model)
	return float64(usage.InputTokens)/1e6*p.InputPerMTok + float64(usage.OutputTokens)/1e6*p.OutputPerMTok
}

// ToolProvider is the tool-server capability Run depends on — satisfied by
// *mcptool.Server in production and by a fake in tests, per the pack's
// dynamic-dispatch convention for planner/heuristic/browser (§9).
type ToolProvider interface {
	ListAllowedTools(ctx context.Context) ([]mcptool.AllowedTool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Options configures one session.
type Options struct {
	SystemPrompt string
	Tools        ToolProvider
	MaxTurns     int
	MaxBudgetUSD float64
	Model        string
	LogVerbose   bool
}

// Result is what the HTTP layer and audit logger need from a finished
// session.
type Result struct {
	ResponseText        string
	SQLQueriesExecuted  []string
	QueryResultsSummary []models.QueryResultSummary
	PromptTokens        int
	CompletionTokens    int
	CostEstimateUSD     *float64
	DurationSeconds     float64
	ToolCallCount       int
}

// TextCallback receives each incremental assistant text delta — used by the
// HTTP layer to stream chunks as they are produced (§4.6 "Streaming
// contract").
type TextCallback func(delta string)

// Session runs one user question end-to-end against the LM and the sqlite
// tool server, enforcing the turn cap, the budget cap, and the wall-clock
// deadline.
type Session struct {
	client *llmclient.Client
	opts   Options
}

// New builds a Session.
func New(client *llmclient.Client, opts Options) *Session {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 10
	}
	if opts.MaxBudgetUSD <= 0 {
		opts.MaxBudgetUSD = 0.50
	}
	return &Session{client: client, opts: opts}
}

// Run drives the turn loop: each turn, the model may respond with text or a
// tool_use SQL call; tool calls are executed against the MCP server and fed
// back as tool_result turns, until the model stops calling tools, MaxTurns is
// reached, the running cost estimate reaches MaxBudgetUSD, or Deadline
// expires. Every return path — including turn/budget exhaustion — carries
// whatever ResponseText the model had already produced rather than
// discarding it behind a hard error (§4.7 "always produce a structured
// response").
func (s *Session) Run(ctx context.Context, question string, onText TextCallback) (*Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, Deadline)
	defer cancel()

	allowedTools, err := s.opts.Tools.ListAllowedTools(ctx)
	if err != nil {
		return nil, err
	}
	tools := make([]llmclient.ToolDefinition, 0, len(allowedTools))
	for _, t := range allowedTools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		tools = append(tools, llmclient.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}

	conversation := []llmclient.Message{
		{Role: llmclient.RoleUser, Content: []llmclient.ContentBlock{llmclient.TextBlock(question)}},
	}

	result := &Result{}
	var costSoFar float64

	finish := func() (*Result, error) {
		result.DurationSeconds = time.Since(start).Seconds()
		result.CostEstimateUSD = &costSoFar
		return result, nil
	}
	timedOut := func() (*Result, error) {
		result.DurationSeconds = time.Since(start).Seconds()
		result.CostEstimateUSD = &costSoFar
		return result, taxonomy.New(taxonomy.KindAgentTimeout, "analyst session exceeded its wall-clock deadline", ctx.Err())
	}

	for turn := 0; turn < s.opts.MaxTurns; turn++ {
		select {
		case <-ctx.Done():
			return timedOut()
		default:
		}

		if costSoFar >= s.opts.MaxBudgetUSD {
			return finish()
		}

		ch, err := s.client.Stream(ctx, llmclient.Request{
			Model:    s.opts.Model,
			System:   s.opts.SystemPrompt,
			Messages: conversation,
			Tools:    tools,
		})
		if err != nil {
			if ctx.Err() != nil {
				return timedOut()
			}
			return result, err
		}
		resp, err := llmclient.CollectStream(ch, onText)
		if err != nil {
			if ctx.Err() != nil {
				return timedOut()
			}
			return result, err
		}

		if resp.Text != "" {
			result.ResponseText += resp.Text
		}
		result.PromptTokens += resp.Usage.InputTokens
		result.CompletionTokens += resp.Usage.OutputTokens
		costSoFar += costOf(s.opts.Model, resp.Usage)

		if len(resp.ToolCalls) == 0 {
			return finish()
		}

		if costSoFar >= s.opts.MaxBudgetUSD {
			return finish()
		}

		assistantBlocks := []llmclient.ContentBlock{}
		if resp.Text != "" {
			assistantBlocks = append(assistantBlocks, llmclient.TextBlock(resp.Text))
		}
		var toolResultBlocks []llmclient.ContentBlock

		for _, call := range resp.ToolCalls {
			result.ToolCallCount++
			assistantBlocks = append(assistantBlocks, llmclient.ContentBlock{
				Kind:         llmclient.BlockToolUse,
				ToolUseID:    call.ID,
				ToolUseName:  call.Name,
				ToolUseInput: call.Input,
			})

			var input struct {
				SQL string `json:"sql"`
			}
			if err := json.Unmarshal(call.Input, &input); err != nil {
				toolResultBlocks = append(toolResultBlocks, llmclient.ToolResultBlock(call.ID, "invalid tool input", true))
				continue
			}
			result.SQLQueriesExecuted = append(result.SQLQueriesExecuted, input.SQL)

			output, execErr := s.opts.Tools.CallTool(ctx, call.Name, map[string]any{"sql": input.SQL})
			if execErr != nil {
				toolResultBlocks = append(toolResultBlocks, llmclient.ToolResultBlock(call.ID, execErr.Error(), true))
				continue
			}
			toolResultBlocks = append(toolResultBlocks, llmclient.ToolResultBlock(call.ID, output, false))
			result.QueryResultsSummary = append(result.QueryResultsSummary, summarizeToolOutput(output, s.opts.LogVerbose))
		}

		conversation = append(conversation, llmclient.Message{Role: llmclient.RoleAssistant, Content: assistantBlocks})
		conversation = append(conversation, llmclient.Message{Role: llmclient.RoleUser, Content: toolResultBlocks})
	}

	return finish()
}

// summarizeToolOutput builds a QueryResultSummary from a tool server's raw
// text output. The sqlite tool server returns a JSON array of row objects;
// default (non-verbose) mode keeps only the row count and column names.
func summarizeToolOutput(output string, verbose bool) models.QueryResultSummary {
	var rows []map[string]any
	_ = json.Unmarshal([]byte(output), &rows)

	summary := models.QueryResultSummary{RowCount: len(rows)}
	if len(rows) > 0 {
		for col := range rows[0] {
			summary.Columns = append(summary.Columns, col)
		}
	}
	if verbose {
		summary.Rows = rows
	}
	return summary
}
