package analystagent

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subterminator/core/pkg/llmclient"
	"github.com/subterminator/core/pkg/mcptool"
)

// fakeTools is a ToolProvider double — it never launches a subprocess, so
// tests can drive Run's turn loop without a live sqlite MCP server.
type fakeTools struct {
	allowed []mcptool.AllowedTool
	calls   []string
	callFn  func(name string, args map[string]any) (string, error)
}

func (f *fakeTools) ListAllowedTools(ctx context.Context) ([]mcptool.AllowedTool, error) {
	return f.allowed, nil
}

func (f *fakeTools) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	f.calls = append(f.calls, name)
	if f.callFn != nil {
		return f.callFn(name, args)
	}
	return "[]", nil
}

var queryTool = mcptool.AllowedTool{
	Name:        "mcp__sqlite__query",
	Description: "run a read-only query",
	InputSchema: json.RawMessage(`{"type":"object","properties":{"sql":{"type":"string"}},"required":["sql"]}`),
}

// testDecoder feeds a fixed sequence of SSE events to an ssestream.Stream,
// grounded on goa-ai's anthropic streamer test fake.
type testDecoder struct {
	events []ssestream.Event
	i      int
}

func (d *testDecoder) Event() ssestream.Event { return d.events[d.i-1] }

func (d *testDecoder) Next() bool {
	if d.i >= len(d.events) {
		return false
	}
	d.i++
	return true
}

func (d *testDecoder) Close() error { return nil }
func (d *testDecoder) Err() error   { return nil }

func mustEventJSON(t *testing.T, raw string) []byte {
	t.Helper()
	var v sdk.MessageStreamEventUnion
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func textTurn(t *testing.T, text string, inputTokens, outputTokens int) []ssestream.Event {
	t.Helper()
	return []ssestream.Event{
		{Type: "message_start", Data: mustEventJSON(t, `{
			"type":"message_start",
			"message":{"id":"msg_1","type":"message","role":"assistant","content":[],
				"model":"claude-sonnet-4-5-20250929","stop_reason":null,"stop_sequence":null,
				"usage":{"input_tokens":`+strconv.Itoa(inputTokens)+`,"output_tokens":0}}
		}`)},
		{Type: "content_block_start", Data: mustEventJSON(t, `{
			"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}
		}`)},
		{Type: "content_block_delta", Data: mustEventJSON(t, `{
			"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"`+text+`"}
		}`)},
		{Type: "content_block_stop", Data: mustEventJSON(t, `{"type":"content_block_stop","index":0}`)},
		{Type: "message_delta", Data: mustEventJSON(t, `{
			"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},
			"usage":{"output_tokens":`+strconv.Itoa(outputTokens)+`}
		}`)},
		{Type: "message_stop", Data: mustEventJSON(t, `{"type":"message_stop"}`)},
	}
}

func toolCallTurn(t *testing.T, toolName, inputJSON string, inputTokens, outputTokens int) []ssestream.Event {
	t.Helper()
	return []ssestream.Event{
		{Type: "message_start", Data: mustEventJSON(t, `{
			"type":"message_start",
			"message":{"id":"msg_2","type":"message","role":"assistant","content":[],
				"model":"claude-sonnet-4-5-20250929","stop_reason":null,"stop_sequence":null,
				"usage":{"input_tokens":`+strconv.Itoa(inputTokens)+`,"output_tokens":0}}
		}`)},
		{Type: "content_block_start", Data: mustEventJSON(t, `{
			"type":"content_block_start","index":0,
			"content_block":{"type":"tool_use","id":"call_1","name":"`+toolName+`","input":{}}
		}`)},
		{Type: "content_block_delta", Data: mustEventJSON(t, `{
			"type":"content_block_delta","index":0,
			"delta":{"type":"input_json_delta","partial_json":`+strconv.Quote(inputJSON)+`}
		}`)},
		{Type: "content_block_stop", Data: mustEventJSON(t, `{"type":"content_block_stop","index":0}`)},
		{Type: "message_delta", Data: mustEventJSON(t, `{
			"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},
			"usage":{"output_tokens":`+strconv.Itoa(outputTokens)+`}
		}`)},
		{Type: "message_stop", Data: mustEventJSON(t, `{"type":"message_stop"}`)},
	}
}

// scriptedStreamingAPI replays one fixed event sequence per call to
// NewStreaming, in order — one entry per conversational turn.
type scriptedStreamingAPI struct {
	turns [][]ssestream.Event
	calls int
}

func (s *scriptedStreamingAPI) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	return nil, errors.New("scriptedStreamingAPI: non-streaming New is unused by Run")
}

func (s *scriptedStreamingAPI) NewStreaming(ctx context.Context, body sdk.MessageNewParams) *sdk.MessageStream {
	events := s.turns[s.calls]
	s.calls++
	return ssestream.NewStream[sdk.MessageStreamEventUnion](&testDecoder{events: events}, nil)
}

func newTestClient(t *testing.T, turns ...[]ssestream.Event) *llmclient.Client {
	t.Helper()
	c, err := llmclient.New(&scriptedStreamingAPI{turns: turns}, llmclient.Options{DefaultModel: "claude-sonnet-4-5-20250929"})
	require.NoError(t, err)
	return c
}

func TestRunReturnsTextWithoutToolCalls(t *testing.T) {
	client := newTestClient(t, textTurn(t, "there are 42 customers", 100, 20))

	session := New(client, Options{
		SystemPrompt: "you are a data analyst",
		Tools:        &fakeTools{allowed: []mcptool.AllowedTool{queryTool}},
	})

	var streamed string
	result, err := session.Run(context.Background(), "how many customers are there?", func(delta string) {
		streamed += delta
	})
	require.NoError(t, err)
	assert.Equal(t, "there are 42 customers", result.ResponseText)
	assert.Equal(t, "there are 42 customers", streamed)
	assert.Empty(t, result.SQLQueriesExecuted)
	assert.Equal(t, 100, result.PromptTokens)
	require.NotNil(t, result.CostEstimateUSD)
	assert.Greater(t, *result.CostEstimateUSD, 0.0)
}

func TestRunExecutesToolCallAndFeedsResultBack(t *testing.T) {
	client := newTestClient(t,
		toolCallTurn(t, "mcp__sqlite__query", `{"sql":"select count(*) from customers"}`, 100, 15),
		textTurn(t, "there are 42 customers", 120, 20),
	)

	tools := &fakeTools{
		allowed: []mcptool.AllowedTool{queryTool},
		callFn: func(name string, args map[string]any) (string, error) {
			return `[{"count":42}]`, nil
		},
	}
	session := New(client, Options{SystemPrompt: "you are a data analyst", Tools: tools})

	result, err := session.Run(context.Background(), "how many customers?", nil)
	require.NoError(t, err)
	assert.Equal(t, "there are 42 customers", result.ResponseText)
	require.Equal(t, []string{"select count(*) from customers"}, result.SQLQueriesExecuted)
	require.Equal(t, []string{"mcp__sqlite__query"}, tools.calls)
	assert.Equal(t, 1, result.ToolCallCount)
	require.Len(t, result.QueryResultsSummary, 1)
	assert.Equal(t, 1, result.QueryResultsSummary[0].RowCount)
}

func TestRunReturnsResultWhenTurnBudgetExhausted(t *testing.T) {
	// Every turn calls the tool, so MaxTurns is exhausted without the model
	// ever stopping on its own.
	turn := toolCallTurn(t, "mcp__sqlite__query", `{"sql":"select 1"}`, 10, 5)
	client := newTestClient(t, turn, turn, turn)

	tools := &fakeTools{allowed: []mcptool.AllowedTool{queryTool}}
	session := New(client, Options{SystemPrompt: "you are a data analyst", Tools: tools, MaxTurns: 3})

	result, err := session.Run(context.Background(), "keep querying", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ToolCallCount)
	require.NotNil(t, result.CostEstimateUSD)
}

func TestRunStopsOnceBudgetIsExceeded(t *testing.T) {
	// The first turn's own usage already blows through a tiny budget, so Run
	// must stop before ever executing the requested tool call.
	client := newTestClient(t, toolCallTurn(t, "mcp__sqlite__query", `{"sql":"select 1"}`, 1_000_000, 1_000_000))

	tools := &fakeTools{allowed: []mcptool.AllowedTool{queryTool}}
	session := New(client, Options{
		SystemPrompt: "you are a data analyst",
		Tools:        tools,
		MaxBudgetUSD: 0.0001,
	})

	result, err := session.Run(context.Background(), "how many customers?", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ToolCallCount)
	assert.Empty(t, tools.calls)
	require.NotNil(t, result.CostEstimateUSD)
	assert.GreaterOrEqual(t, *result.CostEstimateUSD, 0.0001)
}
