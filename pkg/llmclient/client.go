// Package llmclient wraps an HTTP+SSE client to a Claude-compatible endpoint,
// supporting vision blocks, streaming, and structured tool-use responses.
// Grounded on
// goadesign-goa-ai/features/model/anthropic/client.go's use of
// github.com/anthropics/anthropic-sdk-go, adapted to this module's Message/
// Chunk shapes (themselves grounded on codeready-toolchain-tarsy's
// pkg/agent/llm_client.go channel-based chunk design).
package llmclient

import (
	"context"
	"errors"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/subterminator/core/pkg/taxonomy"
)

// MessagesAPI captures the subset of the Anthropic SDK used here, so tests
// can substitute a fake. Satisfied by *sdk.MessageService.
type MessagesAPI interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client is the shared Claude-compatible language-model client used by both
// cores: the planner (vision + tool use) and the analyst agent (text + tool
// use, streamed by the caller via repeated turns).
type Client struct {
	msg          MessagesAPI
	defaultModel string
	maxRetries   int
	retryBackoff time.Duration
	timeout      time.Duration
}

// Options configures a Client.
type Options struct {
	DefaultModel string
	MaxRetries   int           // default 3
	RetryBackoff time.Duration // default 500ms, doubled per attempt
	Timeout      time.Duration // per-request timeout; default 30s
}

// New builds a Client from a MessagesAPI implementation (real or fake).
func New(msg MessagesAPI, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("llmclient: messages API is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("llmclient: default model is required")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		timeout:      opts.Timeout,
	}, nil
}

// NewFromAPIKey constructs a Client using the default Anthropic HTTP client,
// reading connection defaults from the environment.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("llmclient: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel})
}

// Request is a single-turn Messages API invocation: a system prompt, a
// conversation, optional tool definitions, and a token budget.
type Request struct {
	Model         string // overrides Client.defaultModel when set
	System        string
	Messages      []Message
	Tools         []ToolDefinition
	MaxTokens     int // token budget enforced per-request (§0)
	ForceToolName string // when set, forces this tool to be called (tool_choice)
}

// Response is the translated Messages API result.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	Usage      TokenUsage
}

// TokenUsage reports token consumption for one LM call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Complete issues a single (possibly retried) Messages.New request and
// returns the translated response. Retries on transient transport failures
// (connection errors, 5xx) up to MaxRetries with exponential backoff;
// non-2xx 4xx responses (other than rate limiting) are not retried.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	params, err := c.prepareParams(req)
	if err != nil {
		return nil, taxonomy.New(taxonomy.KindConfiguration, "invalid LM request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error
	backoff := c.retryBackoff
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, taxonomy.New(taxonomy.KindTransient, "LM call cancelled during backoff", ctx.Err())
			}
			backoff *= 2
		}

		msg, err := c.msg.New(ctx, *params)
		if err == nil {
			return translate(msg), nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return nil, classifyError(lastErr)
}

func (c *Client) prepareParams(req Request) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("messages are required")
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	if req.ForceToolName != "" {
		params.ToolChoice = sdk.ToolChoiceParamOfTool(req.ForceToolName)
	}
	return &params, nil
}

func isRetryable(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	// Connection-level errors (no structured API error) are transient.
	return true
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return taxonomy.New(taxonomy.KindRateLimit, "LM upstream rate limited", err)
	}
	return taxonomy.New(taxonomy.KindTransient, "LM transport error", err)
}

func translate(msg *sdk.Message) *Response {
	resp := &Response{StopReason: string(msg.StopReason)}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	resp.Usage = TokenUsage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	return resp
}
