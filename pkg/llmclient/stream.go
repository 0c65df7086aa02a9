package llmclient

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/subterminator/core/pkg/taxonomy"
)

// ChunkKind tags the variant held by a Chunk, mirroring the closed chunk set
// tarsy's pkg/agent/llm_client.go streams over its channel (text/tool-call/
// usage/error), narrowed to what this module's callers consume.
type ChunkKind string

const (
	ChunkText     ChunkKind = "text"
	ChunkToolCall ChunkKind = "tool_call"
	ChunkUsage    ChunkKind = "usage"
	ChunkError    ChunkKind = "error"
)

// Chunk is one unit of a streamed response.
type Chunk struct {
	Kind ChunkKind

	Text string // ChunkText: incremental text delta

	ToolCall ToolCall // ChunkToolCall: complete, once input JSON is assembled

	Usage TokenUsage // ChunkUsage: final, emitted once at stream end

	Err error // ChunkError
}

// Stream issues a streaming Messages API request and returns a channel of
// Chunks. The channel is closed when the stream ends, whether normally or on
// error; a ChunkError is always the last chunk sent on failure. The caller's
// ctx governs the whole stream's lifetime (no additional per-call timeout is
// applied here, since stream duration is inherently open-ended).
func (c *Client) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	params, err := c.prepareParams(req)
	if err != nil {
		return nil, taxonomy.New(taxonomy.KindConfiguration, "invalid LM request", err)
	}

	streamer, ok := c.msg.(interface {
		NewStreaming(ctx context.Context, body sdk.MessageNewParams) *sdk.MessageStream
	})
	if !ok {
		return nil, taxonomy.New(taxonomy.KindConfiguration, "messages API does not support streaming", nil)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)

		stream := streamer.NewStreaming(ctx, *params)
		acc := sdk.Message{}
		toolInputBuf := map[int]*sdk.Message{}
		_ = toolInputBuf // reserved for multi-block tool accumulation

		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				out <- Chunk{Kind: ChunkError, Err: classifyError(err)}
				return
			}

			switch delta := event.AsAny().(type) {
			case sdk.ContentBlockDeltaEvent:
				if delta.Delta.Type == "text_delta" && delta.Delta.Text != "" {
					out <- Chunk{Kind: ChunkText, Text: delta.Delta.Text}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- Chunk{Kind: ChunkError, Err: classifyError(err)}
			return
		}

		for _, block := range acc.Content {
			if block.Type == "tool_use" {
				out <- Chunk{Kind: ChunkToolCall, ToolCall: ToolCall{
					ID:    block.ID,
					Name:  block.Name,
					Input: block.Input,
				}}
			}
		}
		out <- Chunk{Kind: ChunkUsage, Usage: TokenUsage{
			InputTokens:  int(acc.Usage.InputTokens),
			OutputTokens: int(acc.Usage.OutputTokens),
		}}
	}()

	return out, nil
}

// CollectStream drains a Chunk channel into a single Response, concatenating
// text and collecting tool calls — the non-streaming-shaped view of a
// streamed call, grounded on tarsy's collectStreamWithCallback reduction.
func CollectStream(ch <-chan Chunk, onText func(string)) (*Response, error) {
	resp := &Response{}
	for chunk := range ch {
		switch chunk.Kind {
		case ChunkText:
			resp.Text += chunk.Text
			if onText != nil {
				onText(chunk.Text)
			}
		case ChunkToolCall:
			resp.ToolCalls = append(resp.ToolCalls, chunk.ToolCall)
		case ChunkUsage:
			resp.Usage = chunk.Usage
		case ChunkError:
			return nil, chunk.Err
		}
	}
	return resp, nil
}
