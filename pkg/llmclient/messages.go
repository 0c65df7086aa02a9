package llmclient

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

// Role is a conversation participant, mirroring tarsy's ConversationMessage
// role field but narrowed to what the Messages API accepts on input.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation, made of one or more content blocks.
// A Message with a single text Block behaves like a plain chat turn; a
// Message with a text Block plus an image Block is a vision turn (§4.3).
type Message struct {
	Role    Role
	Content []ContentBlock
}

// BlockKind identifies the variant held by a ContentBlock.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockImage      BlockKind = "image"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
)

// ContentBlock is a closed, tagged variant: exactly one of Text/Image/
// ToolUse/ToolResult is populated, selected by Kind.
type ContentBlock struct {
	Kind BlockKind

	Text string // BlockText

	ImagePNG []byte // BlockImage: raw PNG bytes, base64-encoded on the wire

	ToolUseID    string // BlockToolUse
	ToolUseName  string
	ToolUseInput json.RawMessage

	ToolResultID      string // BlockToolResult
	ToolResultContent string
	ToolResultIsError bool
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock { return ContentBlock{Kind: BlockText, Text: text} }

// ImageBlock builds a PNG image content block from raw bytes.
func ImageBlock(png []byte) ContentBlock { return ContentBlock{Kind: BlockImage, ImagePNG: png} }

// ToolResultBlock builds a tool_result block answering a prior ToolCall.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{
		Kind:              BlockToolResult,
		ToolResultID:      toolUseID,
		ToolResultContent: content,
		ToolResultIsError: isError,
	}
}

// ToolDefinition describes one callable tool offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage // JSON Schema object
}

// ToolCall is a tool_use block the model emitted in its response.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

func encodeMessages(msgs []Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks, err := encodeBlocks(m.Content)
		if err != nil {
			return nil, err
		}
		switch m.Role {
		case RoleUser:
			out = append(out, sdk.NewUserMessage(blocks...))
		case RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("encodeMessages: unsupported role %q", m.Role)
		}
	}
	return out, nil
}

func encodeBlocks(blocks []ContentBlock) ([]sdk.ContentBlockParamUnion, error) {
	out := make([]sdk.ContentBlockParamUnion, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case BlockText:
			out = append(out, sdk.NewTextBlock(b.Text))
		case BlockImage:
			encoded := base64.StdEncoding.EncodeToString(b.ImagePNG)
			out = append(out, sdk.NewImageBlockBase64("image/png", encoded))
		case BlockToolUse:
			out = append(out, sdk.NewToolUseBlock(b.ToolUseID, b.ToolUseInput, b.ToolUseName))
		case BlockToolResult:
			out = append(out, sdk.NewToolResultBlock(b.ToolResultID, b.ToolResultContent, b.ToolResultIsError))
		default:
			return nil, errors.New("encodeBlocks: empty or unknown block kind")
		}
	}
	return out, nil
}

func encodeTools(tools []ToolDefinition) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		if t.Name == "" {
			return nil, errors.New("encodeTools: tool name is required")
		}
		var schema sdk.ToolInputSchemaParam
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("encodeTools: invalid schema for %q: %w", t.Name, err)
			}
		}
		out = append(out, sdk.ToolUnionParamOfTool(sdk.ToolParam{
			Name:        t.Name,
			Description: sdk.String(t.Description),
			InputSchema: schema,
		}))
	}
	return out, nil
}
