// Package mcptool wraps a single subprocess MCP tool server (the "sqlite"
// server) for Core B's analyst agent, allow/deny-listing the tools exposed
// to the model (§4.7). Grounded on codeready-toolchain-tarsy/pkg/mcp/client.go's
// Client shape, narrowed from "many servers, cached across a session" to one
// server torn down per request (§4.9 "constructs the agent session
// factory").
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/subterminator/core/pkg/taxonomy"
)

// InitTimeout bounds how long launching and connecting to the subprocess
// may take.
const InitTimeout = 10 * time.Second

// OperationTimeout bounds a single tool call.
const OperationTimeout = 30 * time.Second

// DenyList is always excluded regardless of prefix/allow configuration
// (§4.7 "deny-list (['Bash','Write','Edit'])" — defense-in-depth alongside
// the subprocess's own tool surface).
var DenyList = map[string]bool{"Bash": true, "Write": true, "Edit": true}

// Server manages one subprocess MCP tool server connection, exposing only
// tools whose name begins with Prefix and is not in DenyList.
type Server struct {
	Command string
	Args    []string
	DBPath  string
	Prefix  string

	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
}

// NewServer builds a Server description; call Start to launch it.
func NewServer(command string, args []string, dbPath, prefix string) *Server {
	return &Server{Command: command, Args: args, DBPath: dbPath, Prefix: prefix}
}

// Start launches `<command> <args...> <dbPath>` and connects over stdio.
func (s *Server) Start(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, InitTimeout)
	defer cancel()

	transport := &mcpsdk.CommandTransport{
		Command: s.Command,
		Args:    append(append([]string{}, s.Args...), s.DBPath),
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "claude-da-gateway", Version: "1"}, nil)
	session, err := client.Connect(initCtx, transport, nil)
	if err != nil {
		return taxonomy.New(taxonomy.KindDatabaseUnavailable, "launch sqlite tool server", err)
	}
	s.client = client
	s.session = session
	return nil
}

// Close tears down the subprocess connection (§4.9 "torn down per-request").
func (s *Server) Close() error {
	if s.session == nil {
		return nil
	}
	return s.session.Close()
}

// AllowedTool is a tool descriptor presented to the model: Name carries
// Prefix so the model's namespace stays gateway-qualified, while the
// subprocess itself knows nothing of that prefix (§4.7).
type AllowedTool struct {
	Name        string // model-facing, prefixed
	Description string
	InputSchema json.RawMessage
}

// ListAllowedTools discovers the subprocess's real tool names via the MCP
// ListTools call, drops anything in DenyList, and returns the survivors with
// Prefix prepended for model-facing use. The subprocess's own tool names
// (e.g. "read_query") never carry the gateway's prefix themselves — it is
// this call, not the subprocess, that establishes the namespacing.
func (s *Server) ListAllowedTools(ctx context.Context) ([]AllowedTool, error) {
	opCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	result, err := s.session.ListTools(opCtx, nil)
	if err != nil {
		return nil, taxonomy.New(taxonomy.KindDatabaseUnavailable, "list tools from sqlite server", err)
	}

	var allowed []AllowedTool
	for _, t := range result.Tools {
		if DenyList[t.Name] {
			continue
		}
		schema, _ := json.Marshal(t.InputSchema)
		allowed = append(allowed, AllowedTool{
			Name:        s.Prefix + t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return allowed, nil
}

// CallTool invokes the model-facing, prefixed name with args and returns its
// text content. The prefix is stripped before the call is forwarded to the
// subprocess, which never sees its own tools as prefixed.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	realName, ok := strings.CutPrefix(name, s.Prefix)
	if !ok || DenyList[realName] {
		return "", taxonomy.New(taxonomy.KindInputValidation, fmt.Sprintf("tool %q is not allow-listed", name), nil)
	}

	opCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	result, err := s.session.CallTool(opCtx, &mcpsdk.CallToolParams{Name: realName, Arguments: args})
	if err != nil {
		return "", taxonomy.New(taxonomy.KindDatabaseUnavailable, fmt.Sprintf("call tool %q", name), err)
	}

	var out strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			out.WriteString(tc.Text)
		}
	}
	return out.String(), nil
}
