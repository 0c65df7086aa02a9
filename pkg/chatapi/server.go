// Package chatapi exposes Core B's OpenAI-compatible chat-completions
// surface: POST /v1/chat/completions (streaming and non-streaming) and
// GET /health (§4.6). Grounded on codeready-toolchain-tarsy/pkg/api/server.go's
// Echo v5 Server-with-Set*-wiring shape and pkg/api/errors.go's
// errors.As/Is-based error-mapping pattern, adapted to the closed taxonomy
// error mapping of §7.
package chatapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/subterminator/core/pkg/analystagent"
	"github.com/subterminator/core/pkg/models"
	"github.com/subterminator/core/pkg/provider"
	"github.com/subterminator/core/pkg/taxonomy"
)

const modelName = "claude-da/analyst"

// Server is the HTTP API server fronting the analyst agent.
type Server struct {
	echo   *echo.Echo
	bridge *provider.Bridge
}

// NewServer builds a Server wired to bridge, registering routes.
func NewServer(bridge *provider.Bridge) *Server {
	e := echo.New()
	s := &Server{echo: e, bridge: bridge}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthHandler)
	s.echo.POST("/v1/chat/completions", s.chatCompletionsHandler)
}

// Start begins serving on addr.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type chatCompletionRequest struct {
	Model    string             `json:"model"`
	Messages []chatMessageInput `json:"messages"`
	Stream   bool               `json:"stream"`
}

type chatMessageInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) chatCompletionsHandler(c echo.Context) error {
	ctx := c.Request().Context()

	if err := s.bridge.EnsureInitialized(ctx); err != nil {
		return errorResponse(c, err)
	}

	var req chatCompletionRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return errorResponse(c, taxonomy.New(taxonomy.KindInputValidation, "malformed request body", err))
	}
	if req.Model != modelName {
		return errorResponse(c, taxonomy.New(taxonomy.KindInputValidation, fmt.Sprintf("model must be %q", modelName), nil))
	}

	cfg := s.bridge.Config()
	question, totalChars := reduceMessages(req.Messages)
	if totalChars > cfg.InputMaxChars {
		return errorResponse(c, taxonomy.New(taxonomy.KindInputValidation, "input exceeds the configured character limit", nil))
	}

	session, tools, err := s.bridge.NewAgentSession(ctx)
	if err != nil {
		return errorResponse(c, err)
	}
	defer tools.Close()

	requestID := uuid.New().String()
	if req.Stream {
		return s.streamChat(c, requestID, session, question)
	}
	return s.completeChat(c, requestID, session, question)
}

// reduceMessages drops system messages, forwards a single user message
// as-is, and flattens multi-turn history into `Role: content` blocks
// (§4.6 "Message → prompt reduction").
func reduceMessages(messages []chatMessageInput) (question string, totalChars int) {
	var nonSystem []chatMessageInput
	for _, m := range messages {
		totalChars += len(m.Content)
		if m.Role != "system" {
			nonSystem = append(nonSystem, m)
		}
	}
	if len(nonSystem) == 1 {
		return nonSystem[0].Content, totalChars
	}
	var flattened string
	for _, m := range nonSystem {
		flattened += fmt.Sprintf("%s: %s\n", m.Role, m.Content)
	}
	return flattened, totalChars
}

func (s *Server) completeChat(c echo.Context, requestID string, session *analystagent.Session, question string) error {
	result, err := session.Run(c.Request().Context(), question, nil)
	s.writeAudit(requestID, question, result)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"id":      "chatcmpl-" + requestID,
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   modelName,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": result.ResponseText},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{
			"prompt_tokens":     result.PromptTokens,
			"completion_tokens": result.CompletionTokens,
		},
	})
}

func (s *Server) streamChat(c echo.Context, requestID string, session *analystagent.Session, question string) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().WriteHeader(http.StatusOK)

	writeChunk := func(v any) {
		data, _ := json.Marshal(v)
		fmt.Fprintf(c.Response(), "data: %s\n\n", data)
		c.Response().Flush()
	}

	result, err := session.Run(c.Request().Context(), question, func(delta string) {
		writeChunk(map[string]any{"text": delta, "is_finished": false, "finish_reason": "", "index": 0})
	})

	s.writeAudit(requestID, question, result)

	if err != nil {
		mapping := taxonomy.MapHTTP(err)
		writeChunk(map[string]any{
			"text": "", "is_finished": true, "finish_reason": "error", "index": 0,
			"error": map[string]string{"type": mapping.Type, "code": mapping.Code},
		})
		fmt.Fprint(c.Response(), "data: [DONE]\n\n")
		c.Response().Flush()
		return nil
	}

	writeChunk(map[string]any{
		"text": "", "is_finished": true, "finish_reason": "stop", "index": 0,
		"usage": map[string]int{"prompt_tokens": result.PromptTokens, "completion_tokens": result.CompletionTokens},
	})
	fmt.Fprint(c.Response(), "data: [DONE]\n\n")
	c.Response().Flush()
	return nil
}

func (s *Server) writeAudit(requestID, question string, result *analystagent.Result) {
	if result == nil {
		return
	}
	logger := s.bridge.AuditLogger()
	if logger == nil {
		return
	}

	entry := models.AuditEntry{
		SessionID:          requestID,
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		UserQuestion:       question,
		SQLQueriesExecuted: result.SQLQueriesExecuted,
		FinalResponse:      result.ResponseText,
		Metadata: models.AuditMetadata{
			Model:            modelName,
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			CostEstimateUSD:  result.CostEstimateUSD,
			DurationSeconds:  result.DurationSeconds,
			ToolCallCount:    result.ToolCallCount,
		},
	}
	if s.bridge.Config().LogVerbose {
		entry.QueryResultsSummary = result.QueryResultsSummary
	}

	// Fire-and-forget: audit failures, panics included, never affect the
	// response (§4.9).
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("audit write panicked", "panic", r)
			}
		}()
		if err := logger.Record(entry); err != nil {
			slog.Error("audit write failed", "error", err)
		}
	}()
}

// errorResponse maps the closed taxonomy to an OpenAI-shaped error body
// (§7). Errors outside the taxonomy carry a generic message.
func errorResponse(c echo.Context, err error) error {
	mapping := taxonomy.MapHTTP(err)
	message := "internal error"
	var te *taxonomy.Error
	if errors.As(err, &te) {
		message = err.Error()
	}
	return c.JSON(mapping.Status, map[string]any{
		"error": map[string]string{
			"message": message,
			"type":    mapping.Type,
			"code":    mapping.Code,
		},
	})
}
