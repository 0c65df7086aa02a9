package chatapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subterminator/core/pkg/taxonomy"
)

func TestHealthHandlerReturnsOK(t *testing.T) {
	e := echo.New()
	s := &Server{echo: e}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.healthHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReduceMessagesForwardsSingleUserMessageAsIs(t *testing.T) {
	question, totalChars := reduceMessages([]chatMessageInput{
		{Role: "user", Content: "how many customers signed up last month?"},
	})

	assert.Equal(t, "how many customers signed up last month?", question)
	assert.Equal(t, len("how many customers signed up last month?"), totalChars)
}

func TestReduceMessagesDropsSystemMessages(t *testing.T) {
	question, _ := reduceMessages([]chatMessageInput{
		{Role: "system", Content: "you are unused here"},
		{Role: "user", Content: "count the orders"},
	})

	assert.Equal(t, "count the orders", question)
}

func TestReduceMessagesFlattensMultiTurnHistory(t *testing.T) {
	question, totalChars := reduceMessages([]chatMessageInput{
		{Role: "user", Content: "how many orders last week?"},
		{Role: "assistant", Content: "there were 12 orders"},
		{Role: "user", Content: "and the week before?"},
	})

	assert.Equal(t, "user: how many orders last week?\nassistant: there were 12 orders\nuser: and the week before?\n", question)
	assert.Equal(t,
		len("how many orders last week?")+len("there were 12 orders")+len("and the week before?"),
		totalChars,
	)
}

func TestReduceMessagesCountsSystemCharsTowardTotalWithoutForwarding(t *testing.T) {
	_, totalChars := reduceMessages([]chatMessageInput{
		{Role: "system", Content: "0123456789"},
		{Role: "user", Content: "abcde"},
	})

	assert.Equal(t, 15, totalChars)
}

func TestErrorResponseMapsKnownTaxonomyKind(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := taxonomy.New(taxonomy.KindInputValidation, "input exceeds the configured character limit", nil)
	require.NoError(t, errorResponse(c, err))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"input_validation_error: input exceeds the configured character limit","type":"invalid_request_error","code":"input_too_long"}}`, rec.Body.String())
}

func TestErrorResponseMapsUnrecognizedErrorToInternalError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, errorResponse(c, errors.New("boom")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"internal error","type":"internal_error","code":"internal_error"}}`, rec.Body.String())
}
