package llmclient

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessagesAPI struct {
	responses []*sdk.Message
	errs      []error
	calls     int
}

func (f *fakeMessagesAPI) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func textMessage(text string) *sdk.Message {
	return &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: text}},
		Usage:   sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func TestNewRejectsMissingModel(t *testing.T) {
	_, err := New(&fakeMessagesAPI{}, Options{})
	assert.Error(t, err)
}

func TestCompleteReturnsTranslatedText(t *testing.T) {
	fake := &fakeMessagesAPI{responses: []*sdk.Message{textMessage("hello")}}
	c, err := New(fake, Options{DefaultModel: "claude-sonnet-4-5-20250929"})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: []ContentBlock{TextBlock("hi")}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, 10, resp.Usage.InputTokens)
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	c, err := New(&fakeMessagesAPI{}, Options{DefaultModel: "claude-sonnet-4-5-20250929"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), Request{})
	assert.Error(t, err)
}

func TestCompleteRetriesOnTransientError(t *testing.T) {
	fake := &fakeMessagesAPI{
		errs:      []error{assertError("boom"), nil},
		responses: []*sdk.Message{nil, textMessage("recovered")},
	}
	c, err := New(fake, Options{DefaultModel: "claude-sonnet-4-5-20250929", RetryBackoff: 1})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: []ContentBlock{TextBlock("hi")}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)
	assert.Equal(t, 2, fake.calls)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertError(msg string) error { return simpleError(msg) }
