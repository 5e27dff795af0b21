package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/chat-metrics/internal/models"
	"go.uber.org/zap"
)

type scriptedCompleter struct {
	replies []string
	errs    []error
	calls   int
	last    openai.ChatCompletionRequest
}

func (s *scriptedCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := s.calls
	s.calls++
	s.last = req
	if i < len(s.errs) && s.errs[i] != nil {
		return openai.ChatCompletionResponse{}, s.errs[i]
	}
	reply := s.replies[len(s.replies)-1]
	if i < len(s.replies) {
		reply = s.replies[i]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply}}},
	}, nil
}

func testConversation() *models.Conversation {
	return &models.Conversation{
		ID:       "conv-1",
		TicketID: "ticket_7",
		Messages: []*models.Message{
			{Sender: models.SenderUser, Content: "Preciso da segunda via do IPTU"},
			{Sender: models.SenderBot, Content: "Segue o boleto"},
		},
	}
}

func newTestTagger(client ChatCompleter) (*GPTTagger, *[]time.Duration) {
	tagger := NewGPTTaggerWithClient(client, GPTConfig{
		Model:        "gpt-4o-mini",
		MaxTokens:    2048,
		Temperature:  0.3,
		MaxAttempts:  3,
		RetryBackoff: time.Second,
	}, zap.NewNop())
	var waits []time.Duration
	tagger.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return tagger, &waits
}

func TestTagSuccess(t *testing.T) {
	client := &scriptedCompleter{replies: []string{validResponse}}
	tagger, waits := newTestTagger(client)

	analysis, err := tagger.Tag(context.Background(), testConversation())
	require.NoError(t, err)
	assert.Equal(t, "conv-1", analysis.ConversationID)
	assert.Equal(t, "ticket_7", analysis.TicketID)
	assert.Equal(t, "gpt-4o-mini", analysis.Model)
	assert.Equal(t, 1, client.calls)
	assert.Empty(t, *waits)

	assert.Equal(t, 2048, client.last.MaxTokens)
	assert.InDelta(t, 0.3, client.last.Temperature, 1e-6)
	require.Len(t, client.last.Messages, 1)
	assert.Contains(t, client.last.Messages[0].Content, "[CIDADÃO]: Preciso da segunda via do IPTU")
}

func TestTagRetriesCompletionErrorsWithLinearBackoff(t *testing.T) {
	boom := errors.New("503 service unavailable")
	client := &scriptedCompleter{errs: []error{boom, boom}, replies: []string{validResponse}}
	tagger, waits := newTestTagger(client)

	analysis, err := tagger.Tag(context.Background(), testConversation())
	require.NoError(t, err)
	assert.NotNil(t, analysis)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
}

func TestTagGivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("connection refused")
	client := &scriptedCompleter{errs: []error{boom, boom, boom, boom}, replies: []string{validResponse}}
	tagger, waits := newTestTagger(client)

	_, err := tagger.Tag(context.Background(), testConversation())
	require.Error(t, err)

	var tagErr *TagError
	require.ErrorAs(t, err, &tagErr)
	assert.Equal(t, StatusCompletionError, tagErr.Status)
	assert.Equal(t, 3, tagErr.Attempts)
	assert.ErrorIs(t, err, ErrCompletion)
	assert.Equal(t, 3, client.calls)
	assert.Len(t, *waits, 2)
}

func TestTagDoesNotRetryInvalidOutput(t *testing.T) {
	client := &scriptedCompleter{replies: []string{`{"primaryService":"IPTU"}`}}
	tagger, _ := newTestTagger(client)

	_, err := tagger.Tag(context.Background(), testConversation())
	var tagErr *TagError
	require.ErrorAs(t, err, &tagErr)
	assert.Equal(t, StatusValidationError, tagErr.Status)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 1, client.calls)
}

func TestTagStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &scriptedCompleter{errs: []error{errors.New("timeout")}, replies: []string{validResponse}}
	tagger, _ := newTestTagger(client)
	tagger.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := tagger.Tag(ctx, testConversation())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.calls)
}

func TestTagAgainstOpenAICompatibleServer(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  got.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "[" + validResponse + "]"},
			}},
		})
	}))
	defer srv.Close()

	tagger := NewGPTTagger(GPTConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1",
		Model:       "gpt-4o-mini",
		MaxTokens:   2048,
		Temperature: 0.3,
		JSONMode:    true,
	}, zap.NewNop())

	analysis, err := tagger.Tag(context.Background(), testConversation())
	require.NoError(t, err)
	assert.Equal(t, models.ServiceIPTU, analysis.PrimaryService)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, got.ResponseFormat.Type)
}
