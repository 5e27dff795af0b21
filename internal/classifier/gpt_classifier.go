package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/chat-metrics/internal/models"
	"github.com/xaenox/chat-metrics/internal/telemetry"
	"go.uber.org/zap"
)

// ChatCompleter is the part of *openai.Client the tagger needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// TagError reports why a conversation could not be tagged.
type TagError struct {
	Status   DecodeStatus
	Attempts int
	Err      error
}

func (e *TagError) Error() string {
	return fmt.Sprintf("tagging failed (%s after %d attempt(s)): %v", e.Status, e.Attempts, e.Err)
}

func (e *TagError) Unwrap() error { return e.Err }

type GPTConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	// MaxAttempts bounds completion retries; RetryBackoff is multiplied by
	// the attempt number before each retry.
	MaxAttempts  int
	RetryBackoff time.Duration
	JSONMode     bool
}

type GPTTagger struct {
	client ChatCompleter
	config GPTConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewGPTTagger(config GPTConfig, logger *zap.Logger) *GPTTagger {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return NewGPTTaggerWithClient(openai.NewClientWithConfig(clientConfig), config, logger)
}

func NewGPTTaggerWithClient(client ChatCompleter, config GPTConfig, logger *zap.Logger) *GPTTagger {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	return &GPTTagger{
		client: client,
		config: config,
		logger: logger,
		sleep:  sleepContext,
	}
}

func (c *GPTTagger) Model() string { return c.config.Model }

// Tag asks the model for an analysis of the conversation. Completion errors
// are retried; a response that fails to decode is not.
func (c *GPTTagger) Tag(ctx context.Context, conv *models.Conversation) (*models.Analysis, error) {
	started := time.Now()
	defer func() {
		telemetry.TaggerDurationSeconds.Observe(time.Since(started).Seconds())
	}()

	prompt := BuildPrompt(conv.Messages)

	var text string
	var lastErr error
	attempts := 0
	for attempts < c.config.MaxAttempts {
		attempts++
		telemetry.TaggerAttempts.Inc()

		text, lastErr = c.complete(ctx, prompt)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("Completion request failed",
			zap.Error(lastErr),
			zap.String("ticket_id", conv.TicketID),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", c.config.MaxAttempts))
		if attempts < c.config.MaxAttempts {
			if err := c.sleep(ctx, time.Duration(attempts)*c.config.RetryBackoff); err != nil {
				lastErr = err
				break
			}
		}
	}
	if lastErr != nil {
		telemetry.TaggerResults.WithLabelValues(string(StatusCompletionError)).Inc()
		return nil, &TagError{Status: StatusCompletionError, Attempts: attempts, Err: fmt.Errorf("%w: %w", ErrCompletion, lastErr)}
	}

	result := Decode(text)
	telemetry.TaggerResults.WithLabelValues(string(result.Status)).Inc()
	if result.Repaired {
		c.logger.Warn("Model returned an array, using its first element", zap.String("ticket_id", conv.TicketID))
	}
	if result.Status != StatusOK {
		c.logger.Error("Failed to parse GPT response",
			zap.Error(result.Err),
			zap.String("ticket_id", conv.TicketID),
			zap.String("response", text))
		return nil, &TagError{Status: result.Status, Attempts: attempts, Err: result.Err}
	}

	analysis := result.Analysis
	analysis.ConversationID = conv.ID
	analysis.TicketID = conv.TicketID
	analysis.Model = c.config.Model
	return analysis, nil
}

func (c *GPTTagger) complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: float32(c.config.Temperature),
	}
	if c.config.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
