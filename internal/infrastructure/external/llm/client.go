// Package llm implements the language-model integration: an OpenAI-compatible
// chat completion client and the AI compatibility analyzer built on it.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/alem-hub/study-buddy/pkg/circuitbreaker"
	"github.com/alem-hub/study-buddy/pkg/logger"
	"github.com/alem-hub/study-buddy/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("llm: client is not configured")

	// ErrEmptyCompletion is returned when the provider answers without choices.
	ErrEmptyCompletion = errors.New("llm: empty completion")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the completion client.
type ClientConfig struct {
	// APIKey is the provider API key.
	APIKey string

	// BaseURL overrides the endpoint for OpenAI-compatible providers.
	BaseURL string

	// Model is the chat model name.
	Model string

	// MaxTokens caps the completion length.
	MaxTokens int

	// Temperature for sampling.
	Temperature float32

	// RequestTimeout bounds a single HTTP attempt.
	RequestTimeout time.Duration

	// MaxAttempts includes the first call.
	MaxAttempts int

	// Circuit breaker settings.
	BreakerFailureThreshold int
	BreakerTimeout          time.Duration
	BreakerHalfOpenMax      int
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Model:                   openai.GPT4oMini,
		MaxTokens:               500,
		Temperature:             0.2,
		RequestTimeout:          15 * time.Second,
		MaxAttempts:             3,
		BreakerFailureThreshold: 5,
		BreakerTimeout:          30 * time.Second,
		BreakerHalfOpenMax:      1,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Completer turns a prompt into a text completion.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIClient implements Completer on the OpenAI chat completions API.
type OpenAIClient struct {
	client  *openai.Client
	config  ClientConfig
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

var _ Completer = (*OpenAIClient)(nil)

// NewOpenAIClient creates a new client.
func NewOpenAIClient(cfg ClientConfig, log *logger.Logger) *OpenAIClient {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("llm_client"))

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		retrier: retry.LLMRetrier(cfg.MaxAttempts, func(attempt int, err error, delay time.Duration) {
			log.Warn("llm completion failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
		breaker: circuitbreaker.LLMBreaker(
			cfg.BreakerFailureThreshold,
			cfg.BreakerTimeout,
			cfg.BreakerHalfOpenMax,
			func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			},
		),
		log: log,
	}
}

// Complete sends a system and user message and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.config.APIKey == "" {
		return "", ErrNotConfigured
	}

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}

	var content string
	start := time.Now()

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			resp, err := c.client.CreateChatCompletion(ctx, req)
			if err != nil {
				if isRetryable(ctx, err) {
					return retry.Retryable(err)
				}
				return err
			}
			if len(resp.Choices) == 0 {
				return ErrEmptyCompletion
			}
			content = resp.Choices[0].Message.Content
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("llm: completion failed: %w", err)
	}

	c.log.Debug("llm completion done",
		logger.String("model", c.config.Model),
		logger.Latency(time.Since(start)),
	)
	return content, nil
}

// BreakerState reports the circuit breaker state.
func (c *OpenAIClient) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// CheckBreaker fails while the breaker is open. It makes no provider call.
func (c *OpenAIClient) CheckBreaker(ctx context.Context) error {
	snap := c.breaker.Snapshot()
	if snap.State != circuitbreaker.StateOpen {
		return nil
	}
	return fmt.Errorf("llm: circuit open since %s after %d consecutive failures",
		snap.OpenedAt.UTC().Format(time.RFC3339), snap.ConsecutiveFailures)
}

// isRetryable retries rate limits, server errors and per-attempt timeouts.
// A cancelled or expired caller context is never retried.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
