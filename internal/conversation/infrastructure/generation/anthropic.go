// Package generation produces dialogue text with the Anthropic Messages API.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/counsel/internal/conversation/application"
	"github.com/felixgeelhaar/counsel/internal/conversation/domain"
	"github.com/felixgeelhaar/counsel/pkg/observability"
	"github.com/sony/gobreaker/v2"
)

const (
	DefaultBaseURL = "https://api.anthropic.com/v1/messages"
	DefaultModel   = "claude-sonnet-4-5"
	apiVersion     = "2023-06-01"
)

// Config configures the Anthropic client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// MaxRetries is the number of attempts per request.
	MaxRetries int

	// BackoffBase doubles after every failed attempt.
	BackoffBase time.Duration

	QuestionMaxTokens int
	SolutionMaxTokens int
	AnswerMaxTokens   int

	// QuestionRounds is the round count quoted in question prompts.
	QuestionRounds int

	// FailureThreshold is the number of consecutive failed requests that
	// opens the circuit breaker.
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open.
	OpenTimeout time.Duration
}

// DefaultConfig returns the production generation settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		Model:             DefaultModel,
		Timeout:           60 * time.Second,
		MaxRetries:        3,
		BackoffBase:       time.Second,
		QuestionMaxTokens: 300,
		SolutionMaxTokens: 2500,
		AnswerMaxTokens:   1000,
		QuestionRounds:    domain.QuestionRounds,
		FailureThreshold:  5,
		OpenTimeout:       30 * time.Second,
	}
}

// Client calls the Messages API with bounded retries behind a circuit
// breaker. While the breaker is open requests fail immediately, so the
// engine falls back without waiting.
type Client struct {
	config  Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[string]
	metrics observability.Metrics
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient creates an Anthropic client.
func NewClient(config Config, metrics observability.Metrics, logger *slog.Logger) *Client {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = defaults.BackoffBase
	}
	if config.QuestionMaxTokens <= 0 {
		config.QuestionMaxTokens = defaults.QuestionMaxTokens
	}
	if config.SolutionMaxTokens <= 0 {
		config.SolutionMaxTokens = defaults.SolutionMaxTokens
	}
	if config.AnswerMaxTokens <= 0 {
		config.AnswerMaxTokens = defaults.AnswerMaxTokens
	}
	if config.QuestionRounds <= 0 {
		config.QuestionRounds = defaults.QuestionRounds
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = defaults.OpenTimeout
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		metrics: metrics,
		logger:  logger,
		sleep:   sleepContext,
	}
	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "anthropic",
		MaxRequests: 1,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return c
}

// BreakerState reports the circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) GenerateQuestion(ctx context.Context, description string, recent domain.History, step int) (string, error) {
	prompt := questionPrompt(description, recent, step, c.config.QuestionRounds)
	return c.complete(ctx, "question", prompt, c.config.QuestionMaxTokens)
}

func (c *Client) GenerateSolution(ctx context.Context, description string, history domain.History) (string, error) {
	return c.complete(ctx, "solution", solutionPrompt(description, history), c.config.SolutionMaxTokens)
}

func (c *Client) GenerateDiscussionAnswer(ctx context.Context, req application.DiscussionRequest) (string, error) {
	prompt := discussionPrompt(req.Description, req.Solution, req.History, req.Question)
	return c.complete(ctx, "discussion", prompt, c.config.AnswerMaxTokens)
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func (c *Client) complete(ctx context.Context, op, prompt string, maxTokens int) (string, error) {
	start := time.Now()
	text, err := c.breaker.Execute(func() (string, error) {
		return c.withRetry(ctx, op, prompt, maxTokens)
	})
	c.metrics.Timing(observability.MetricGenerationDuration, time.Since(start), observability.T("operation", op))

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.metrics.Counter(observability.MetricGenerationRequests, 1,
			observability.T("operation", op), observability.T("outcome", "rejected"))
		return "", fmt.Errorf("%w: %s: circuit open", domain.ErrGenerationFailed, op)
	}
	if err != nil {
		c.metrics.Counter(observability.MetricGenerationRequests, 1,
			observability.T("operation", op), observability.T("outcome", "error"))
		return "", fmt.Errorf("%w: %s: %w", domain.ErrGenerationFailed, op, err)
	}
	c.metrics.Counter(observability.MetricGenerationRequests, 1,
		observability.T("operation", op), observability.T("outcome", "ok"))
	return text, nil
}

func (c *Client) withRetry(ctx context.Context, op, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     c.config.Model,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.BackoffBase * time.Duration(1<<(attempt-1))
			c.logger.WarnContext(ctx, "retrying generation request",
				"operation", op,
				"attempt", attempt+1,
				"backoff", backoff,
				"error", lastErr,
			)
			if err := c.sleep(ctx, backoff); err != nil {
				return "", err
			}
		}

		text, err := c.send(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var permanent *permanentError
		if errors.As(err, &permanent) || ctx.Err() != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("failed after %d attempts: %w", c.config.MaxRetries, lastErr)
}

func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", &permanentError{err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(data)
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		statusErr := fmt.Errorf("API error (%d): %s", resp.StatusCode, msg)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", statusErr
		}
		return "", &permanentError{err: statusErr}
	}

	var parsed messagesResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	var b strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ application.Generator = (*Client)(nil)
