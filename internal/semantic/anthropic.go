package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/vidaudit/internal/config"
)

const (
	anthropicVersion = "2023-06-01"
	defaultBaseURL   = "https://api.anthropic.com"

	defaultBaseBackoff = 500 * time.Millisecond
)

// scorePrompt asks for a bare number so the response parses without any
// structured-output plumbing.
const scorePrompt = `You are auditing whether an automated browser test executed its plan.

Planned step: %s
Observed video evidence: %s

On a scale from 0.0 to 1.0, how plausible is it that this video evidence shows the planned step being executed? Respond with only the number.`

// AnthropicMatcher scores step/event pairs with the Anthropic messages API.
// Calls are rate-limited and retried with exponential backoff; every failure
// mode surfaces as ErrMatcherUnavailable so the engine can degrade the
// affected step instead of aborting the run.
type AnthropicMatcher struct {
	model      string
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *zap.Logger
	metrics    *Metrics
}

// NewAnthropicMatcher creates a matcher backed by the Anthropic API.
func NewAnthropicMatcher(cfg config.MatcherConfig, logger *zap.Logger) (*AnthropicMatcher, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("anthropic API key required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &AnthropicMatcher{
		model:   cfg.Model,
		apiKey:  cfg.APIKey.Value(),
		baseURL: baseURL,
		timeout: cfg.Timeout.Duration(),
		httpClient: &http.Client{
			Timeout: cfg.Timeout.Duration(),
		},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		maxRetries: cfg.MaxRetries,
		logger:     logger,
		metrics:    NewMetrics(logger),
	}, nil
}

// anthropicRequest is the messages API request body.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse is the subset of the response body we read.
type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Score implements Matcher. The call is bounded by the configured per-call
// timeout regardless of the caller's context deadline.
func (m *AnthropicMatcher) Score(ctx context.Context, stepDescription, eventContext string) (score float64, err error) {
	start := time.Now()
	defer func() {
		m.metrics.RecordScore(ctx, m.model, time.Since(start), err)
	}()

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.limiter.Wait(callCtx); err != nil {
		return 0, fmt.Errorf("%w: rate limiter: %v", ErrMatcherUnavailable, err)
	}

	req := anthropicRequest{
		Model:       m.model,
		MaxTokens:   16,
		Temperature: 0, // scoring must be as repeatable as the API allows
		Messages: []anthropicMessage{
			{Role: "user", Content: fmt.Sprintf(scorePrompt, stepDescription, eventContext)},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-callCtx.Done():
				return 0, fmt.Errorf("%w: %v", ErrMatcherUnavailable, callCtx.Err())
			}
		}

		text, err := m.doRequest(callCtx, req)
		if err == nil {
			return parseScore(text)
		}

		lastErr = err
		var retryable *retryableError
		if !errors.As(err, &retryable) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("%w: max retries exceeded: %v", ErrMatcherUnavailable, lastErr)
}

// doRequest performs one HTTP round trip to the messages endpoint.
func (m *AnthropicMatcher) doRequest(ctx context.Context, req anthropicRequest) (string, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %v", ErrMatcherUnavailable, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("%w: building request: %v", ErrMatcherUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", m.apiKey)
	httpReq.Header.Set("Anthropic-Version", anthropicVersion)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("%w: request failed: %v", ErrMatcherUnavailable, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("%w: reading response: %v", ErrMatcherUnavailable, err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &retryableError{err: fmt.Errorf("%w: rate limited (429)", ErrMatcherUnavailable)}
	}
	if resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("%w: server error (%d)", ErrMatcherUnavailable, resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		var parsed anthropicResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("%w: API error (%d): %s", ErrMatcherUnavailable, resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("%w: API error (%d)", ErrMatcherUnavailable, resp.StatusCode)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrMatcherUnavailable, err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("%w: empty response content", ErrMatcherUnavailable)
	}
	return parsed.Content[0].Text, nil
}

// parseScore extracts the numeric judgment from the model's reply and clamps
// nothing: an out-of-range reply is a matcher failure, not data.
func parseScore(text string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric score %q", ErrMatcherUnavailable, text)
	}
	if value < 0 || value > 1 {
		return 0, fmt.Errorf("%w: score %g outside [0,1]", ErrMatcherUnavailable, value)
	}
	return value, nil
}

// retryableError marks transient transport failures.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }
