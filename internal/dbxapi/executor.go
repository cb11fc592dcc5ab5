package dbxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"dpm/internal/domain"
)

// Defaults tuned for interactive flows: short timeout, small retry budget.
const (
	defaultTimeout     = 12 * time.Second
	defaultMaxAttempts = 2
	defaultBackoffBase = 2 * time.Second
)

// Request describes one platform API call. Zero-valued Timeout and
// MaxAttempts fall back to the executor defaults.
type Request struct {
	Method      string
	URL         string
	Query       url.Values
	Body        interface{}
	Timeout     time.Duration
	MaxAttempts int
}

// ExecutorConfig tunes the retry behavior. Zero values use the defaults.
type ExecutorConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
}

// Executor issues platform API calls with bounded retry and exponential
// backoff. Only transport failures are retried; a non-2xx response is a
// terminal answer from the platform. Execute never panics and never
// returns an error value: callers branch on the Outcome.
type Executor struct {
	client      *http.Client
	tokens      domain.TokenProvider
	logger      *slog.Logger
	timeout     time.Duration
	maxAttempts int
	backoffBase time.Duration
}

// NewExecutor creates an Executor authenticating via the given provider.
func NewExecutor(tokens domain.TokenProvider, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	return &Executor{
		client:      &http.Client{},
		tokens:      tokens,
		logger:      logger.With("component", "executor"),
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
	}
}

// Execute performs the request, retrying transport failures with backoff.
func (e *Executor) Execute(ctx context.Context, req Request) Outcome {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	attempts := req.MaxAttempts
	if attempts <= 0 {
		attempts = e.maxAttempts
	}
	fullURL := req.URL
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	delay := e.backoffBase
	var lastErr error
	ran := 0
	aborted := false
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := e.attempt(ctx, req.Method, fullURL, req.Body, timeout)
		ran = attempt
		if err == nil {
			out.method = req.Method
			out.url = fullURL
			return out
		}
		lastErr = err
		e.logger.Warn("request attempt failed",
			"method", req.Method, "url", fullURL,
			"attempt", attempt, "of", attempts, "error", err)
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			aborted = true
		}
		if aborted {
			break
		}
		delay *= 2
	}

	errMsg := fmt.Sprintf("%s %s network error after %d attempts: %v", req.Method, fullURL, ran, lastErr)
	if aborted {
		errMsg = fmt.Sprintf("%s %s aborted by context after %d attempts: %v", req.Method, fullURL, ran, lastErr)
	}
	return Outcome{
		StatusCode: 0,
		Body:       map[string]interface{}{},
		Err:        errMsg,
		method:     req.Method,
		url:        fullURL,
		attempts:   ran,
		cause:      fmt.Sprintf("%v", lastErr),
	}
}

// attempt runs one HTTP exchange. A returned error means a transport
// failure eligible for retry; any HTTP response, success or not, is a
// terminal Outcome.
func (e *Executor) attempt(ctx context.Context, method, fullURL string, body interface{}, timeout time.Duration) (Outcome, error) {
	token, err := e.tokens.AccessToken(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("acquire token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			// A payload that cannot be serialized will never succeed.
			return Outcome{
				StatusCode: 0,
				Body:       map[string]interface{}{},
				Err:        fmt.Sprintf("%s %s failed: unencodable payload: %v", method, fullURL, err),
				attempts:   1,
				cause:      fmt.Sprintf("unencodable payload: %v", err),
			}, nil
		}
		reader = bytes.NewReader(raw)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, fullURL, reader)
	if err != nil {
		return Outcome{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return Outcome{}, err
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, err
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var parsed map[string]interface{}
		if err := json.Unmarshal(raw, &parsed); err != nil || parsed == nil {
			return Outcome{StatusCode: resp.StatusCode, Body: map[string]interface{}{}, Note: "empty body"}, nil
		}
		return Outcome{StatusCode: resp.StatusCode, Body: parsed}, nil
	case resp.StatusCode == http.StatusNoContent:
		return Outcome{StatusCode: resp.StatusCode, Body: map[string]interface{}{}, Note: "no content"}, nil
	default:
		var parsed map[string]interface{}
		if err := json.Unmarshal(raw, &parsed); err != nil || parsed == nil {
			parsed = map[string]interface{}{"error": string(raw)}
		}
		return Outcome{
			StatusCode: resp.StatusCode,
			Body:       parsed,
			Err:        fmt.Sprintf("%s %s failed: %d", method, fullURL, resp.StatusCode),
		}, nil
	}
}
