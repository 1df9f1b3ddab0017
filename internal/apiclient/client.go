// Package apiclient is the request/response layer over the clinic REST API.
// Transient failures (transport errors and 5xx) are retried with exponential
// backoff; 4xx responses fail immediately.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinicsync/internal/logger"
	"github.com/clinicsync/internal/metrics"
)

const (
	// DefaultMaxRetries is the number of attempts after the first one.
	DefaultMaxRetries = 3
	// DefaultRetryBase is the delay before the first retry; it doubles on every retry.
	DefaultRetryBase = 500 * time.Millisecond

	maxResponseSize = 10 << 20
)

var tracer = otel.Tracer("github.com/clinicsync/internal/apiclient")

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL includes the API base path, e.g. "https://clinic.example/api/v1".
	BaseURL string
	// HTTPClient is used for all requests. If nil, a client with a 30s timeout is used.
	HTTPClient *http.Client
	// MaxRetries: 0 selects DefaultMaxRetries, a negative value disables retries.
	MaxRetries int
	// RetryBase: 0 selects DefaultRetryBase.
	RetryBase time.Duration
}

// Client is stateless apart from its configuration and safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
}

// RequestOptions carries per-call settings.
type RequestOptions struct {
	// Token is the bearer credential. Empty means an unauthenticated call.
	Token string
}

// Result is a successful (2xx) response.
type Result struct {
	StatusCode int
	Body       []byte
	// NoContent is set for 204 responses; Body is empty then.
	NoContent bool
}

// Decode unmarshals the JSON body into v. A 204 result yields ErrNoContent.
func (r *Result) Decode(v any) error {
	if r.NoContent {
		return ErrNoContent
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("apiclient: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("apiclient: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	retries := cfg.MaxRetries
	switch {
	case retries == 0:
		retries = DefaultMaxRetries
	case retries < 0:
		retries = 0
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = DefaultRetryBase
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		maxRetries: retries,
		retryBase:  base,
	}, nil
}

func (c *Client) Get(ctx context.Context, path string, opts RequestOptions) (*Result, error) {
	return c.Do(ctx, http.MethodGet, path, nil, opts)
}

func (c *Client) Post(ctx context.Context, path string, body any, opts RequestOptions) (*Result, error) {
	return c.Do(ctx, http.MethodPost, path, body, opts)
}

func (c *Client) Patch(ctx context.Context, path string, body any, opts RequestOptions) (*Result, error) {
	return c.Do(ctx, http.MethodPatch, path, body, opts)
}

func (c *Client) Delete(ctx context.Context, path string, opts RequestOptions) (*Result, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, opts)
}

// newBackOff builds the retry schedule: retryBase * 2^n with no jitter, capped at maxRetries.
func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = c.retryBase << uint(c.maxRetries)
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)
}

// Do performs the request with retries. On exhaustion the last observed error is
// returned: an *APIError for 5xx, or the wrapped transport error.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts RequestOptions) (*Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "api "+method, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("api.path", path),
	))
	defer span.End()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			span.SetStatus(codes.Error, "encode body")
			return nil, fmt.Errorf("apiclient: encode request body: %w", err)
		}
	}

	attempts := 0
	var result *Result
	operation := func() error {
		attempts++
		if attempts > 1 {
			metrics.APIRetries.WithLabelValues(method).Inc()
		}
		res, err := c.attempt(ctx, method, path, payload, opts)
		if err == nil {
			result = res
			return nil
		}
		var apiErr *APIError
		if ctx.Err() != nil || (errors.As(err, &apiErr) && !apiErr.Retryable()) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Infof("api %s %s attempt %d failed, retry in %v: %v", method, path, attempts, wait, err)
	}

	err := backoff.RetryNotify(operation, c.newBackOff(ctx), notify)
	span.SetAttributes(attribute.Int("api.attempts", attempts))
	metrics.RecordAPICall(method, outcome(err), time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", result.StatusCode))
	return result, nil
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, opts RequestOptions) (*Result, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("apiclient: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	if resp.StatusCode == http.StatusNoContent {
		return &Result{StatusCode: resp.StatusCode, NoContent: true}, nil
	}
	return &Result{StatusCode: resp.StatusCode, Body: data}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case IsClientError(err):
		return "client_error"
	case IsServerError(err):
		return "server_error"
	default:
		return "transport_error"
	}
}
