// Package client provides the upstream market-data HTTP client with shared
// credit tracking, retries and response normalization.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/coinrate/pkg/logging"
	"github.com/Sternrassler/coinrate/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for upstream client operations.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrate_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coinrate_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"endpoint"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrate_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// APIKeyHeader carries the upstream API key.
const APIKeyHeader = "X-CMC_PRO_API_KEY"

// DefaultBaseURL is the production upstream API.
const DefaultBaseURL = "https://pro-api.coinmarketcap.com"

// Client is the upstream market-data client.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Redis client for the shared credit budget
	Redis *redis.Client

	// BaseURL of the upstream API
	BaseURL string

	// APIKey sent in the X-CMC_PRO_API_KEY header (REQUIRED)
	APIKey string

	// User-Agent header
	UserAgent string

	// Timeout bounds a single HTTP attempt
	Timeout time.Duration

	// Credit budget shared by every process, per window
	CreditBudget int
	CreditWindow time.Duration

	// Local token bucket per process
	RateLimit float64 // Requests per second
	Burst     int

	// Retry; zero values keep the per-class defaults
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redis *redis.Client, apiKey string) Config {
	return Config{
		Redis:        redis,
		BaseURL:      DefaultBaseURL,
		APIKey:       apiKey,
		UserAgent:    "coinrate/1.0",
		Timeout:      4 * time.Second,
		CreditBudget: ratelimit.DefaultBudget,
		CreditWindow: ratelimit.DefaultWindow,
		RateLimit:    5,
		Burst:        5,
	}
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %v)", cfg.Timeout)
	}

	logger := logging.NewLogger(logging.ComponentUpstream)

	rateLimiter := ratelimit.NewTracker(cfg.Redis, logger,
		ratelimit.WithBudget(cfg.CreditBudget, cfg.CreditWindow),
		ratelimit.WithLocalLimit(cfg.RateLimit, cfg.Burst),
	)

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     base,
		rateLimiter: rateLimiter,
		config:      cfg,
		logger:      logger,
	}, nil
}

// Do performs an HTTP request with rate limiting, retries and error handling.
// Responses with status < 500 other than 429 are returned to the caller.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check Rate Limit
	allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Rate limit check failed")
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Msg("Request blocked by rate limiter")
		upstreamRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		return nil, &UpstreamError{
			StatusCode: http.StatusTooManyRequests,
			ErrorClass: ErrorClassRateLimit,
			Message:    "request blocked: credit budget exhausted",
			Err:        ErrRateLimited,
		}
	}

	// Step 2: Headers
	req.Header.Set(APIKeyHeader, c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing upstream request")

	// Step 3: Execute with retry
	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.retryPolicy, func() (ErrorClass, error) {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			errClass := c.classifyError(nil, reqErr)
			c.logger.Warn().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			upstreamErrorsTotal.WithLabelValues(string(errClass)).Inc()
			upstreamRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return errClass, &UpstreamError{ErrorClass: errClass, Message: "request failed", Err: reqErr}
		}

		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.StatusCode, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}

		upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		if resp.StatusCode < 400 {
			return "", nil
		}

		errClass := c.classifyError(resp, nil)
		upstreamErrorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Upstream request error")

		switch errClass {
		case ErrorClassServer:
			resp.Body.Close()
			return errClass, &UpstreamError{StatusCode: resp.StatusCode, ErrorClass: errClass, Message: resp.Status}
		case ErrorClassRateLimit:
			resp.Body.Close()
			return errClass, &UpstreamError{StatusCode: resp.StatusCode, ErrorClass: errClass, Message: resp.Status, Err: ErrRateLimited}
		}

		// Client errors are handed to the caller with their body.
		return "", nil
	})

	if retryErr != nil {
		return nil, retryErr
	}
	return resp, nil
}

// retryPolicy applies configured overrides to the per-class defaults.
func (c *Client) retryPolicy(class ErrorClass) RetryConfig {
	cfg := RetryConfigForErrorClass(class)
	if c.config.MaxAttempts > 0 {
		cfg.MaxAttempts = c.config.MaxAttempts
	}
	if c.config.InitialBackoff > 0 {
		cfg.InitialBackoff = c.config.InitialBackoff
		if cfg.MaxBackoff < cfg.InitialBackoff {
			cfg.MaxBackoff = cfg.InitialBackoff
		}
	}
	return cfg
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// apiStatus is the status block of every upstream response.
type apiStatus struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	CreditCount  int    `json:"credit_count"`
}

type envelope struct {
	Status apiStatus       `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// getJSON calls path with query and returns the data member of the response.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Message: "read body", Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if env.Status.CreditCount > 0 {
		if err := c.rateLimiter.RecordCredits(ctx, env.Status.CreditCount); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record upstream credits")
		}
	}

	if resp.StatusCode >= 400 {
		msg := env.Status.ErrorMessage
		if msg == "" {
			msg = resp.Status
		}
		return nil, &UpstreamError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassClient, Message: msg}
	}
	if decodeErr != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassServer, Message: "decode response", Err: decodeErr}
	}
	if env.Status.ErrorCode != 0 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassClient, Message: env.Status.ErrorMessage}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, ErrEmptyPayload
	}
	return env.Data, nil
}

// Tracker returns the rate limit tracker shared by this client.
func (c *Client) Tracker() *ratelimit.Tracker {
	return c.rateLimiter
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// IsRateLimited reports whether err stems from the upstream rate limit.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
