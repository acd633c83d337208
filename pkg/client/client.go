// Package client fetches pages of the artworks API with rate limiting,
// caching, and error handling.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/artsel/pkg/artwork"
	"github.com/Sternrassler/artsel/pkg/cache"
	"github.com/Sternrassler/artsel/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the public artworks endpoint.
const DefaultBaseURL = "https://api.artic.edu/api/v1/artworks"

// DefaultPageSize matches the rows per page of the table.
const DefaultPageSize = 12

// MaxPageSize is the largest limit the API accepts.
const MaxPageSize = 100

// Prometheus metrics for page fetches.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artsel_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "artsel_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artsel_errors_total",
		Help: "Total fetch errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artsel_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "artsel_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artsel_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Client fetches artwork pages.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	baseURL     *url.URL
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the artworks collection endpoint
	BaseURL string

	// PageSize is the number of records per page (1..MaxPageSize)
	PageSize int

	// Fields limits the returned record fields; empty requests artwork.DefaultFields
	Fields []string

	// User-Agent header sent with every request
	UserAgent string

	// Timeout bounds a single HTTP attempt
	Timeout time.Duration

	// Redis enables the page cache and the shared rate limit state. Nil disables both.
	Redis *redis.Client

	// Retry overrides. Zero keeps the per-class defaults.
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redis *redis.Client, userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		PageSize:  DefaultPageSize,
		Fields:    artwork.DefaultFields,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Redis:     redis,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageSize < 1 || cfg.PageSize > MaxPageSize {
		return nil, fmt.Errorf("page_size must be between 1 and %d (got %d)", MaxPageSize, cfg.PageSize)
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = artwork.DefaultFields
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("max_attempts must be >= 0 (got %d)", cfg.MaxAttempts)
	}

	logger := log.With().Str("component", "artworks-client").Logger()

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config:  cfg,
		baseURL: base,
		logger:  logger,
	}

	if cfg.Redis != nil {
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)
		c.cache = cache.NewManager(cfg.Redis)
	} else {
		logger.Debug().Msg("No redis configured, page cache and rate limit state disabled")
	}

	return c, nil
}

// PageSize returns the configured records per page.
func (c *Client) PageSize() int {
	return c.config.PageSize
}

// PageURL builds the request URL of page n.
func (c *Client) PageURL(n int) string {
	u := *c.baseURL
	q := u.Query()
	q.Set("page", strconv.Itoa(n))
	q.Set("limit", strconv.Itoa(c.config.PageSize))
	q.Set("fields", strings.Join(c.config.Fields, ","))
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPage loads page n (1-based). On error no partial page is returned.
func (c *Client) FetchPage(ctx context.Context, n int) (*artwork.Page, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidPage, n)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PageURL(n), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			fe.Page = n
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &FetchError{Page: n, StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Message: "read body", Err: err}
	}

	page, err := artwork.Decode(body, n)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassMalformed)).Inc()
		c.logger.Warn().Err(err).Int("page", n).Msg("Malformed page response")
		if c.cache != nil {
			if derr := c.cache.Delete(ctx, cache.KeyForURL(req.URL)); derr != nil {
				c.logger.Warn().Err(derr).Msg("Failed to drop malformed cache entry")
			}
		}
		return nil, &FetchError{Page: n, StatusCode: resp.StatusCode, ErrorClass: ErrorClassMalformed, Message: "decode page", Err: err}
	}

	c.logger.Debug().
		Int("page", n).
		Int("records", len(page.Records)).
		Int("total", page.TotalCount).
		Msg("Page fetched")
	return page, nil
}

// waitForBudget consults the rate limiter, which may hold the request until
// the window allows it. A rejection is returned as ErrRateLimited.
func (c *Client) waitForBudget(ctx context.Context, endpoint string) error {
	if c.rateLimiter == nil {
		return nil
	}
	allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Rate limit check failed")
		return fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Msg("Request blocked by rate limiter")
		requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		return &FetchError{ErrorClass: ErrorClassRateLimit, Message: "blocked locally", Err: ErrRateLimited}
	}
	return nil
}

// Do performs a GET with rate limiting, caching, conditional revalidation and
// retries. Any status >= 400 that survives the retries is returned as a
// *FetchError; a 304 is resolved to the cached response.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check Rate Limit
	if err := c.waitForBudget(ctx, endpoint); err != nil {
		return nil, err
	}

	// Step 2: Check Cache
	cacheKey := cache.KeyForURL(req.URL)
	var cachedEntry *cache.CacheEntry
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
		cachedEntry = entry
	}

	if cachedEntry != nil && !cachedEntry.IsExpired() {
		requestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
		c.logger.Debug().Str("key", cacheKey.String()).Msg("Serving page from cache")
		return cache.EntryToResponse(cachedEntry), nil
	}

	// Step 3: Make Conditional Request for a stale entry
	if cachedEntry != nil && cache.ShouldMakeConditionalRequest(cachedEntry) {
		cache.AddConditionalHeaders(req, cachedEntry)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("etag", cachedEntry.ETag).
			Msg("Making conditional request")
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("query", req.URL.RawQuery).
		Msg("Executing request")

	// Step 4: Execute with retries
	var resp *http.Response

	attempt := 0
	retryErr := retryWithBackoff(ctx, c.retryPolicy, func() error {
		attempt++
		if attempt > 1 {
			if err := c.waitForBudget(ctx, endpoint); err != nil {
				return err
			}
		}

		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			errClass := ErrorClassNetwork
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			return &FetchError{ErrorClass: errClass, Message: "transport", Err: reqErr}
		}

		if c.rateLimiter != nil {
			if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header, resp.StatusCode); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
			}
		}

		if resp.StatusCode >= 400 {
			errClass := classifyStatus(resp.StatusCode)
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("Request error")

			fe := &FetchError{
				StatusCode: resp.StatusCode,
				ErrorClass: errClass,
				Message:    resp.Status,
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				if state, ok, _ := ratelimit.ParseHeaders(resp.Header, resp.StatusCode); ok {
					fe.RetryAfter = state.TimeUntilReset()
				}
			}
			resp.Body.Close()
			resp = nil
			return fe
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		return nil
	}, ClassOf)

	if retryErr != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, retryErr
	}

	// Step 5: Handle 304 Not Modified
	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		if cachedEntry == nil {
			return nil, &FetchError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassMalformed, Message: "304 without cached entry"}
		}

		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()

		if err := c.cache.UpdateTTL(ctx, cacheKey, cache.ParseExpires(resp.Header)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
		}
		return cache.EntryToResponse(cachedEntry), nil
	}

	// Step 6: Update Cache on success
	if resp.StatusCode == http.StatusOK && c.cache != nil {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if entry.TTL() > 0 {
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				c.logger.Debug().
					Str("endpoint", endpoint).
					Dur("ttl", entry.TTL()).
					Msg("Cached response")
			}
		}
	}

	return resp, nil
}

// retryPolicy applies the configured overrides to the per-class defaults.
func (c *Client) retryPolicy(class ErrorClass) RetryConfig {
	rc := RetryConfigForErrorClass(class)
	if c.config.MaxAttempts > 0 {
		rc.MaxAttempts = c.config.MaxAttempts
	}
	if c.config.InitialBackoff > 0 {
		rc.InitialBackoff = c.config.InitialBackoff
		if rc.MaxBackoff < rc.InitialBackoff {
			rc.MaxBackoff = rc.InitialBackoff
		}
	}
	return rc
}

// classifyStatus categorizes an HTTP error status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	default:
		return ErrorClassServer
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, nil without redis.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
