// Package client provides the authenticated API session: bearer-token
// requests, rate-limit tracking, and the collection operations built on the
// paginated fetch loop.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/solarecho3/web-tools/pkg/logging"
	"github.com/solarecho3/web-tools/pkg/pagination"
	"github.com/solarecho3/web-tools/pkg/ratelimit"
)

// Prometheus metrics for API requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webtools_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webtools_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})
)

// DefaultBaseURL is the API root requests are built against.
const DefaultBaseURL = "https://api.twitter.com"

// Session is one authenticated run against the API. It is not safe for
// concurrent collections.
type Session struct {
	httpClient *http.Client
	token      string
	baseURL    string
	userAgent  string
	limits     *ratelimit.Tracker
	queries    *QueryLog
	collector  *pagination.Collector
	logger     zerolog.Logger

	mu   sync.Mutex
	last *pagination.Response
}

// Config holds the session configuration.
type Config struct {
	// Token is the bearer token. It is set once, when the session is created.
	Token string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Timeout bounds a single request.
	Timeout time.Duration

	// UserAgent is sent with every request when set.
	UserAgent string

	// Redis, when set, mirrors the rate-limit log for the dashboard.
	Redis *redis.Client
}

// DefaultConfig returns a configuration with the given token and defaults
// for everything else.
func DefaultConfig(token string) Config {
	return Config{
		Token:     token,
		BaseURL:   DefaultBaseURL,
		Timeout:   30 * time.Second,
		UserAgent: "web-tools/1.0",
	}
}

// New creates a session.
func New(cfg Config) (*Session, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative (got %s)", cfg.Timeout)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger("client")

	s := &Session{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		token:      cfg.Token,
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		limits:     ratelimit.NewTracker(cfg.Redis, logger),
		queries:    &QueryLog{},
		logger:     logger,
	}
	s.collector = pagination.NewCollector(s, s.limits, s.baseURL, logger)

	return s, nil
}

// Fetch performs one authenticated GET of target and decodes the body.
// Non-2xx responses are returned, not treated as errors; only transport
// failures are. It implements pagination.Fetcher.
func (s *Session) Fetch(ctx context.Context, endpoint, target string) (*pagination.Response, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	httpResp, err := s.get(ctx, endpoint, target)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		s.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "read_error").Inc()
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(httpResp.StatusCode)).Inc()
	resp := pagination.Decode(httpResp.StatusCode, httpResp.Header, raw)

	s.mu.Lock()
	s.last = resp
	s.mu.Unlock()

	if !resp.OK() {
		s.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("title", resp.Title()).
			Msg("API request error")
	} else {
		s.logger.Debug().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("transaction_id", resp.TransactionID()).
			Msg("API request complete")
	}

	return resp, nil
}

// Last returns the most recent response, or nil before the first request.
func (s *Session) Last() *pagination.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Limits returns the session's rate-limit tracker.
func (s *Session) Limits() *ratelimit.Tracker {
	return s.limits
}

// Queries returns the search log entries in sequence order.
func (s *Session) Queries() []QueryEntry {
	return s.queries.Entries()
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (s *Session) SetHTTPClient(client *http.Client) {
	s.httpClient = client
}

// SetSleeper replaces the throttle pause (for testing).
func (s *Session) SetSleeper(sleep pagination.Sleeper) {
	s.collector.SetSleeper(sleep)
}
