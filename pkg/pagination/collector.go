package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/solarecho3/web-tools/pkg/ratelimit"
	"github.com/solarecho3/web-tools/pkg/table"
)

// Prometheus metrics for collection loops.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webtools_pages_fetched_total",
		Help: "Total pages requested by endpoint",
	}, []string{"endpoint"})

	usageCapExceededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webtools_usage_cap_exceeded_total",
		Help: "Total collections stopped by the account-level usage cap",
	})

	throttleSleepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webtools_throttle_sleeps_total",
		Help: "Total throttle pauses between page requests by endpoint",
	}, []string{"endpoint"})
)

// Fetcher issues a single GET for a fully built request target.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint, target string) (*Response, error)
}

// Observer records the rate-limit metadata of each response.
// *ratelimit.Tracker implements it.
type Observer interface {
	Observe(ctx context.Context, endpoint string, header http.Header) (ratelimit.Snapshot, error)
}

// Sleeper pauses between throttled requests.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Result is the outcome of one collection.
type Result struct {
	// Table holds the collected records, or a diagnostic table when
	// Diagnostic is set.
	Table *table.Table

	// Pages is the number of requests issued.
	Pages int

	// Diagnostic marks a table built from the last response's error payload
	// (or raw body) instead of records.
	Diagnostic bool

	// Last is the final response received.
	Last *Response
}

// Collector runs collection loops against one API base URL.
type Collector struct {
	fetcher  Fetcher
	observer Observer
	baseURL  string
	sleep    Sleeper
	logger   zerolog.Logger
}

// NewCollector creates a collector. observer may be nil.
func NewCollector(fetcher Fetcher, observer Observer, baseURL string, logger zerolog.Logger) *Collector {
	return &Collector{
		fetcher:  fetcher,
		observer: observer,
		baseURL:  baseURL,
		sleep:    Sleep,
		logger:   logger,
	}
}

// SetSleeper replaces the throttle pause (for testing).
func (c *Collector) SetSleeper(s Sleeper) {
	c.sleep = s
}

// Collect retrieves up to cfg.MaxPages pages of ep for subject and returns
// them as one table. It stops early when a page has no cursor or a later page
// has no data. A usage-cap response is returned as an error wrapping
// ErrUsageCapExceeded; transport errors are returned as-is and never retried.
func (c *Collector) Collect(ctx context.Context, ep Endpoint, subject string, cfg Config) (*Result, error) {
	cfg = cfg.resolve(ep)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s options: %w", ep.Name, err)
	}

	logger := c.logger.With().Str("endpoint", ep.Name).Logger()

	var (
		pages  []*table.Table
		last   *Response
		cursor string
		issued int
	)

	for page := 0; page < cfg.MaxPages; page++ {
		// Step 1: Throttle between requests
		if page > 0 && cfg.Throttle {
			logger.Info().Dur("interval", cfg.ThrottleInterval).Int("page", page).Msg("Throttling before next page")
			throttleSleepsTotal.WithLabelValues(ep.Name).Inc()
			if err := c.sleep(ctx, cfg.ThrottleInterval); err != nil {
				return nil, fmt.Errorf("%s throttle: %w", ep.Name, err)
			}
		}

		// Step 2: Request the page
		target := ep.Target(c.baseURL, subject, cursor)
		logger.Debug().Int("page", page).Str("cursor", cursor).Msg("Requesting page")

		resp, err := c.fetcher.Fetch(ctx, ep.Name, target)
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", ep.Name, page, err)
		}
		issued++
		last = resp
		pagesFetchedTotal.WithLabelValues(ep.Name).Inc()

		// Step 3: Record rate-limit metadata for the call just made
		c.observe(ctx, logger, ep.Name, resp)

		// Step 4: Classify and accumulate
		step := Classify(ep.Name, resp, page == 0)
		switch step.Kind {
		case StepError:
			if errors.Is(step.Err, ErrUsageCapExceeded) {
				usageCapExceededTotal.Inc()
			}
			logger.Error().Err(step.Err).Int("page", page).Msg("Collection stopped")
			return nil, step.Err

		case StepExhausted:
			logger.Debug().Int("page", page).Msg("Page without data, collection exhausted")
			return c.finish(logger, ep, pages, issued, last), nil

		case StepPage:
			pages = append(pages, table.FromRecords(step.Records))
			logger.Debug().Int("page", page).Int("records", len(step.Records)).Msg("Page collected")

			if step.Cursor == "" {
				return c.finish(logger, ep, pages, issued, last), nil
			}
			cursor = step.Cursor
		}
	}

	logger.Debug().Int("max_pages", cfg.MaxPages).Msg("Page cap reached")
	return c.finish(logger, ep, pages, issued, last), nil
}

func (c *Collector) observe(ctx context.Context, logger zerolog.Logger, endpoint string, resp *Response) {
	if c.observer == nil {
		return
	}
	if _, err := c.observer.Observe(ctx, endpoint, resp.Header); err != nil {
		logger.Warn().Err(err).Msg("Rate limit not tracked for response")
	}
}

// finish concatenates pages and applies post-processing.
func (c *Collector) finish(logger zerolog.Logger, ep Endpoint, pages []*table.Table, issued int, last *Response) *Result {
	combined := table.Concat(pages...)
	result := &Result{Table: combined, Pages: issued, Last: last}

	if combined.Empty() {
		if last != nil && (len(last.Errors()) > 0 || !last.OK()) {
			result.Table = Diagnostic(last)
			result.Diagnostic = true
			logger.Warn().Int("status", last.StatusCode).Msg("No records, returning diagnostic table")
		}
		return result
	}

	if ep.ExpandColumn != "" {
		if err := combined.ExpandColumn(ep.ExpandColumn); err != nil {
			result.Table = Diagnostic(last)
			result.Diagnostic = true
			logger.Warn().Err(err).Msg("Post-processing failed, returning diagnostic table")
			return result
		}
	}

	logger.Info().Int("pages", issued).Int("records", combined.Len()).Msg("Collection complete")
	return result
}

// Diagnostic builds a table from a response's error payload, or from the
// whole body when it has no errors key.
func Diagnostic(resp *Response) *table.Table {
	if resp == nil {
		return table.New()
	}
	if errs := resp.Errors(); len(errs) > 0 {
		return table.FromRecords(errs)
	}
	if resp.Body != nil {
		return table.FromRecords([]map[string]any{resp.Body})
	}
	return table.FromRecords([]map[string]any{{
		"status": resp.StatusCode,
		"body":   string(resp.Raw),
	}})
}
