package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis keys for the mirrored rate-limit log.
const (
	RedisKeyPrefix    = "webtools:rate_limit:"
	RedisKeyEndpoints = "webtools:rate_limit:endpoints"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "webtools_rate_limit_remaining",
		Help: "Calls remaining in the current rate limit epoch by endpoint",
	}, []string{"endpoint"})

	rateLimitLimit = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "webtools_rate_limit_limit",
		Help: "Calls allowed per rate limit epoch by endpoint",
	}, []string{"endpoint"})

	rateLimitPercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "webtools_rate_limit_percent_remaining",
		Help: "Percent of the rate limit epoch quota remaining by endpoint",
	}, []string{"endpoint"})
)

// Tracker keeps the rate-limit log: the last snapshot observed per endpoint.
// A Tracker belongs to one session and is not safe for concurrent use.
type Tracker struct {
	log    map[string]Snapshot
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker. redisClient may be nil, in which case the
// log lives only in memory.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		log:    make(map[string]Snapshot),
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the wall clock used to stamp snapshots (for testing).
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Observe computes a snapshot from response headers and records it under
// endpoint. On error the log is left untouched.
func (t *Tracker) Observe(ctx context.Context, endpoint string, header http.Header) (Snapshot, error) {
	now := t.now()

	snap, err := Compute(header, now)
	if err != nil {
		return Snapshot{}, fmt.Errorf("compute %s snapshot: %w", endpoint, err)
	}
	snap.CheckedAt = now

	t.log[endpoint] = snap

	rateLimitRemaining.WithLabelValues(endpoint).Set(snap.Remaining)
	rateLimitLimit.WithLabelValues(endpoint).Set(snap.Limit)
	rateLimitPercent.WithLabelValues(endpoint).Set(float64(snap.PercentRemaining))

	logEvent := t.logger.Info()
	if snap.Exhausted() {
		logEvent = t.logger.Warn()
	}
	logEvent.
		Str("endpoint", endpoint).
		Float64("remaining", snap.Remaining).
		Float64("limit", snap.Limit).
		Int("percent_remaining", snap.PercentRemaining).
		Str("reset", snap.ResetClock()).
		Dur("until_reset", snap.UntilReset).
		Msg("Rate limit snapshot recorded")

	if t.redis != nil {
		if err := t.mirror(ctx, endpoint, snap); err != nil {
			t.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to mirror rate limit snapshot")
		}
	}

	return snap, nil
}

// mirror publishes a snapshot to redis so a separate dashboard process can show it.
func (t *Tracker) mirror(ctx context.Context, endpoint string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyPrefix+endpoint, data, 0)
	pipe.SAdd(ctx, RedisKeyEndpoints, endpoint)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store snapshot in redis: %w", err)
	}

	return nil
}

// Get returns the last snapshot recorded for endpoint.
func (t *Tracker) Get(endpoint string) (Snapshot, bool) {
	snap, ok := t.log[endpoint]
	return snap, ok
}

// Log returns a copy of the rate-limit log.
func (t *Tracker) Log() map[string]Snapshot {
	out := make(map[string]Snapshot, len(t.log))
	for k, v := range t.log {
		out[k] = v
	}
	return out
}

// Endpoints returns the logged endpoint names in sorted order.
func (t *Tracker) Endpoints() []string {
	names := make([]string, 0, len(t.log))
	for k := range t.log {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// LoadMirrored reads every snapshot mirrored to redis by a Tracker.
func LoadMirrored(ctx context.Context, redisClient *redis.Client) (map[string]Snapshot, error) {
	endpoints, err := redisClient.SMembers(ctx, RedisKeyEndpoints).Result()
	if err != nil {
		return nil, fmt.Errorf("list mirrored endpoints: %w", err)
	}

	out := make(map[string]Snapshot, len(endpoints))
	for _, endpoint := range endpoints {
		data, err := redisClient.Get(ctx, RedisKeyPrefix+endpoint).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get %s snapshot: %w", endpoint, err)
		}

		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("parse %s snapshot: %w", endpoint, err)
		}
		out[endpoint] = snap
	}

	return out, nil
}
