// Package ratelimit derives per-endpoint rate-limit snapshots from API
// response headers and keeps the session's rate-limit log.
// It reads the x-rate-limit-remaining, x-rate-limit-limit and
// x-rate-limit-reset headers returned with every API response.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Response headers carrying the per-endpoint quota.
const (
	HeaderRemaining = "x-rate-limit-remaining"
	HeaderLimit     = "x-rate-limit-limit"
	HeaderReset     = "x-rate-limit-reset"
)

// ClockLayout is the time-of-day format used for reset times.
const ClockLayout = "15:04:05"

var (
	// ErrMissingMetadata is returned when a rate-limit header is absent.
	// Callers decide whether that makes the request fatal or merely un-trackable.
	ErrMissingMetadata = errors.New("rate limit metadata missing")

	// ErrDivision is returned when the endpoint reports a limit of zero.
	ErrDivision = errors.New("rate limit is zero, percent remaining undefined")

	// ErrInvalidMetadata is returned for unparseable or inconsistent header values.
	ErrInvalidMetadata = errors.New("rate limit metadata invalid")
)

// Snapshot is the rate-limit state observed in one response.
// It is immutable once computed.
type Snapshot struct {
	// Remaining is the number of calls left in the current epoch.
	Remaining float64 `json:"remaining"`

	// Limit is the number of calls allowed per epoch.
	Limit float64 `json:"limit"`

	// ResetAt is the reset time-of-day placed on the calendar day of the check.
	// A reset that actually falls on the next day is not corrected, so
	// UntilReset can come out negative around midnight.
	ResetAt time.Time `json:"reset_at"`

	// PercentRemaining is floor(Remaining / Limit * 100).
	PercentRemaining int `json:"percent_remaining"`

	// UntilReset is ResetAt minus the check time truncated to whole seconds.
	UntilReset time.Duration `json:"until_reset"`

	// CheckedAt is when the snapshot was recorded in the log.
	CheckedAt time.Time `json:"checked_at"`
}

// Compute derives a Snapshot from response headers as seen at now.
func Compute(header http.Header, now time.Time) (Snapshot, error) {
	remaining, err := parseFloatHeader(header, HeaderRemaining)
	if err != nil {
		return Snapshot{}, err
	}

	limit, err := parseFloatHeader(header, HeaderLimit)
	if err != nil {
		return Snapshot{}, err
	}

	if limit == 0 {
		return Snapshot{}, fmt.Errorf("%w (remaining %v)", ErrDivision, remaining)
	}
	if limit < 0 || remaining < 0 || remaining > limit {
		return Snapshot{}, fmt.Errorf("%w: remaining %v, limit %v", ErrInvalidMetadata, remaining, limit)
	}

	percent := int(math.Floor(remaining / limit * 100))

	resetStr := strings.TrimSpace(header.Get(HeaderReset))
	if resetStr == "" {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrMissingMetadata, HeaderReset)
	}
	epoch, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidMetadata, HeaderReset, err)
	}

	loc := now.Location()
	reset := time.Unix(epoch, 0).In(loc)
	resetAt := time.Date(now.Year(), now.Month(), now.Day(), reset.Hour(), reset.Minute(), reset.Second(), 0, loc)
	nowClock := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), 0, loc)

	return Snapshot{
		Remaining:        remaining,
		Limit:            limit,
		ResetAt:          resetAt,
		PercentRemaining: percent,
		UntilReset:       resetAt.Sub(nowClock),
	}, nil
}

func parseFloatHeader(header http.Header, name string) (float64, error) {
	raw := strings.TrimSpace(header.Get(name))
	if raw == "" {
		return 0, fmt.Errorf("%w: %s", ErrMissingMetadata, name)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", ErrInvalidMetadata, name, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s is %v", ErrInvalidMetadata, name, v)
	}

	return v, nil
}

// ResetClock returns the reset time formatted as HH:MM:SS.
func (s Snapshot) ResetClock() string {
	return s.ResetAt.Format(ClockLayout)
}

// Delta is the percentage of the quota already spent, as a negative number.
// The dashboard shows it as the change next to PercentRemaining.
func (s Snapshot) Delta() int {
	return s.PercentRemaining - 100
}

// Exhausted reports whether no calls remain in the current epoch.
func (s Snapshot) Exhausted() bool {
	return s.Remaining <= 0
}
