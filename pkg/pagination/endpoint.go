package pagination

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultThrottleInterval is the pause between requests when throttling:
// just under one rate-limit epoch step.
const DefaultThrottleInterval = 59 * time.Second

// DefaultCursorParam is the query parameter carrying the continuation cursor.
const DefaultCursorParam = "pagination_token"

// Endpoint is a request template for one collection endpoint.
type Endpoint struct {
	// Name keys the rate-limit log and metrics (e.g. "user_tweets").
	Name string

	// Path is the request path. A single %s is replaced by the escaped subject.
	Path string

	// Query holds the fixed query parameters.
	Query url.Values

	// SubjectParam, when set, carries the subject as a query parameter
	// instead of a path segment.
	SubjectParam string

	// CursorParam names the cursor parameter (default pagination_token).
	CursorParam string

	// DefaultMaxPages caps the page count when the caller does not.
	DefaultMaxPages int

	// ExpandColumn names an object-valued column expanded after collection.
	ExpandColumn string
}

// Target builds the full request target for subject and, for pages after
// the first, a continuation cursor.
func (e Endpoint) Target(base, subject, cursor string) string {
	path := e.Path
	if strings.Contains(path, "%s") {
		path = fmt.Sprintf(path, url.PathEscape(subject))
	}

	q := url.Values{}
	for k, vs := range e.Query {
		q[k] = append([]string(nil), vs...)
	}
	if e.SubjectParam != "" {
		q.Set(e.SubjectParam, subject)
	}
	if cursor != "" {
		param := e.CursorParam
		if param == "" {
			param = DefaultCursorParam
		}
		q.Set(param, cursor)
	}

	target := strings.TrimRight(base, "/") + path
	if encoded := q.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return target
}

// Config holds the recognized per-call options.
type Config struct {
	// MaxPages caps the number of requests. Zero selects the endpoint default.
	MaxPages int `mapstructure:"max_pages" yaml:"max_pages"`

	// Throttle pauses ThrottleInterval between requests.
	Throttle bool `mapstructure:"throttle" yaml:"throttle"`

	// ThrottleInterval overrides DefaultThrottleInterval.
	ThrottleInterval time.Duration `mapstructure:"throttle_interval" yaml:"throttle_interval,omitempty"`
}

// DefaultConfig returns the endpoint's default options.
func DefaultConfig(e Endpoint) Config {
	return Config{
		MaxPages:         e.DefaultMaxPages,
		ThrottleInterval: DefaultThrottleInterval,
	}
}

// resolve fills zero fields from the endpoint defaults.
func (c Config) resolve(e Endpoint) Config {
	if c.MaxPages == 0 {
		c.MaxPages = e.DefaultMaxPages
	}
	if c.ThrottleInterval == 0 {
		c.ThrottleInterval = DefaultThrottleInterval
	}
	return c
}

// Validate rejects option values the loop cannot honor.
func (c Config) Validate() error {
	if c.MaxPages < 1 {
		return fmt.Errorf("max_pages must be >= 1 (got %d)", c.MaxPages)
	}
	if c.ThrottleInterval < 0 {
		return fmt.Errorf("throttle_interval must not be negative (got %s)", c.ThrottleInterval)
	}
	return nil
}
