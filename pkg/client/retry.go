package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var schemeFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "webtools_scheme_fallbacks_total",
	Help: "Total request targets corrected to https before sending",
})

// get sends the request for target. A target without an http(s) scheme is
// corrected once to https and sent again; every other failure is returned
// as-is. Transient failures are not retried.
func (s *Session) get(ctx context.Context, endpoint, target string) (*http.Response, error) {
	resp, err := s.do(ctx, target)
	if err == nil || !errors.Is(err, ErrMissingScheme) {
		return resp, err
	}

	fixed := withScheme(target)
	schemeFallbacksTotal.Inc()
	s.logger.Warn().
		Str("endpoint", endpoint).
		Str("target", fixed).
		Msg("Request target has no scheme, retrying with https")

	return s.do(ctx, fixed)
}

// do sends one authenticated GET.
func (s *Session) do(ctx context.Context, target string) (*http.Response, error) {
	if !hasScheme(target) {
		return nil, fmt.Errorf("%w: %s", ErrMissingScheme, target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	return resp, nil
}

func hasScheme(target string) bool {
	lower := strings.ToLower(target)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func withScheme(target string) string {
	return "https://" + strings.TrimPrefix(target, "//")
}
