// Package testutil provides testing utilities for the web-tools API client.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock API endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock v2 API server for testing.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	Requests          []string
}

// NewMockAPI creates a new mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.Requests = append(mock.Requests, r.URL.RequestURI())
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.Requests = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// Page is one scripted page of a paged endpoint.
type Page struct {
	Records []map[string]any
	// NextToken is returned in meta.next_token when non-empty.
	NextToken string
}

// SetPages serves pages in order for path: the first request without a
// pagination_token gets pages[0], a request with token T gets the page that
// follows the one whose NextToken is T. Every page carries rate-limit headers
// counting down from remaining.
func (m *MockAPI) SetPages(path string, remaining int, pages ...Page) {
	byToken := make(map[string]int, len(pages))
	for i, p := range pages {
		if p.NextToken != "" {
			byToken[p.NextToken] = i + 1
		}
	}

	var mu sync.Mutex
	left := remaining

	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		idx := 0
		if token := r.URL.Query().Get("pagination_token"); token != "" {
			next, ok := byToken[token]
			if !ok || next >= len(pages) {
				WriteJSON(w, http.StatusBadRequest, map[string]any{
					"errors": []any{map[string]any{"message": "invalid pagination_token"}},
				})
				return
			}
			idx = next
		}

		mu.Lock()
		SetRateLimitHeaders(w, left, remaining, 15*time.Minute)
		if left > 0 {
			left--
		}
		mu.Unlock()

		p := pages[idx]
		meta := map[string]any{"result_count": len(p.Records)}
		if p.NextToken != "" {
			meta["next_token"] = p.NextToken
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": p.Records, "meta": meta})
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastRequestHeader returns the headers of the latest request.
func (m *MockAPI) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// GetRequests returns the request URIs received so far.
func (m *MockAPI) GetRequests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Requests...)
}

// defaultHandler answers unknown paths like the API does.
func (m *MockAPI) defaultHandler(w http.ResponseWriter, r *http.Request) {
	SetRateLimitHeaders(w, 100, 100, 15*time.Minute)
	WriteJSON(w, http.StatusNotFound, map[string]any{
		"title":  "Not Found Error",
		"detail": "Sorry, that page does not exist.",
		"type":   "about:blank",
		"status": http.StatusNotFound,
	})
}

// SetRateLimitHeaders writes the x-rate-limit-* headers with a reset time
// resetIn from now.
func SetRateLimitHeaders(w http.ResponseWriter, remaining, limit int, resetIn time.Duration) {
	w.Header().Set("x-rate-limit-remaining", strconv.Itoa(remaining))
	w.Header().Set("x-rate-limit-limit", strconv.Itoa(limit))
	w.Header().Set("x-rate-limit-reset", strconv.FormatInt(time.Now().Add(resetIn).Unix(), 10))
}

// WriteJSON writes body as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Records builds n tweet-shaped records with ids starting at offset.
func Records(offset, n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		id := strconv.Itoa(offset + i)
		out[i] = map[string]any{
			"id":         id,
			"text":       "tweet " + id,
			"created_at": "2022-11-01T12:00:00.000Z",
			"public_metrics": map[string]any{
				"retweet_count": 1,
				"reply_count":   2,
				"like_count":    3,
				"quote_count":   0,
			},
		}
	}
	return out
}

// Users builds n user-shaped records with ids starting at offset.
func Users(offset, n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		id := strconv.Itoa(offset + i)
		out[i] = map[string]any{
			"id":       id,
			"name":     "User " + id,
			"username": "user" + id,
			"public_metrics": map[string]any{
				"followers_count": 10,
				"following_count": 20,
				"tweet_count":     30,
				"listed_count":    1,
			},
		}
	}
	return out
}

// NewProfileResponse creates a user lookup response for username.
func NewProfileResponse(id, username string) MockResponse {
	body, _ := json.Marshal(map[string]any{
		"data": map[string]any{
			"id":                id,
			"name":              "Test " + username,
			"username":          username,
			"description":       "test account",
			"profile_image_url": "https://pbs.example.test/" + id + ".jpg",
			"public_metrics": map[string]any{
				"followers_count": 100,
				"following_count": 50,
				"tweet_count":     1000,
				"listed_count":    5,
			},
		},
	})
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers:    rateHeaders(899, 900),
	}
}

// NewUsageCapResponse creates the account-level quota exhaustion response.
func NewUsageCapResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body: `{"title":"UsageCapExceeded","detail":"Usage cap exceeded: Monthly product cap",` +
			`"type":"https://api.twitter.com/2/problems/usage-capped","period":"Monthly","scope":"Product"}`,
		Headers: rateHeaders(0, 1500),
	}
}

// NewUnauthorizedResponse creates a 401 response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"title":"Unauthorized","type":"about:blank","status":401,"detail":"Unauthorized"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

func rateHeaders(remaining, limit int) map[string]string {
	return map[string]string{
		"x-rate-limit-remaining": strconv.Itoa(remaining),
		"x-rate-limit-limit":     strconv.Itoa(limit),
		"x-rate-limit-reset":     strconv.FormatInt(time.Now().Add(15*time.Minute).Unix(), 10),
		"Content-Type":           "application/json; charset=utf-8",
	}
}
