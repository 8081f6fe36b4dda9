// Package testutil provides testing utilities for the upstream market-data client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Upstream paths served by the mock.
const (
	PathQuotesLatest = "/v2/cryptocurrency/quotes/latest"
	PathInfo         = "/v2/cryptocurrency/info"
	PathFiatRates    = "/v1/fiat/rates"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockQuote is the fixture the default quotes handler serves for an id.
type MockQuote struct {
	Price             float64
	PercentChange1h   float64
	PercentChange24h  float64
	PercentChange7d   float64
	MarketCap         float64
	Volume24h         float64
	VolumeChange24h   float64
	CirculatingSupply float64
}

// MockCMC is a configurable mock upstream server for testing.
type MockCMC struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	quotes   map[int64]MockQuote
	fiat     map[string]float64
	delay    time.Duration

	// Tracking
	RequestCount      int
	PathCounts        map[string]int
	LastRequestHeader http.Header
}

// NewMockCMC creates a new mock upstream server.
func NewMockCMC() *MockCMC {
	mock := &MockCMC{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		quotes:     make(map[int64]MockQuote),
		fiat:       map[string]float64{"EUR": 0.92},
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		delay := mock.delay
		mock.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCMC) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCMC) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCMC) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCMC) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockCMC) SetResponse(path string, resp MockResponse) {
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

// SetDelay delays every response by d.
func (m *MockCMC) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetQuote registers the quote served for id by the default quotes handler.
func (m *MockCMC) SetQuote(id int64, q MockQuote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[id] = q
}

// SetFiatRate registers a fiat multiplier served by the default fiat handler.
func (m *MockCMC) SetFiatRate(code string, multiplier float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fiat[code] = multiplier
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCMC) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockCMC) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// GetLastHeader returns a header value of the most recent request.
func (m *MockCMC) GetLastHeader(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.LastRequestHeader == nil {
		return ""
	}
	return m.LastRequestHeader.Get(key)
}

// defaultHandler serves the registered fixtures in the upstream's response shape.
func (m *MockCMC) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	switch r.URL.Path {
	case PathQuotesLatest:
		m.mu.RLock()
		data := make(map[string]any)
		for _, id := range parseIDs(r.URL.Query().Get("id")) {
			if q, ok := m.quotes[id]; ok {
				data[strconv.FormatInt(id, 10)] = quotePayload(id, q)
			}
		}
		m.mu.RUnlock()
		writeEnvelope(w, data, 1)

	case PathInfo:
		m.mu.RLock()
		data := make(map[string]any)
		for _, id := range parseIDs(r.URL.Query().Get("id")) {
			if q, ok := m.quotes[id]; ok {
				data[strconv.FormatInt(id, 10)] = map[string]any{
					"id":                               id,
					"self_reported_circulating_supply": q.CirculatingSupply,
					"self_reported_market_cap":         q.MarketCap,
				}
			}
		}
		m.mu.RUnlock()
		writeEnvelope(w, data, 1)

	case PathFiatRates:
		m.mu.RLock()
		data := make(map[string]float64, len(m.fiat))
		for k, v := range m.fiat {
			data[k] = v
		}
		m.mu.RUnlock()
		writeEnvelope(w, data, 1)

	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":{"error_code":404,"error_message":"not found"}}`))
	}
}

func parseIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func quotePayload(id int64, q MockQuote) map[string]any {
	return map[string]any{
		"id":                 id,
		"circulating_supply": q.CirculatingSupply,
		"quote": map[string]any{
			"USD": map[string]any{
				"price":              q.Price,
				"volume_24h":         q.Volume24h,
				"volume_change_24h":  q.VolumeChange24h,
				"percent_change_1h":  q.PercentChange1h,
				"percent_change_24h": q.PercentChange24h,
				"percent_change_7d":  q.PercentChange7d,
				"market_cap":         q.MarketCap,
				"last_updated":       time.Now().UTC().Format(time.RFC3339),
			},
		},
	}
}

func writeEnvelope(w http.ResponseWriter, data any, credits int) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status": map[string]any{
			"error_code":   0,
			"credit_count": credits,
			"timestamp":    time.Now().UTC().Format(time.RFC3339),
		},
		"data": data,
	})
}

// NewHealthyResponse creates a 200 OK response wrapping data in the upstream envelope.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"status":{"error_code":0,"credit_count":1},"data":%s}`, data),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"status":{"error_code":1008,"error_message":"You've exceeded your API Key's HTTP request rate limit."}}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfter),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"status":{"error_code":500,"error_message":"Internal server error"}}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewBadRequestResponse creates a 400 response with an upstream error message.
func NewBadRequestResponse(msg string) MockResponse {
	body, _ := json.Marshal(map[string]any{
		"status": map[string]any{"error_code": 400, "error_message": msg},
	})
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
