// Package testutil provides a mock artworks API for tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/artsel/pkg/artwork"
)

// ArtworksPath is the collection path served by the mock.
const ArtworksPath = "/api/v1/artworks"

// MockResponse defines a canned response for one page.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockArtworks is a configurable mock of the paginated artworks API.
type MockArtworks struct {
	server  *httptest.Server
	mu      sync.RWMutex
	records []artwork.Artwork
	pages   map[int]MockResponse
	maxAge  int

	// Tracking
	RequestCount      int
	ConditionalCount  int
	PageRequests      map[int]int
	LastRequestHeader http.Header
}

// NewMockArtworks serves total generated records, ids 1..total.
func NewMockArtworks(total int) *MockArtworks {
	mock := &MockArtworks{
		records:      GenerateArtworks(total),
		pages:        make(map[int]MockResponse),
		PageRequests: make(map[int]int),
		maxAge:       300,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ArtworksPath {
			http.NotFound(w, r)
			return
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}

		mock.mu.Lock()
		mock.RequestCount++
		mock.PageRequests[page]++
		mock.LastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		canned, hasCanned := mock.pages[page]
		mock.mu.Unlock()

		if hasCanned {
			writeCanned(w, canned)
			return
		}
		mock.servePage(w, r, page)
	}))

	return mock
}

// GenerateArtworks builds n records with ids 1..n. Every third record has no
// inscriptions and no end date, so "N/A" rendering gets exercised.
func GenerateArtworks(n int) []artwork.Artwork {
	out := make([]artwork.Artwork, n)
	for i := range out {
		id := i + 1
		start := 1800 + id%200
		a := artwork.Artwork{
			ID:            id,
			Title:         fmt.Sprintf("Artwork %d", id),
			PlaceOfOrigin: []string{"France", "Japan", "United States", "Italy"}[id%4],
			ArtistDisplay: fmt.Sprintf("Artist %d", id%17),
			DateStart:     &start,
		}
		if id%3 != 0 {
			end := start + 2
			a.DateEnd = &end
			a.Inscriptions = fmt.Sprintf("signed lower right %d", id)
		}
		out[i] = a
	}
	return out
}

// URL returns the mock server URL.
func (m *MockArtworks) URL() string {
	return m.server.URL
}

// BaseURL returns the artworks collection URL.
func (m *MockArtworks) BaseURL() string {
	return m.server.URL + ArtworksPath
}

// Close shuts down the mock server.
func (m *MockArtworks) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockArtworks) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.PageRequests = make(map[int]int)
	m.LastRequestHeader = nil
}

// SetPageResponse overrides the response of page n.
func (m *MockArtworks) SetPageResponse(n int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[n] = resp
}

// ClearPageResponse restores the generated response of page n.
func (m *MockArtworks) ClearPageResponse(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, n)
}

// SetMaxAge sets the Cache-Control max-age of generated pages.
func (m *MockArtworks) SetMaxAge(seconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxAge = seconds
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockArtworks) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockArtworks) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetPageRequests returns how often page n was requested.
func (m *MockArtworks) GetPageRequests(n int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PageRequests[n]
}

func (m *MockArtworks) servePage(w http.ResponseWriter, r *http.Request, page int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = 12
	}

	m.mu.RLock()
	total := len(m.records)
	from := (page - 1) * limit
	to := from + limit
	if from > total {
		from = total
	}
	if to > total {
		to = total
	}
	records := append([]artwork.Artwork(nil), m.records[from:to]...)
	maxAge := m.maxAge
	m.mu.RUnlock()

	etag := fmt.Sprintf(`"page-%d-limit-%d"`, page, limit)

	w.Header().Set("X-RateLimit-Remaining", "100")
	w.Header().Set("X-RateLimit-Reset", "60")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", maxAge))
	w.Header().Set("ETag", etag)

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	body, err := artwork.Encode(records, page, limit, total)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeCanned(w http.ResponseWriter, resp MockResponse) {
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
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfter),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewMalformedResponse creates a 200 response without the pagination block.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data": []}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
