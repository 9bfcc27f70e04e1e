// Package testutil provides test servers for the offline worker.
package testutil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrOffline is returned by Network while it is switched offline.
var ErrOffline = errors.New("testutil: network offline")

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockOrigin is a configurable origin serving shell assets and API data.
type MockOrigin struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	counts   map[string]int
	offline  bool
}

// ShellAssets are the paths served by NewShellOrigin.
var ShellAssets = []string{"/", "/index.html", "/style.css", "/main.js", "/manifest.json"}

// PostsJSON is the default body of the /posts endpoint.
const PostsJSON = `[{"userId":1,"id":1,"title":"first","body":"hello"},{"userId":1,"id":2,"title":"second","body":"world"}]`

// NewMockOrigin creates an origin with no routes; unknown paths get 404.
func NewMockOrigin() *MockOrigin {
	mock := &MockOrigin{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		counts:   make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.counts[r.URL.Path]++
		offline := mock.offline
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if offline {
			dropConnection(w)
			return
		}
		if exists {
			handler(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	return mock
}

// NewShellOrigin creates an origin serving every ShellAssets path and
// /posts.
func NewShellOrigin() *MockOrigin {
	mock := NewMockOrigin()
	for _, p := range ShellAssets {
		mock.SetResponse(p, NewAssetResponse(p))
	}
	mock.SetResponse("/posts", NewJSONResponse(PostsJSON))
	return mock
}

// URL returns the origin base URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// Client returns an HTTP client for the origin.
func (m *MockOrigin) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the origin.
func (m *MockOrigin) Close() {
	m.server.Close()
}

// Reset clears request counters.
func (m *MockOrigin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[string]int)
}

// SetOffline makes the origin drop every connection without a response.
func (m *MockOrigin) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// SetHandler sets a custom handler for a specific path.
func (m *MockOrigin) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockOrigin) SetResponse(path string, resp MockResponse) {
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

// RequestCount returns the number of requests received for path.
func (m *MockOrigin) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[path]
}

// TotalRequests returns the number of requests received for all paths.
func (m *MockOrigin) TotalRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.counts {
		total += n
	}
	return total
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("testutil: response writer does not support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewAssetResponse creates a 200 OK response whose body names the asset.
func NewAssetResponse(path string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       "asset " + path,
		Headers:    map[string]string{"Content-Type": contentType(path)},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

func contentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".css"):
		return "text/css"
	case strings.HasSuffix(path, ".js"):
		return "text/javascript"
	case strings.HasSuffix(path, ".json"):
		return "application/manifest+json"
	default:
		return "text/html; charset=utf-8"
	}
}

// Network is a Fetcher that can be switched offline. While offline every
// request fails with ErrOffline without reaching the wrapped client.
type Network struct {
	Client  *http.Client
	offline atomic.Bool
	calls   atomic.Int64
}

// NewNetwork wraps client.
func NewNetwork(client *http.Client) *Network {
	if client == nil {
		client = &http.Client{}
	}
	return &Network{Client: client}
}

// SetOffline switches the network on or off.
func (n *Network) SetOffline(offline bool) {
	n.offline.Store(offline)
}

// Calls returns the number of requests attempted, including failed ones.
func (n *Network) Calls() int {
	return int(n.calls.Load())
}

// Do implements the worker's fetcher interface.
func (n *Network) Do(req *http.Request) (*http.Response, error) {
	n.calls.Add(1)
	if n.offline.Load() {
		return nil, ErrOffline
	}
	return n.Client.Do(req)
}
