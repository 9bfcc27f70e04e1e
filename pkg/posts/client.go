// Package posts is the page-side consumer of the posts API. Pair it with
// worker.Transport to read posts through the offline worker.
package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the public posts API.
const DefaultBaseURL = "https://jsonplaceholder.typicode.com"

// Post is one item of the posts collection.
type Post struct {
	UserID int    `json:"userId"`
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// StatusError is returned for any non-OK response other than the offline
// answer.
type StatusError struct {
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// OfflineError is returned when the worker answered with its synthetic
// offline response: no network and nothing cached.
type OfflineError struct {
	Message string
}

// Error implements the error interface.
func (e *OfflineError) Error() string {
	if e.Message == "" {
		return "offline"
	}
	return "offline: " + e.Message
}

// IsOffline reports whether err is an *OfflineError.
func IsOffline(err error) bool {
	var oe *OfflineError
	return errors.As(err, &oe)
}

// Client lists posts.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

// NewClient creates a client for baseURL. A nil httpClient uses
// http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     log.With().Str("component", "posts-client").Logger(),
	}
}

// List fetches the posts collection. Responses replayed from the worker cache
// are decoded like live ones.
func (c *Client) List(ctx context.Context) ([]Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/posts", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusServiceUnavailable {
			if oe := decodeOffline(resp.Body); oe != nil {
				return nil, oe
			}
		}
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var posts []Post
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}

	c.logger.Debug().
		Int("count", len(posts)).
		Bool("cached", resp.Header.Get("X-Offline-Cache") != "").
		Msg("Loaded posts")
	return posts, nil
}

func decodeOffline(body io.Reader) *OfflineError {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil || payload.Error != "Offline" {
		return nil
	}
	return &OfflineError{Message: payload.Message}
}
