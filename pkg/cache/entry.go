package cache

import (
	"bytes"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Entry is an immutable snapshot of a cached response.
type Entry struct {
	// URL is the normalised request URL the entry was stored under
	URL string `json:"url"`

	// Method is the request method (always GET for stored entries)
	Method string `json:"method"`

	// Status is the HTTP status code of the cached response
	Status int `json:"status"`

	// StatusText is the reason phrase (e.g. "OK")
	StatusText string `json:"status_text"`

	// Header are the response headers
	Header http.Header `json:"header"`

	// Body is the complete response body
	Body []byte `json:"body"`

	// Digest is the xxhash64 of Body
	Digest uint64 `json:"digest"`

	// StoredAt is when the snapshot was taken
	StoredAt time.Time `json:"stored_at"`
}

// NewEntry builds an entry owning private copies of header and body.
func NewEntry(key Key, status int, statusText string, header http.Header, body []byte) *Entry {
	b := bytes.Clone(body)
	if b == nil {
		b = []byte{}
	}
	if header == nil {
		header = http.Header{}
	}
	return &Entry{
		URL:        key.URL,
		Method:     key.Method,
		Status:     status,
		StatusText: statusText,
		Header:     header.Clone(),
		Body:       b,
		Digest:     xxhash.Sum64(b),
		StoredAt:   time.Now().UTC(),
	}
}

// Clone returns a deep copy, so callers can never mutate a stored entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	out.Header = e.Header.Clone()
	out.Body = bytes.Clone(e.Body)
	if out.Body == nil {
		out.Body = []byte{}
	}
	return &out
}

// Key returns the cache key the entry was stored under.
func (e *Entry) Key() Key {
	return Key{Method: e.Method, URL: e.URL}
}

// Verify reports whether Body still hashes to Digest.
func (e *Entry) Verify() bool {
	return xxhash.Sum64(e.Body) == e.Digest
}
