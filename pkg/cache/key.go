package cache

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Key identifies a cached request. Only GET requests are stored, so the
// key is effectively the normalised URL.
type Key struct {
	// Method is the upper-cased request method
	Method string

	// URL is the absolute request URL without fragment
	URL string
}

// NewKey builds a key from a method and an absolute URL.
func NewKey(method, rawURL string) (Key, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Key{}, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if !u.IsAbs() {
		return Key{}, fmt.Errorf("url %q is not absolute", rawURL)
	}
	return keyFromURL(method, u), nil
}

// KeyFor returns the key for an outgoing request. The request URL must be
// absolute.
func KeyFor(req *http.Request) Key {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	return keyFromURL(method, req.URL)
}

func keyFromURL(method string, u *url.URL) Key {
	n := *u
	n.Fragment = ""
	n.RawFragment = ""
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	if n.Path == "" {
		n.Path = "/"
	}
	return Key{Method: strings.ToUpper(method), URL: n.String()}
}

// String generates a deterministic key string.
// Format: METHOD URL
//
// Example:
//
//	GET https://jsonplaceholder.typicode.com/posts
func (k Key) String() string {
	return k.Method + " " + k.URL
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	method, u, ok := strings.Cut(s, " ")
	if !ok || method == "" || u == "" {
		return Key{}, fmt.Errorf("%w: malformed key %q", ErrInvalidEntry, s)
	}
	return Key{Method: method, URL: u}, nil
}
