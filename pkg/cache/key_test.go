package cache

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewKey(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		url     string
		want    string
		wantErr bool
	}{
		{
			name:   "plain url",
			method: "GET",
			url:    "https://jsonplaceholder.typicode.com/posts",
			want:   "GET https://jsonplaceholder.typicode.com/posts",
		},
		{
			name:   "fragment dropped",
			method: "get",
			url:    "https://example.com/index.html#posts",
			want:   "GET https://example.com/index.html",
		},
		{
			name:   "host lower-cased",
			method: "GET",
			url:    "HTTPS://Example.COM/Style.css",
			want:   "GET https://example.com/Style.css",
		},
		{
			name:   "empty path becomes root",
			method: "GET",
			url:    "https://example.com",
			want:   "GET https://example.com/",
		},
		{
			name:   "query kept",
			method: "GET",
			url:    "https://example.com/posts?userId=1",
			want:   "GET https://example.com/posts?userId=1",
		},
		{
			name:    "relative url rejected",
			method:  "GET",
			url:     "/posts",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewKey(tt.method, tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.String() != tt.want {
				t.Errorf("NewKey().String() = %q, want %q", got.String(), tt.want)
			}
		})
	}
}

func TestKeyFor_MatchesNewKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://example.com/main.js", nil)
	want, err := NewKey(http.MethodGet, "https://example.com/main.js")
	if err != nil {
		t.Fatal(err)
	}
	if got := KeyFor(req); got != want {
		t.Errorf("KeyFor() = %v, want %v", got, want)
	}
}

func TestParseKey(t *testing.T) {
	key := Key{Method: "GET", URL: "https://example.com/a b"}
	parsed, err := ParseKey(key.String())
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if parsed != key {
		t.Errorf("ParseKey() = %v, want %v", parsed, key)
	}

	if _, err := ParseKey("garbage"); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("ParseKey(garbage) error = %v, want ErrInvalidEntry", err)
	}
}
