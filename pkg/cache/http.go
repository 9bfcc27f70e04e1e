package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Cacheable reports whether a response status may be stored. Partial
// content is never stored.
func Cacheable(status int) bool {
	return status >= 200 && status < 300 && status != http.StatusPartialContent
}

// Snapshot reads the single-use response body exactly once and splits it
// into two independent copies: the returned entry, and a fresh body that
// replaces resp.Body for the caller. The original body is closed.
func Snapshot(req *http.Request, resp *http.Response) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	resp.Body = io.NopCloser(bytes.NewReader(bytes.Clone(body)))
	resp.ContentLength = int64(len(body))

	if req == nil {
		req = resp.Request
	}
	if req == nil || req.URL == nil {
		return nil, fmt.Errorf("response has no request")
	}

	header := resp.Header.Clone()
	header.Del("Content-Length")
	return NewEntry(KeyFor(req), resp.StatusCode, statusText(resp), header, body), nil
}

// EntryToResponse converts a cache entry back into an HTTP response with its
// own body copy.
func EntryToResponse(entry *Entry, req *http.Request) *http.Response {
	text := entry.StatusText
	if text == "" {
		text = http.StatusText(entry.Status)
	}
	body := bytes.Clone(entry.Body)
	header := entry.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", entry.Status, text),
		StatusCode:    entry.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// statusText extracts the reason phrase from resp.Status ("200 OK" -> "OK").
func statusText(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); text != "" && text != resp.Status {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
