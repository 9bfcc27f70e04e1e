package worker

import (
	"bytes"
	"io"
	"net/http"
)

// OfflineBody is the body of the synthetic offline response.
const OfflineBody = `{"error":"Offline","message":"No cached data available"}`

// OfflineHeader marks API responses served from the cache after a failed
// network attempt.
const OfflineHeader = "X-Offline-Cache"

// OfflineResponse builds the synthetic 503 returned when an API request
// fails and nothing is cached.
func OfflineResponse(req *http.Request) *http.Response {
	body := []byte(OfflineBody)
	return &http.Response{
		Status:     "503 Service Unavailable",
		StatusCode: http.StatusServiceUnavailable,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header: http.Header{
			"Content-Type": []string{"application/json"},
		},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
