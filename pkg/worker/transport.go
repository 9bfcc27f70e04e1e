package worker

import "net/http"

// Transport is an http.RoundTripper that routes requests through a worker
// or registration, so a plain *http.Client gains offline behaviour.
//
//	client := &http.Client{Transport: worker.NewTransport(reg)}
type Transport struct {
	Fetcher Fetcher
}

// NewTransport wraps f.
func NewTransport(f Fetcher) *Transport {
	return &Transport{Fetcher: f}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.Fetcher.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.Request == nil {
		resp.Request = req
	}
	return resp, nil
}
