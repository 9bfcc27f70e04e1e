package worker

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/pwa-posts-offline/pkg/batch"
)

// Common errors returned by the worker.
var (
	// ErrInvalidState is returned when a lifecycle step runs out of order.
	ErrInvalidState = errors.New("invalid worker state")

	errFenced = fmt.Errorf("%w: worker superseded", ErrInvalidState)
)

// ErrorKind classifies fetch failures.
type ErrorKind string

const (
	// KindNetwork represents connection, DNS and body read failures.
	KindNetwork ErrorKind = "network"

	// KindHTTP represents a non-success status; for caching purposes it is
	// handled exactly like a network failure.
	KindHTTP ErrorKind = "http"
)

// FetchError describes a failed network attempt.
type FetchError struct {
	Kind   ErrorKind
	URL    string
	Status int
	Err    error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: network failure: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: network failure", e.URL)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// InstallError is returned when a shell asset cannot be pre-cached. The
// worker version that produced it is discarded.
type InstallError struct {
	Asset string
	Err   error
}

// Error implements the error interface.
func (e *InstallError) Error() string {
	if e.Asset == "" {
		return fmt.Sprintf("install failed: %v", e.Err)
	}
	return fmt.Sprintf("install failed: asset %s: %v", e.Asset, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *InstallError) Unwrap() error {
	return e.Err
}

// toFetchError maps a batch fetch failure onto a FetchError.
func toFetchError(rawURL string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	var se *batch.StatusError
	if errors.As(err, &se) {
		return &FetchError{Kind: KindHTTP, URL: rawURL, Status: se.StatusCode, Err: err}
	}
	return &FetchError{Kind: KindNetwork, URL: rawURL, Err: err}
}
