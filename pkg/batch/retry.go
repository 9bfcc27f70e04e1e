package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	batchRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pwa_batch_retries_total",
		Help: "Total number of batch fetch retry attempts",
	})

	batchRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pwa_batch_retry_exhausted_total",
		Help: "Total number of batch fetches that exhausted their attempts",
	})
)

// retryWithBackoff runs fn up to config.Attempts times with jittered
// exponential backoff. It returns the number of attempts made.
func retryWithBackoff(ctx context.Context, config Config, fn func() error) (int, error) {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.Attempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().Int("attempt", attempt).Msg("Fetch succeeded after retry")
			}
			return attempt, nil
		}
		lastErr = err

		if !retryable(err) {
			return attempt, err
		}
		if attempt >= config.Attempts {
			break
		}

		batchRetriesTotal.Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		log.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying fetch after backoff")

		select {
		case <-ctx.Done():
			return attempt, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	if config.Attempts > 1 {
		batchRetryExhaustedTotal.Inc()
		return config.Attempts, fmt.Errorf("after %d attempts: %w", config.Attempts, lastErr)
	}
	return config.Attempts, lastErr
}

// retryable reports whether err may succeed on another attempt. Client
// errors other than 408 and 429 are permanent.
func retryable(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return true
	}
	if se.StatusCode == http.StatusRequestTimeout || se.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return se.StatusCode < 400 || se.StatusCode >= 500
}
