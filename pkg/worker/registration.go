package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Registration is the controller slot for one scope. It routes requests to
// the active worker and swaps workers on Register.
type Registration struct {
	// activation is held for writing while a new worker activates and for
	// reading while a request picks its controller. It never covers request
	// handling, so a hanging request holds up nothing but itself.
	activation sync.RWMutex
	controller atomic.Pointer[Worker]

	// registering serialises Register calls
	registering sync.Mutex

	network Fetcher
	logger  zerolog.Logger
}

// NewRegistration creates an empty registration. Requests arriving before a
// worker is active go to network directly.
func NewRegistration(network Fetcher) *Registration {
	if network == nil {
		network = &http.Client{}
	}
	return &Registration{
		network: network,
		logger:  log.With().Str("component", "registration").Logger(),
	}
}

// Register installs and activates w, then makes it the controller. If
// install fails the current controller stays in place.
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	r.registering.Lock()
	defer r.registering.Unlock()

	w.attach(r)
	if err := w.OnInstall(ctx); err != nil {
		return err
	}

	r.activation.Lock()
	defer r.activation.Unlock()

	// in-flight requests of the old controller keep running but must not
	// write into generations this activation is about to delete
	old := r.controller.Load()
	if old != nil && old != w {
		old.fence()
	}
	if err := w.OnActivate(ctx); err != nil {
		if old != nil && old != w && r.controller.Load() == old {
			old.unfence()
		}
		return fmt.Errorf("activate worker: %w", err)
	}
	return nil
}

// Claim makes w the controller. Called by the worker during activation,
// while Register holds the activation lock.
func (r *Registration) Claim(_ context.Context, w *Worker) error {
	old := r.controller.Swap(w)
	if old != nil && old != w {
		old.retire()
	}
	r.logger.Info().
		Str("static_cache", w.cfg.CacheNames.Static).
		Str("api_cache", w.cfg.CacheNames.API).
		Msg("Worker claimed clients")
	return nil
}

// Active returns the controlling worker, or nil.
func (r *Registration) Active() *Worker {
	return r.controller.Load()
}

// Fetch routes req through the controlling worker. Requests arriving during
// an activation wait for the new controller.
func (r *Registration) Fetch(req *http.Request) (*http.Response, error) {
	r.activation.RLock()
	w := r.controller.Load()
	r.activation.RUnlock()

	if w == nil {
		resp, err := r.network.Do(req)
		if err != nil {
			return nil, &FetchError{Kind: KindNetwork, URL: req.URL.String(), Err: err}
		}
		return resp, nil
	}
	return w.OnFetch(req)
}

// Do implements Fetcher.
func (r *Registration) Do(req *http.Request) (*http.Response, error) {
	return r.Fetch(req)
}

// Sync delivers a sync tag to the controlling worker. Without one the
// report is unhandled.
func (r *Registration) Sync(ctx context.Context, tag string) RefreshReport {
	w := r.Active()
	if w == nil {
		return RefreshReport{Tag: tag, Failed: map[string]error{}}
	}
	return w.OnSync(ctx, tag)
}

// SyncLoop delivers tag to whichever worker is in control every interval
// until ctx is done.
func (r *Registration) SyncLoop(ctx context.Context, tag string, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sync(ctx, tag)
		}
	}
}
