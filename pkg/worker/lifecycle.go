package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/pwa-posts-offline/pkg/cache"
)

// OnInstall pre-caches every shell asset into the static generation. The
// batch is all-or-nothing: if any asset fails nothing is written, the
// worker becomes redundant and an *InstallError is returned.
func (w *Worker) OnInstall(ctx context.Context) error {
	switch w.State() {
	case StateActivating, StateActivated:
		return fmt.Errorf("%w: install in state %s", ErrInvalidState, w.State())
	}
	start := time.Now()
	w.unfence()
	w.setState(StateInstalling)
	w.logger.Info().Int("assets", len(w.cfg.ShellAssets)).Msg("Installing worker")

	gen, err := w.store.Open(ctx, w.cfg.CacheNames.Static)
	if err != nil {
		return w.failInstall(&InstallError{Err: err})
	}

	urls := make([]string, len(w.cfg.ShellAssets))
	for i, p := range w.cfg.ShellAssets {
		urls[i] = w.scopeURL(p)
	}
	entries := make([]*cache.Entry, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.InstallConcurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			res := w.installer.FetchOne(gctx, u)
			if res.Err != nil {
				return &InstallError{Asset: w.cfg.ShellAssets[i], Err: toFetchError(u, res.Err)}
			}
			entries[i] = res.Entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return w.failInstall(err)
	}

	for i, entry := range entries {
		if err := gen.Put(ctx, entry.Key(), entry); err != nil {
			return w.failInstall(&InstallError{Asset: w.cfg.ShellAssets[i], Err: err})
		}
	}

	w.setState(StateInstalled)
	installTotal.WithLabelValues("success").Inc()
	w.logger.Info().
		Int("assets", len(entries)).
		Dur("duration", time.Since(start)).
		Msg("Worker installed")
	return nil
}

func (w *Worker) failInstall(err error) error {
	w.setState(StateRedundant)
	installTotal.WithLabelValues("failure").Inc()
	w.logger.Error().Err(err).Msg("Install failed, discarding worker")
	return err
}

// OnActivate removes generations left behind by earlier versions and claims
// open clients.
func (w *Worker) OnActivate(ctx context.Context) error {
	_, err := w.Activate(ctx)
	return err
}

// Activate is OnActivate returning the deleted generation names. Only the
// current static and API names survive. A failed deletion is logged and
// does not stop activation.
func (w *Worker) Activate(ctx context.Context) ([]string, error) {
	if w.State() != StateInstalled {
		return nil, fmt.Errorf("%w: activate in state %s", ErrInvalidState, w.State())
	}
	w.setState(StateActivating)

	names, err := w.store.Names(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Failed to enumerate generations")
	}

	var deleted []string
	for _, name := range names {
		if w.cfg.CacheNames.Has(name) {
			continue
		}
		ok, err := w.store.Delete(ctx, name)
		if err != nil {
			w.logger.Warn().Err(err).Str("generation", name).Msg("Failed to delete old generation")
			continue
		}
		if ok {
			w.logger.Info().Str("generation", name).Msg("Deleted old generation")
			deleted = append(deleted, name)
		}
	}

	w.setState(StateActivated)
	w.logger.Info().Int("deleted", len(deleted)).Msg("Worker activated")

	w.mu.Lock()
	clients := w.clients
	w.mu.Unlock()
	if clients != nil {
		if err := clients.Claim(ctx, w); err != nil {
			return deleted, fmt.Errorf("claim clients: %w", err)
		}
	}
	return deleted, nil
}

// retire marks a superseded worker redundant. Requests it is still
// handling complete but write nothing.
func (w *Worker) retire() {
	w.fence()
	w.setState(StateRedundant)
	w.logger.Info().Msg("Worker superseded")
}
