package worker

import (
	"context"
	"time"
)

// RefreshReport summarises one background refresh.
type RefreshReport struct {
	Tag     string
	Handled bool

	// Updated URLs got a body that differs from the stored one
	Updated []string

	// Unchanged URLs were re-stored with an identical body
	Unchanged []string

	// Failed maps URLs to the reason they were not refreshed
	Failed map[string]error
}

// OnSync refreshes every API URL when tag is the configured sync tag. Per-URL
// failures are recorded in the report and never abort the others.
func (w *Worker) OnSync(ctx context.Context, tag string) RefreshReport {
	report := RefreshReport{Tag: tag, Failed: map[string]error{}}
	if tag != w.cfg.SyncTag {
		w.logger.Debug().Str("tag", tag).Msg("Ignoring unknown sync tag")
		return report
	}
	report.Handled = true

	start := time.Now()
	gen, err := w.store.Generation(w.cfg.CacheNames.API)
	if err != nil {
		for _, u := range w.cfg.APIURLs {
			report.Failed[u] = err
		}
		return report
	}

	for _, res := range w.refresher.FetchAll(ctx, w.cfg.APIURLs) {
		if res.Err != nil {
			w.refreshFailed(&report, res.URL, toFetchError(res.URL, res.Err))
			continue
		}
		key := res.Entry.Key()
		previous := w.lookup(ctx, gen.Name(), key)
		if err := w.write(ctx, gen.Name(), key, res.Entry); err != nil {
			w.refreshFailed(&report, res.URL, err)
			continue
		}
		if previous != nil && previous.Digest == res.Entry.Digest {
			report.Unchanged = append(report.Unchanged, res.URL)
			refreshTotal.WithLabelValues("unchanged").Inc()
		} else {
			report.Updated = append(report.Updated, res.URL)
			refreshTotal.WithLabelValues("updated").Inc()
		}
	}

	w.logger.Info().
		Int("updated", len(report.Updated)).
		Int("unchanged", len(report.Unchanged)).
		Int("failed", len(report.Failed)).
		Dur("duration", time.Since(start)).
		Msg("Background refresh completed")
	return report
}

func (w *Worker) refreshFailed(report *RefreshReport, rawURL string, err error) {
	report.Failed[rawURL] = err
	refreshTotal.WithLabelValues("failure").Inc()
	w.logger.Warn().Err(err).Str("url", rawURL).Msg("Background refresh failed")
}

// SyncLoop emits the configured sync tag every interval until ctx is done.
func (w *Worker) SyncLoop(ctx context.Context, every time.Duration) {
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
			if w.State() != StateActivated {
				continue
			}
			w.OnSync(ctx, w.cfg.SyncTag)
		}
	}
}
