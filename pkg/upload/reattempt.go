package upload

import (
	"context"
	"time"

	"github.com/symdex/symdex/internal/log"
	"github.com/symdex/symdex/internal/telemetry/metrics"
)

const reattemptKeyPrefix = "reattempt:"

// ReattemptStuck re-dispatches incomplete, non-cancelled uploads older than
// the reattempt age with attempts below the ceiling. A throttle entry with
// the reattempt age as its TTL suppresses duplicates, so each stuck upload is
// re-dispatched at most once per window no matter how often the scan runs.
// The throttle entry is written before the dispatch: a failure between the
// two under-dispatches for one window, never over-dispatches.
func (ing *Ingestor) ReattemptStuck(ctx context.Context) error {
	cutoff := ing.now().Add(-ing.cfg.ReattemptAge)
	uploads, err := ing.cfg.DB.ListIncomplete(ctx, cutoff, ing.cfg.ReattemptMaxAttempts)
	if err != nil {
		return err
	}

	for _, u := range uploads {
		key := reattemptKeyPrefix + u.ID.String()
		present, _, err := ing.cfg.Cache.Get(ctx, key)
		if err != nil {
			log.Warn(ctx).Err(err).Str("upload_id", u.ID.String()).Msg("reattempt: throttle read failed")
			continue
		}
		if present {
			continue
		}
		if err := ing.cfg.Cache.Set(ctx, key, []byte("1"), ing.cfg.ReattemptAge); err != nil {
			log.Warn(ctx).Err(err).Str("upload_id", u.ID.String()).Msg("reattempt: throttle write failed")
			continue
		}
		log.Info(ctx).
			Str("upload_id", u.ID.String()).
			Time("created_at", u.CreatedAt).
			Int("attempts", u.Attempts).
			Msg("reattempt: re-dispatching incomplete upload")
		if err := ing.cfg.Dispatcher.Enqueue(ctx, u.ID); err != nil {
			log.Warn(ctx).Err(err).Str("upload_id", u.ID.String()).Msg("reattempt: dispatch failed")
			continue
		}
		metrics.DispatchesTotal.WithLabelValues("reattempt").Inc()
	}
	return nil
}

// RunReattempter runs the stuck-upload scan on a fixed interval until ctx is
// done, for deployments that disable the inline scan.
func (ing *Ingestor) RunReattempter(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ing.ReattemptStuck(ctx); err != nil {
				log.Warn(ctx).Err(err).Msg("reattempt: scan failed")
			}
		}
	}
}
