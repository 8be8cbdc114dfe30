package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"skywatch/internal/tracking"
)

// Backfill reconstructs a user's history for an ephemeris-driven module by fetching its state at
// each step of a past window. Solar history cannot be reconstructed from the live feed.
func (r *Runtime) Backfill(ctx context.Context, opts BackfillOptions) error {
	if opts.UserID == "" {
		return errors.New("user id is required")
	}
	tracker, err := r.Registry.Get(opts.Module)
	if err != nil {
		return err
	}
	if tracker.Name() == tracking.SolarModuleName {
		return errors.New("solar history cannot be backfilled; the space-weather feed is live only")
	}

	step := opts.Step
	if step <= 0 {
		step = tracker.Module().Interval()
	}
	if step <= 0 {
		return errors.New("backfill step must be positive")
	}

	start := alignForward(opts.From.UTC(), step)
	end := opts.To.UTC()
	if oldest := time.Now().UTC().Add(-r.Config.Tracking.HistoryRetention); start.Before(oldest) {
		r.Logger.Warn().Time("from", start).Time("oldest", oldest).Msg("backfill start precedes history retention; clamping")
		start = alignForward(oldest, step)
	}
	if !start.Before(end) {
		return errors.New("backfill range is empty, check --from/--to")
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	var processed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for at := start; at.Before(end); at = at.Add(step) {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if opts.DryRun {
				if _, err := tracker.Module().Fetch(gctx, at); err != nil {
					failed.Add(1)
					r.Logger.Error().Err(err).Time("at", at).Msg("backfill step failed")
					return nil
				}
				processed.Add(1)
				return nil
			}
			if _, err := tracker.Record(gctx, opts.UserID, at); err != nil {
				failed.Add(1)
				r.Logger.Error().Err(err).Time("at", at).Msg("backfill step failed")
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.Logger.Info().
		Str("module", tracker.Name()).
		Bool("dry_run", opts.DryRun).
		Int64("processed", processed.Load()).
		Int64("failed", failed.Load()).
		Msg("backfill finished")
	if failed.Load() > 0 {
		return fmt.Errorf("%d backfill steps failed, check logs", failed.Load())
	}
	return nil
}

func alignForward(t time.Time, step time.Duration) time.Time {
	truncated := t.Truncate(step)
	if truncated.Before(t) {
		return truncated.Add(step)
	}
	return truncated
}
