package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"skywatch/internal/fetcher"
	"skywatch/internal/storage"
	"skywatch/internal/tracking"
)

// SimulateOptions describe a synthetic geomagnetic storm.
type SimulateOptions struct {
	UserID     string
	BaselineKp decimal.Decimal
	StormKp    decimal.Decimal
	FlareClass string
}

// SimulateStorm drives a solar tracker through a quiet reading and then a storm reading from a
// static feed, so the storm detection and synthesis trigger path runs end to end. The live cache
// is left untouched.
func (r *Runtime) SimulateStorm(ctx context.Context, opts SimulateOptions) (tracking.Result, error) {
	if opts.UserID == "" {
		return tracking.Result{}, errors.New("user id is required")
	}
	if opts.StormKp.IsNegative() || opts.StormKp.GreaterThan(decimal.NewFromInt(9)) {
		return tracking.Result{}, errors.New("kp must be between 0 and 9")
	}

	now := time.Now().UTC()
	feed := fetcher.NewStatic(opts.BaselineKp, now.Add(-3*time.Hour))

	module := tracking.NewSolarModule(feed, tracking.SolarOptions{Interval: time.Minute}, r.Logger)
	clock := now.Add(-time.Hour)
	tracker := tracking.NewTracker(module, tracking.Deps{
		Cache:   storage.NewMemory(),
		Sink:    r.Orchestrator,
		Metrics: r.Metrics,
	}, tracking.Options{}, r.Logger).WithClock(func() time.Time { return clock })

	if _, err := tracker.Update(ctx, opts.UserID); err != nil {
		return tracking.Result{}, err
	}

	var flares []fetcher.Flare
	if opts.FlareClass != "" {
		flares = append(flares, fetcher.Flare{Class: opts.FlareClass, PeakTime: now.Add(-10 * time.Minute)})
	}
	feed.Set(opts.StormKp, now, flares...)
	clock = now

	result, err := tracker.Update(ctx, opts.UserID)
	if err != nil {
		return tracking.Result{}, err
	}
	r.Logger.Info().
		Str("user_id", opts.UserID).
		Strs("events", result.SignificantEvents).
		Msg("storm simulation finished")

	r.Orchestrator.Wait()
	return result, r.printJSON(result)
}
