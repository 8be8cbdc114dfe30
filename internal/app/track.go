package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"skywatch/internal/astro"
	"skywatch/internal/synthesis"
	"skywatch/internal/tracking"
)

// Track runs one update cycle for a user. An empty module updates every registered module.
func (r *Runtime) Track(ctx context.Context, userID, module string) error {
	if userID == "" {
		return errors.New("user id is required")
	}

	trackers := r.Registry.All()
	if module != "" {
		t, err := r.Registry.Get(module)
		if err != nil {
			return err
		}
		trackers = []*tracking.Tracker{t}
	}

	results := make(map[string]tracking.Result, len(trackers))
	for _, t := range trackers {
		res, err := t.Update(ctx, userID)
		if err != nil {
			return fmt.Errorf("update %s: %w", t.Name(), err)
		}
		results[t.Name()] = res
	}
	return r.printJSON(results)
}

// Upcoming prints the events expected in the next days for a user.
func (r *Runtime) Upcoming(ctx context.Context, userID string, days int) error {
	days = r.Config.ResolveDays(days)
	events, err := r.Scanner.Upcoming(ctx, userID, days)
	if err != nil {
		return err
	}
	return r.printJSON(map[string]any{
		"user_id": userID,
		"days":    days,
		"count":   len(events),
		"events":  events,
	})
}

// Aurora prints the aurora outlook for a location using the live Kp.
func (r *Runtime) Aurora(ctx context.Context, lat, lon float64) error {
	outlook, err := r.Solar.FetchLocationAware(ctx, lat, lon)
	if err != nil {
		return err
	}
	return r.printJSON(outlook)
}

// Synthesize triggers a synthesis for the user. Inline runs print the stored record.
func (r *Runtime) Synthesize(ctx context.Context, userID, triggerName string, background bool) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	trigger, err := synthesis.ParseTrigger(triggerName)
	if err != nil {
		return err
	}

	record, err := r.Orchestrator.TriggerSynthesis(ctx, userID, trigger, background)
	if err != nil {
		return err
	}
	if record == nil {
		r.Logger.Info().Str("user_id", userID).Str("trigger", trigger.String()).Msg("synthesis dispatched")
		return nil
	}
	return r.printJSON(record)
}

// ImportChart stores a reference chart read from a JSON file keyed by body name.
func (r *Runtime) ImportChart(ctx context.Context, userID, path string) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read chart file: %w", err)
	}
	var chart astro.Chart
	if err := json.Unmarshal(raw, &chart); err != nil {
		return fmt.Errorf("decode chart file: %w", err)
	}
	if len(chart) == 0 {
		return errors.New("chart file has no points")
	}
	if err := r.Store.UpsertReferenceChart(ctx, userID, r.Config.Tracking.ReferenceModule, chart); err != nil {
		return fmt.Errorf("store reference chart: %w", err)
	}
	r.Logger.Info().Str("user_id", userID).Int("points", len(chart)).Msg("reference chart stored")

	// A new chart invalidates any synthesis built without it.
	if _, err := r.Orchestrator.TriggerSynthesis(ctx, userID, synthesis.TriggerModuleCalculated, true); err != nil {
		r.Logger.Error().Err(err).Str("user_id", userID).Msg("failed to trigger synthesis after chart import")
	}
	return nil
}

func (r *Runtime) printJSON(v any) error {
	enc := json.NewEncoder(r.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
