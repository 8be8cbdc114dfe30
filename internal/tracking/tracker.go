package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"skywatch/internal/metrics"
	"skywatch/internal/storage"
	"skywatch/internal/synthesis"
)

const (
	defaultHistoryRetention = 90 * 24 * time.Hour
	lastResultTTL           = 24 * time.Hour
	previousSnapshotTTL     = 7 * 24 * time.Hour
)

// TriggerSink receives the synthesis triggers resolved from detected events.
type TriggerSink interface {
	TriggerSynthesis(ctx context.Context, userID string, trigger synthesis.Trigger, background bool) (*synthesis.Record, error)
}

// Deps are the shared collaborators of every tracker.
type Deps struct {
	Cache   storage.KeyValueStore
	History storage.HistoryStore
	Sink    TriggerSink
	Metrics *metrics.Metrics
}

// Options tune a tracker.
type Options struct {
	HistoryRetention time.Duration
}

// Tracker runs the shared update cycle around one module.
type Tracker struct {
	module    Module
	cache     storage.KeyValueStore
	history   storage.HistoryStore
	sink      TriggerSink
	metrics   *metrics.Metrics
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewTracker wraps a module. Sink and History may be nil.
func NewTracker(module Module, deps Deps, opts Options, logger zerolog.Logger) *Tracker {
	retention := opts.HistoryRetention
	if retention <= 0 {
		retention = defaultHistoryRetention
	}
	return &Tracker{
		module:    module,
		cache:     deps.Cache,
		history:   deps.History,
		sink:      deps.Sink,
		metrics:   deps.Metrics,
		retention: retention,
		logger:    logger.With().Str("component", "tracker").Str("module", module.Name()).Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the tracker clock.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Module returns the wrapped module.
func (t *Tracker) Module() Module { return t.module }

// Name returns the module name.
func (t *Tracker) Name() string { return t.module.Name() }

// Update refreshes the module for userID. Within the module interval the cached result is
// returned unchanged and nothing is fetched.
func (t *Tracker) Update(ctx context.Context, userID string) (Result, error) {
	now := t.now().UTC()
	if cached, ok := t.cachedResult(ctx, userID, now); ok {
		t.metrics.ObserveCacheHit(t.module.Name())
		t.logger.Debug().Str("user_id", userID).Msg("within interval, returning cached result")
		return cached, nil
	}

	current, err := t.module.Fetch(ctx, now)
	if err != nil {
		t.metrics.ObserveFetch(t.module.Name(), "error")
		return Result{}, fmt.Errorf("fetch %s: %w", t.module.Name(), err)
	}
	t.metrics.ObserveFetch(t.module.Name(), current.Source)

	t.appendHistory(ctx, userID, current)

	previous := t.previousSnapshot(ctx, userID)
	events := t.module.Detect(current, previous)

	comparison, compareEvents, err := t.module.Compare(ctx, userID, current)
	if err != nil {
		return Result{}, fmt.Errorf("compare %s: %w", t.module.Name(), err)
	}
	events = append(events, compareEvents...)

	tags := make([]string, 0, len(events))
	for _, ev := range events {
		tags = append(tags, ev.Tag())
		t.metrics.ObserveEvent(t.module.Name(), ev.Tag())
	}

	result := Result{
		Module:            t.module.Name(),
		CurrentData:       current,
		Comparison:        comparison,
		SignificantEvents: tags,
		UpdatedAt:         now,
	}

	t.store(ctx, userID, "previous_snapshot", current, previousSnapshotTTL)
	t.store(ctx, userID, "last_update", now, t.module.Interval())
	t.store(ctx, userID, "last_result", result, lastResultTTL)

	t.fireTriggers(ctx, userID, events)
	return result, nil
}

// Record fetches the module state at a past instant and appends it to the history without touching
// the cache or firing triggers.
func (t *Tracker) Record(ctx context.Context, userID string, at time.Time) (Snapshot, error) {
	snap, err := t.module.Fetch(ctx, at.UTC())
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch %s: %w", t.module.Name(), err)
	}
	t.appendHistory(ctx, userID, snap)
	return snap, nil
}

// LastResult returns the cached result regardless of the interval.
func (t *Tracker) LastResult(ctx context.Context, userID string) (Result, bool) {
	var res Result
	if !t.load(ctx, userID, "last_result", &res) {
		return Result{}, false
	}
	return res, true
}

func (t *Tracker) cachedResult(ctx context.Context, userID string, now time.Time) (Result, bool) {
	var last time.Time
	if !t.load(ctx, userID, "last_update", &last) {
		return Result{}, false
	}
	if now.Sub(last) >= t.module.Interval() {
		return Result{}, false
	}
	return t.LastResult(ctx, userID)
}

func (t *Tracker) previousSnapshot(ctx context.Context, userID string) *Snapshot {
	var prev Snapshot
	if !t.load(ctx, userID, "previous_snapshot", &prev) {
		return nil
	}
	return &prev
}

func (t *Tracker) appendHistory(ctx context.Context, userID string, snap Snapshot) {
	if t.history == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		t.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to encode history entry")
		return
	}
	entry := storage.HistoryEntry{UserID: userID, Module: t.module.Name(), Timestamp: snap.Timestamp, Data: raw}
	if err := t.history.AppendAndTrim(ctx, entry, t.retention); err != nil {
		t.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to append history")
	}
}

func (t *Tracker) fireTriggers(ctx context.Context, userID string, events []Event) {
	if t.sink == nil {
		return
	}
	for _, ev := range events {
		for _, trig := range ev.Triggers() {
			if _, err := t.sink.TriggerSynthesis(ctx, userID, trig, true); err != nil {
				t.logger.Error().Err(err).
					Str("user_id", userID).
					Str("event", ev.Tag()).
					Str("trigger", trig.String()).
					Msg("failed to trigger synthesis")
			}
		}
	}
}

func cacheKey(module, userID, suffix string) string {
	return fmt.Sprintf("tracking:%s:%s:%s", module, userID, suffix)
}

// load treats read errors and undecodable values as absent.
func (t *Tracker) load(ctx context.Context, userID, suffix string, dst any) bool {
	raw, found, err := t.cache.Get(ctx, cacheKey(t.module.Name(), userID, suffix))
	if err != nil {
		t.logger.Warn().Err(err).Str("user_id", userID).Str("key", suffix).Msg("cache read failed")
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.logger.Debug().Err(err).Str("user_id", userID).Str("key", suffix).Msg("ignoring malformed cache entry")
		return false
	}
	return true
}

func (t *Tracker) store(ctx context.Context, userID, suffix string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		t.logger.Warn().Err(err).Str("user_id", userID).Str("key", suffix).Msg("failed to encode cache entry")
		return
	}
	if err := t.cache.Set(ctx, cacheKey(t.module.Name(), userID, suffix), raw, ttl); err != nil {
		t.logger.Warn().Err(err).Str("user_id", userID).Str("key", suffix).Msg("cache write failed")
	}
}
