// Package scanner walks the position provider forward to list upcoming sky events for a user.
// It never reads or writes the tracking cache.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"skywatch/internal/ephemeris"
	"skywatch/internal/storage"
)

const (
	day            = 24 * time.Hour
	defaultMaxDays = 365
)

// Minimum internal windows per sub-scan, in days.
const (
	voidMinDays    = 3
	phaseMinDays   = 30
	ingressMinDays = 30
	stationMinDays = 90
	natalMinDays   = 30
)

// Event is one upcoming sky event.
type Event struct {
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Icon        string         `json:"icon"`
	Datetime    string         `json:"datetime"`
	Timestamp   int64          `json:"timestamp"`
	Category    string         `json:"category"`
	Details     map[string]any `json:"details,omitempty"`
	Countdown   string         `json:"countdown"`
	HoursUntil  float64        `json:"hours_until"`

	at time.Time
}

// At returns the event instant.
func (e Event) At() time.Time { return e.at }

func newEvent(typ, category, icon, title, description string, at time.Time, details map[string]any) Event {
	at = at.UTC()
	return Event{
		Type:        typ,
		Title:       title,
		Description: description,
		Icon:        icon,
		Datetime:    at.Format(time.RFC3339),
		Timestamp:   at.Unix(),
		Category:    category,
		Details:     details,
		at:          at,
	}
}

// Options configure a Scanner.
type Options struct {
	ReferenceModule     string
	VoidDegreeThreshold float64
	// MaxDays caps the requested window. Defaults to 365.
	MaxDays int
}

// Scanner enumerates upcoming events.
type Scanner struct {
	provider  ephemeris.Provider
	charts    storage.ChartStore
	reference string
	voidDeg   float64
	maxDays   int
	logger    zerolog.Logger
	now       func() time.Time
}

// New builds a Scanner.
func New(provider ephemeris.Provider, charts storage.ChartStore, opts Options, logger zerolog.Logger) *Scanner {
	s := &Scanner{
		provider:  provider,
		charts:    charts,
		reference: opts.ReferenceModule,
		voidDeg:   opts.VoidDegreeThreshold,
		maxDays:   opts.MaxDays,
		logger:    logger.With().Str("component", "scanner").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	if s.reference == "" {
		s.reference = "natal"
	}
	if s.voidDeg <= 0 {
		s.voidDeg = 25
	}
	if s.maxDays <= 0 {
		s.maxDays = defaultMaxDays
	}
	return s
}

// WithClock overrides the scanner clock.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

type subScan func(ctx context.Context, start time.Time, window time.Duration) ([]Event, error)

type scanSpec struct {
	name    string
	minDays int
	run     subScan
}

// Upcoming lists events in [now, now+days], soonest first. days is clamped to [1, MaxDays].
// Sub-scans run concurrently over their own minimum windows; the caller's window is applied last.
func (s *Scanner) Upcoming(ctx context.Context, userID string, days int) ([]Event, error) {
	days = min(max(days, 1), s.maxDays)
	now := s.now().UTC()

	scans := []scanSpec{
		{"void_of_course", voidMinDays, s.scanVoid},
		{"lunar_phase", phaseMinDays, s.scanPhases},
		{"ingress", ingressMinDays, s.scanIngresses},
		{"station", stationMinDays, s.scanStations},
	}

	chart, found, err := s.charts.ReferenceChart(ctx, userID, s.reference)
	if err != nil {
		return nil, fmt.Errorf("load reference chart: %w", err)
	}
	if found && len(chart) > 0 {
		natal := natalScan{scanner: s, chart: chart}
		scans = append(scans, scanSpec{"natal_transit", natalMinDays, natal.run})
	} else {
		s.logger.Debug().Str("user_id", userID).Msg("no reference chart, skipping natal transit scan")
	}

	results := make([][]Event, len(scans))
	g, gctx := errgroup.WithContext(ctx)
	for i, sc := range scans {
		window := time.Duration(max(days, sc.minDays)) * day
		g.Go(func() error {
			events, err := sc.run(gctx, now, window)
			if err != nil {
				return fmt.Errorf("%s scan: %w", sc.name, err)
			}
			results[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []Event
	for _, r := range results {
		merged = append(merged, r...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].at.Before(merged[j].at) })

	end := now.Add(time.Duration(days) * day)
	out := make([]Event, 0, len(merged))
	for _, ev := range merged {
		ev.Countdown = Countdown(ev.at.Sub(now))
		ev.HoursUntil = roundTo(ev.at.Sub(now).Hours(), 1)
		if ev.at.Before(now) || ev.at.After(end) {
			continue
		}
		out = append(out, ev)
	}

	s.logger.Debug().Str("user_id", userID).Int("days", days).Int("scanned", len(merged)).Int("events", len(out)).Msg("upcoming events computed")
	return out, nil
}

// Countdown renders a duration as "3d 4h", "5h 12m", "12m" or "now".
func Countdown(d time.Duration) string {
	if d < time.Minute {
		return "now"
	}
	days := int(d / day)
	hours := int((d % day) / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
