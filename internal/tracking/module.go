// Package tracking implements the shared update cycle for live sky-state modules and the solar,
// lunar and transit modules that plug into it.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"skywatch/internal/astro"
	"skywatch/internal/synthesis"
)

// ErrUnknownModule is returned when a module name does not resolve.
var ErrUnknownModule = errors.New("tracking: unknown module")

// Snapshot is the raw live state produced by one fetch. Data holds a module-specific JSON object.
type Snapshot struct {
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
}

// NewSnapshot encodes data into a snapshot.
func NewSnapshot(at time.Time, source string, data any) (Snapshot, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode %s snapshot: %w", source, err)
	}
	return Snapshot{Timestamp: at.UTC(), Source: source, Data: raw}, nil
}

// Decode unmarshals the snapshot data into dst.
func (s Snapshot) Decode(dst any) error {
	if len(s.Data) == 0 {
		return errors.New("snapshot has no data")
	}
	return json.Unmarshal(s.Data, dst)
}

// Result is what an update returns and what gets cached as last_result.
type Result struct {
	Module            string          `json:"module"`
	CurrentData       Snapshot        `json:"current_data"`
	Comparison        json.RawMessage `json:"comparison"`
	SignificantEvents []string        `json:"significant_events"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Module is one live-state tracker.
type Module interface {
	Name() string
	// Interval is the minimum time between upstream fetches for one user.
	Interval() time.Duration
	Fetch(ctx context.Context, at time.Time) (Snapshot, error)
	// Detect is a pure function of the two snapshots.
	Detect(current Snapshot, previous *Snapshot) []Event
	// Compare relates the snapshot to the user's reference chart. Events returned here are merged
	// with Detect's before triggers are resolved.
	Compare(ctx context.Context, userID string, current Snapshot) (json.RawMessage, []Event, error)
}

// Event is a significant state change. The set is closed to this package.
type Event interface {
	Tag() string
	// Triggers lists the synthesis triggers the event fires. It may be empty.
	Triggers() []synthesis.Trigger
	isEvent()
}

// SolarStormEvent fires on a strong or sharply rising Kp, or an X-class flare.
type SolarStormEvent struct {
	Kp     float64
	XClass bool
}

func (SolarStormEvent) Tag() string { return "solar_storm" }
func (SolarStormEvent) Triggers() []synthesis.Trigger {
	return []synthesis.Trigger{synthesis.TriggerSolarStorm}
}
func (SolarStormEvent) isEvent() {}

// LunarPhaseEvent fires when the Moon enters the New or Full band.
type LunarPhaseEvent struct {
	Phase string
}

func (LunarPhaseEvent) Tag() string { return "lunar_phase" }
func (LunarPhaseEvent) Triggers() []synthesis.Trigger {
	return []synthesis.Trigger{synthesis.TriggerPhaseChange}
}
func (LunarPhaseEvent) isEvent() {}

// VoidOfCourseEvent fires when the Moon turns void of course.
type VoidOfCourseEvent struct {
	Sign string
}

func (VoidOfCourseEvent) Tag() string { return "void_of_course" }

// Triggers is deliberately empty: void-of-course periods are reported but never resynthesize.
func (VoidOfCourseEvent) Triggers() []synthesis.Trigger { return nil }
func (VoidOfCourseEvent) isEvent() {}

// ExactTransitEvent fires for a transit aspect tighter than one degree.
type ExactTransitEvent struct {
	Transiting astro.Body
	Natal      astro.Body
	Aspect     string
	Orb        float64
}

func (ExactTransitEvent) Tag() string { return "exact_transit" }
func (ExactTransitEvent) Triggers() []synthesis.Trigger {
	return []synthesis.Trigger{synthesis.TriggerExactTransit}
}
func (ExactTransitEvent) isEvent() {}

// chartUnavailable is the comparison payload when the user has no reference chart yet.
type chartUnavailable struct {
	ChartAvailable bool   `json:"chart_available"`
	Message        string `json:"message"`
}

func missingChart(module string) (json.RawMessage, error) {
	return json.Marshal(chartUnavailable{
		ChartAvailable: false,
		Message:        fmt.Sprintf("no reference chart for %s comparison yet", module),
	})
}
