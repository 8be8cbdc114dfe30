package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"skywatch/internal/synthesis"
)

// Registry resolves trackers by module name.
type Registry struct {
	trackers map[string]*Tracker
	order    []string
}

// NewRegistry indexes trackers by their module name.
func NewRegistry(trackers ...*Tracker) *Registry {
	r := &Registry{trackers: make(map[string]*Tracker, len(trackers))}
	r.Register(trackers...)
	return r
}

// Register adds trackers, replacing any already registered under the same module name.
func (r *Registry) Register(trackers ...*Tracker) {
	for _, t := range trackers {
		if _, dup := r.trackers[t.Name()]; !dup {
			r.order = append(r.order, t.Name())
		}
		r.trackers[t.Name()] = t
	}
}

// Get returns the tracker for name or ErrUnknownModule.
func (r *Registry) Get(name string) (*Tracker, error) {
	t, ok := r.trackers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, name)
	}
	return t, nil
}

// Names lists registered modules in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns the trackers in registration order.
func (r *Registry) All() []*Tracker {
	out := make([]*Tracker, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.trackers[name])
	}
	return out
}

// Digest is the synthesis content assembled from the latest cached module results.
type Digest struct {
	UserID      string                  `json:"user_id"`
	Trigger     synthesis.Trigger       `json:"trigger"`
	GeneratedAt time.Time               `json:"generated_at"`
	Modules     map[string]ModuleDigest `json:"modules"`
	Highlights  []string                `json:"highlights"`
}

// ModuleDigest summarises one module's last result.
type ModuleDigest struct {
	UpdatedAt         time.Time       `json:"updated_at"`
	SignificantEvents []string        `json:"significant_events"`
	Comparison        json.RawMessage `json:"comparison"`
}

// ResultDigest synthesizes a user's digest from the trackers' cached results. It never fetches.
type ResultDigest struct {
	registry *Registry
	now      func() time.Time
}

// NewResultDigest builds a digest synthesizer.
func NewResultDigest(registry *Registry) *ResultDigest {
	return &ResultDigest{registry: registry, now: func() time.Time { return time.Now().UTC() }}
}

// Synthesize implements synthesis.Synthesizer.
func (d *ResultDigest) Synthesize(ctx context.Context, userID string, trigger synthesis.Trigger) (json.RawMessage, error) {
	digest := Digest{
		UserID:      userID,
		Trigger:     trigger,
		GeneratedAt: d.now(),
		Modules:     make(map[string]ModuleDigest),
		Highlights:  make([]string, 0),
	}
	for _, t := range d.registry.All() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, ok := t.LastResult(ctx, userID)
		if !ok {
			continue
		}
		digest.Modules[t.Name()] = ModuleDigest{
			UpdatedAt:         res.UpdatedAt,
			SignificantEvents: res.SignificantEvents,
			Comparison:        res.Comparison,
		}
		for _, ev := range res.SignificantEvents {
			digest.Highlights = append(digest.Highlights, t.Name()+":"+ev)
		}
	}
	sort.Strings(digest.Highlights)

	out, err := json.Marshal(digest)
	if err != nil {
		return nil, fmt.Errorf("encode digest: %w", err)
	}
	return out, nil
}

var _ synthesis.Synthesizer = (*ResultDigest)(nil)
