// Package synthesis decides when a user's combined interpretation should be regenerated and runs
// the regeneration inline, on a queue, or as local background work.
package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"skywatch/internal/metrics"
)

// Synthesizer produces the synthesis content for a user.
type Synthesizer interface {
	Synthesize(ctx context.Context, userID string, trigger Trigger) (json.RawMessage, error)
}

// Completion announces a freshly stored synthesis.
type Completion struct {
	UserID      string
	Trigger     Trigger
	GeneratedAt time.Time
	JobID       string
}

// Publisher announces completions.
type Publisher interface {
	Publish(ctx context.Context, completion Completion) error
}

// Options tune the orchestrator.
type Options struct {
	// LocalTimeout bounds background work run in-process when the queue is unavailable.
	LocalTimeout time.Duration
	Metrics      *metrics.Metrics
}

// Orchestrator gates and dispatches synthesis work.
type Orchestrator struct {
	records      RecordStore
	synth        Synthesizer
	queue        Queue
	publisher    Publisher
	localTimeout time.Duration
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	now          func() time.Time

	local sync.WaitGroup
}

// New builds an orchestrator. queue and publisher may be nil.
func New(records RecordStore, synth Synthesizer, queue Queue, publisher Publisher, opts Options, logger zerolog.Logger) *Orchestrator {
	timeout := opts.LocalTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Orchestrator{
		records:      records,
		synth:        synth,
		queue:        queue,
		publisher:    publisher,
		localTimeout: timeout,
		metrics:      opts.Metrics,
		logger:       logger.With().Str("component", "synthesis").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ShouldSynthesize reports whether trigger warrants a new synthesis for userID.
// Missing or stale records always qualify; a valid record yields only to critical triggers.
func (o *Orchestrator) ShouldSynthesize(ctx context.Context, userID string, trigger Trigger) bool {
	_, state := o.lookup(ctx, userID)
	if state != StateValid {
		return true
	}
	return trigger.Critical()
}

// TriggerSynthesis runs or schedules a synthesis. It returns the existing record when synthesis is
// not warranted, nil when the work was handed off to the background, and the new record otherwise.
func (o *Orchestrator) TriggerSynthesis(ctx context.Context, userID string, trigger Trigger, background bool) (*Record, error) {
	existing, state := o.lookup(ctx, userID)
	if state == StateValid && !trigger.Critical() {
		o.metrics.ObserveTrigger(trigger.String(), "suppressed")
		o.logger.Debug().Str("user_id", userID).Str("trigger", trigger.String()).Msg("synthesis still valid, skipping")
		return existing, nil
	}

	if !background {
		rec, err := o.run(ctx, NewJob(userID, trigger, o.now()))
		if err != nil {
			o.metrics.ObserveTrigger(trigger.String(), "failed")
			return nil, err
		}
		o.metrics.ObserveTrigger(trigger.String(), "inline")
		return rec, nil
	}

	job := NewJob(userID, trigger, o.now())
	if o.queue != nil {
		err := o.queue.Enqueue(ctx, job)
		if err == nil {
			o.metrics.ObserveTrigger(trigger.String(), "enqueued")
			o.logger.Info().Str("user_id", userID).Str("trigger", trigger.String()).Str("job_id", job.ID).Msg("synthesis enqueued")
			return nil, nil
		}
		if !errors.Is(err, ErrQueueUnavailable) {
			o.metrics.ObserveTrigger(trigger.String(), "failed")
			return nil, fmt.Errorf("enqueue synthesis: %w", err)
		}
		o.logger.Warn().Err(err).Str("user_id", userID).Msg("queue unavailable, running synthesis locally")
	}

	o.runLocal(job)
	o.metrics.ObserveTrigger(trigger.String(), "local")
	return nil, nil
}

// RunJob executes a dequeued job inline. It is the worker-side half of background synthesis.
func (o *Orchestrator) RunJob(ctx context.Context, job Job) error {
	_, err := o.run(ctx, job)
	return err
}

// Wait blocks until in-process background work has finished.
func (o *Orchestrator) Wait() {
	o.local.Wait()
}

func (o *Orchestrator) runLocal(job Job) {
	o.local.Add(1)
	go func() {
		defer o.local.Done()
		// detached from the caller; bounded only by the local timeout
		ctx, cancel := context.WithTimeout(context.Background(), o.localTimeout)
		defer cancel()
		if _, err := o.run(ctx, job); err != nil {
			o.logger.Error().Err(err).Str("user_id", job.UserID).Str("job_id", job.ID).Msg("local synthesis failed")
		}
	}()
}

func (o *Orchestrator) run(ctx context.Context, job Job) (*Record, error) {
	content, err := o.synth.Synthesize(ctx, job.UserID, job.Trigger)
	if err != nil {
		return nil, fmt.Errorf("synthesize %s: %w", job.UserID, err)
	}

	rec := Record{
		UserID:      job.UserID,
		Trigger:     job.Trigger,
		GeneratedAt: o.now(),
		Content:     content,
	}
	if err := o.records.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save synthesis: %w", err)
	}

	if o.publisher != nil {
		completion := Completion{UserID: job.UserID, Trigger: job.Trigger, GeneratedAt: rec.GeneratedAt, JobID: job.ID}
		if err := o.publisher.Publish(ctx, completion); err != nil {
			o.logger.Warn().Err(err).Str("user_id", job.UserID).Msg("failed to publish synthesis completion")
		}
	}

	o.logger.Info().Str("user_id", job.UserID).Str("trigger", job.Trigger.String()).Str("job_id", job.ID).Msg("synthesis stored")
	return &rec, nil
}

// lookup degrades read failures to a missing record.
func (o *Orchestrator) lookup(ctx context.Context, userID string) (*Record, State) {
	rec, state, err := o.records.Lookup(ctx, userID)
	if err != nil {
		o.logger.Warn().Err(err).Str("user_id", userID).Msg("synthesis lookup failed, treating as missing")
		return nil, StateMissing
	}
	return rec, state
}
