package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"skywatch/internal/metrics"
	"skywatch/internal/scheduler"
	"skywatch/internal/storage"
	"skywatch/internal/tracking"
)

const defaultBatchSize = 10

// Options configure the sweep service.
type Options struct {
	BatchSize int
	// Users, when set, replaces the store's user list.
	Users   []string
	LockKey int64
}

// Report summarises one bulk refresh.
type Report struct {
	Users     int
	Succeeded int
	Failed    int
}

// Service refreshes every tracker for every user on each scheduler tick.
type Service struct {
	scheduler *scheduler.Scheduler
	registry  *tracking.Registry
	users     storage.UserLister
	locker    storage.AdvisoryLocker
	purger    storage.ExpiredPurger
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	batchSize   int
	staticUsers []string
	lockKey     int64
}

// New constructs the sweep service. store may additionally implement storage.AdvisoryLocker and
// storage.ExpiredPurger; both are used when present.
func New(opts Options, sched *scheduler.Scheduler, registry *tracking.Registry, store storage.UserLister, m *metrics.Metrics, logger zerolog.Logger) *Service {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}
	var purger storage.ExpiredPurger
	if p, ok := store.(storage.ExpiredPurger); ok {
		purger = p
	}

	return &Service{
		scheduler:   sched,
		registry:    registry,
		users:       store,
		locker:      locker,
		purger:      purger,
		metrics:     m,
		logger:      logger.With().Str("component", "service").Logger(),
		batchSize:   batch,
		staticUsers: opts.Users,
		lockKey:     opts.LockKey,
	}
}

// Run begins the scheduled sweep loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Sweep)
}

// Sweep runs one bulk refresh under the advisory lock, then purges expired cache rows.
func (s *Service) Sweep(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip sweep because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	userIDs, err := s.userIDs(ctx)
	if err != nil {
		return err
	}

	report := s.RefreshAll(ctx, userIDs)
	s.logger.Info().Time("tick", tick).
		Int("users", report.Users).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("sweep finished")

	if s.purger != nil {
		purged, err := s.purger.PurgeExpired(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to purge expired cache entries")
		} else if purged > 0 {
			s.logger.Debug().Int64("purged", purged).Msg("expired cache entries removed")
		}
	}
	return nil
}

// RefreshAll updates every module for every user in batches. Users inside a batch run
// concurrently; batches run one after another. A failing user is logged and counted, never
// aborting the rest of the sweep.
func (s *Service) RefreshAll(ctx context.Context, userIDs []string) Report {
	started := time.Now()
	report := Report{Users: len(userIDs)}

	var mu sync.Mutex
	for start := 0; start < len(userIDs); start += s.batchSize {
		if ctx.Err() != nil {
			report.Failed += len(userIDs) - start
			break
		}
		end := min(start+s.batchSize, len(userIDs))

		var g errgroup.Group
		for _, userID := range userIDs[start:end] {
			g.Go(func() error {
				err := s.RefreshUser(ctx, userID)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Failed++
					s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to refresh user")
					return nil
				}
				report.Succeeded++
				return nil
			})
		}
		_ = g.Wait()
	}

	s.metrics.ObserveSweep(started, report.Succeeded, report.Failed)
	return report
}

// RefreshUser runs Update on every registered module for one user and joins their errors.
func (s *Service) RefreshUser(ctx context.Context, userID string) error {
	var errs []error
	for _, tracker := range s.registry.All() {
		if _, err := tracker.Update(ctx, userID); err != nil {
			errs = append(errs, fmt.Errorf("update %s: %w", tracker.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) userIDs(ctx context.Context) ([]string, error) {
	if len(s.staticUsers) > 0 {
		return s.staticUsers, nil
	}
	if s.users == nil {
		return nil, nil
	}
	ids, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return ids, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
