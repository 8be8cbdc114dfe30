package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"skywatch/internal/alerting"
	"skywatch/internal/config"
	"skywatch/internal/ephemeris"
	"skywatch/internal/fetcher"
	"skywatch/internal/metrics"
	"skywatch/internal/scanner"
	"skywatch/internal/scheduler"
	"skywatch/internal/service"
	"skywatch/internal/storage"
	"skywatch/internal/synthesis"
	"skywatch/internal/tracking"
)

// Runtime holds every shared collaborator. It is built once per process and passed to whatever
// needs it.
type Runtime struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer

	Metrics      *metrics.Metrics
	Store        storage.Backend
	Provider     ephemeris.Provider
	Weather      fetcher.SpaceWeather
	Solar        *tracking.SolarModule
	Registry     *tracking.Registry
	Records      *synthesis.CacheRecordStore
	Queue        *synthesis.KafkaQueue
	Orchestrator *synthesis.Orchestrator
	Scanner      *scanner.Scanner

	closers []func()
}

// NewRuntime wires the runtime from configuration. Without database.dsn an in-process store is
// used and nothing survives the process.
func NewRuntime(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{
		Config:   cfg,
		Logger:   logger.With().Str("component", "app").Logger(),
		Out:      os.Stdout,
		Metrics:  metrics.New(),
		Provider: ephemeris.NewAnalytic(),
	}

	if err := rt.openStore(ctx); err != nil {
		return nil, err
	}

	rt.Weather = fetcher.NewSWPC(fetcher.SWPCOptions{
		BaseURL:   cfg.SWPC.BaseURL,
		Timeout:   cfg.SWPC.RequestTimeout,
		UserAgent: cfg.SWPC.UserAgent,
	}, logger)

	rt.Queue = synthesis.NewKafkaQueue(cfg.Queue.Brokers, cfg.Queue.Topic)
	if rt.Queue == nil {
		rt.Logger.Warn().Msg("queue.brokers not configured; background synthesis runs in-process")
	} else {
		rt.closers = append(rt.closers, func() { _ = rt.Queue.Close() })
	}

	rt.wire(rt.Weather, logger)
	return rt, nil
}

// NewMemoryRuntime builds a runtime on an in-process store with the given external feeds.
func NewMemoryRuntime(cfg *config.Config, weather fetcher.SpaceWeather, provider ephemeris.Provider, logger zerolog.Logger) *Runtime {
	rt := &Runtime{
		Config:   cfg,
		Logger:   logger.With().Str("component", "app").Logger(),
		Out:      os.Stdout,
		Metrics:  metrics.New(),
		Store:    storage.NewMemory(),
		Provider: provider,
		Weather:  weather,
	}
	rt.wire(weather, logger)
	return rt
}

// wire builds the orchestrator, trackers and scanner. The registry is created empty so the digest
// synthesizer and the trackers can reference each other.
func (r *Runtime) wire(weather fetcher.SpaceWeather, logger zerolog.Logger) {
	cfg := r.Config

	r.Registry = tracking.NewRegistry()
	r.Records = synthesis.NewCacheRecordStore(r.Store, cfg.Synthesis.StaleAfter, cfg.Synthesis.RecordTTL)

	var queue synthesis.Queue
	if r.Queue != nil {
		queue = r.Queue
	}
	r.Orchestrator = synthesis.New(r.Records, tracking.NewResultDigest(r.Registry), queue, r.newPublisher(logger), synthesis.Options{
		LocalTimeout: cfg.Synthesis.LocalTimeout,
		Metrics:      r.Metrics,
	}, logger)

	deps := tracking.Deps{Cache: r.Store, History: r.Store, Sink: r.Orchestrator, Metrics: r.Metrics}
	opts := tracking.Options{HistoryRetention: cfg.Tracking.HistoryRetention}

	r.Solar = tracking.NewSolarModule(weather, tracking.SolarOptions{
		Interval:     cfg.Tracking.SolarInterval,
		FetchTimeout: cfg.SWPC.RequestTimeout,
		FlareWindow:  cfg.SWPC.FlareWindow,
	}, logger)
	lunar := tracking.NewLunarModule(r.Provider, r.Store, tracking.LunarOptions{
		Interval:            cfg.Tracking.LunarInterval,
		ReferenceModule:     cfg.Tracking.ReferenceModule,
		VoidDegreeThreshold: cfg.Tracking.Lunar.VoidDegreeThreshold,
		VoidLookahead:       cfg.Tracking.Lunar.VoidLookahead,
	}, logger)
	transit := tracking.NewTransitModule(r.Provider, r.Store, tracking.TransitOptions{
		Interval:        cfg.Tracking.TransitInterval,
		ReferenceModule: cfg.Tracking.ReferenceModule,
		EmitExactEvents: cfg.Tracking.Transit.EmitExactEvents,
	}, logger)

	r.Registry.Register(
		tracking.NewTracker(r.Solar, deps, opts, logger),
		tracking.NewTracker(lunar, deps, opts, logger),
		tracking.NewTracker(transit, deps, opts, logger),
	)

	r.Scanner = scanner.New(r.Provider, r.Store, scanner.Options{
		ReferenceModule:     cfg.Tracking.ReferenceModule,
		VoidDegreeThreshold: cfg.Tracking.Lunar.VoidDegreeThreshold,
		MaxDays:             cfg.Scanner.MaxDays,
	}, logger)
}

func (r *Runtime) newPublisher(logger zerolog.Logger) synthesis.Publisher {
	publishers := alerting.Fanout{alerting.NewLogNotifier(logger)}
	if r.Config.Alerting.Enabled && r.Config.Alerting.Telegram.Enabled {
		tg := r.Config.Alerting.Telegram
		publishers = append(publishers, alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, 10*time.Second, logger))
	}
	return publishers
}

func (r *Runtime) openStore(ctx context.Context) error {
	if r.Config.Database.DSN == "" {
		r.Logger.Warn().Msg("database.dsn not configured; using in-process storage")
		r.Store = storage.NewMemory()
		return nil
	}

	pool, err := storage.NewPool(ctx, r.Config.Database)
	if err != nil {
		return err
	}
	store := storage.NewStore(pool)
	r.Store = store
	r.closers = append(r.closers, store.Close)
	return nil
}

// Close waits for in-process synthesis work and releases the queue and the store.
func (r *Runtime) Close() {
	if r.Orchestrator != nil {
		r.Orchestrator.Wait()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Run executes the long-running sweep service together with the metrics endpoint.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched, err := scheduler.New(scheduler.Options{
		Interval:      r.Config.Scheduler.Interval,
		AlignToBucket: r.Config.Scheduler.AlignToBucket,
		StartupDelay:  r.Config.Scheduler.StartupDelay,
		Immediate:     true,
	}, r.Logger)
	if err != nil {
		return err
	}

	svc := service.New(service.Options{
		BatchSize: r.Config.Tracking.BatchSize,
		Users:     r.Config.Tracking.Users,
		LockKey:   r.Config.Scheduler.AdvisoryLockKey,
	}, sched, r.Registry, r.Store, r.Metrics, r.Logger)

	g, gctx := errgroup.WithContext(ctx)
	if r.Config.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              r.Config.Metrics.Addr,
			Handler:           r.metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			r.Logger.Info().Str("addr", srv.Addr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		r.Logger.Info().Strs("modules", r.Registry.Names()).Msg("starting tracking service")
		return svc.Run(gctx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		r.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	r.Logger.Info().Msg("tracking service stopped")
	return nil
}

func (r *Runtime) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Worker consumes queued synthesis jobs until interrupted.
func (r *Runtime) Worker(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	consumer, err := synthesis.NewConsumer(synthesis.ConsumerOptions{
		Brokers:    r.Config.Queue.Brokers,
		Topic:      r.Config.Queue.Topic,
		GroupID:    r.Config.Queue.GroupID,
		JobTimeout: r.Config.Synthesis.LocalTimeout,
	}, r.Logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	return consumer.Run(ctx, r.Orchestrator.RunJob)
}

// ExportOptions hold parameters for exporting tracked history.
type ExportOptions struct {
	UserID    string
	Module    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	UserID string
	Module string
	Limit  int
}

// BackfillOptions configure a history backfill.
type BackfillOptions struct {
	UserID  string
	Module  string
	From    time.Time
	To      time.Time
	Step    time.Duration
	DryRun  bool
	Workers int
}
