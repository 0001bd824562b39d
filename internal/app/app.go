package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pattern-alerts/internal/alert"
	"pattern-alerts/internal/alerting"
	"pattern-alerts/internal/analysis"
	"pattern-alerts/internal/config"
	"pattern-alerts/internal/fetcher"
	"pattern-alerts/internal/pattern"
	"pattern-alerts/internal/scheduler"
	"pattern-alerts/internal/series"
	"pattern-alerts/internal/service"
	"pattern-alerts/internal/state"
	"pattern-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() fetcher.SeriesFetcher {
	return fetcher.NewCoinalyze(fetcher.CoinalyzeOptions{
		BaseURL:   a.Config.Coinalyze.BaseURL,
		APIKey:    a.Config.Coinalyze.APIKey,
		Symbol:    a.Config.Coinalyze.Symbol,
		Interval:  a.Config.Coinalyze.Interval,
		Timeout:   a.Config.Coinalyze.RequestTimeout,
		UserAgent: a.Config.Coinalyze.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, storage.PoolConfig{
		DSN:             a.Config.Database.DSN,
		MaxOpenConns:    a.Config.Database.MaxOpenConns,
		MaxIdleConns:    a.Config.Database.MaxIdleConns,
		ConnMaxLifetime: a.Config.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newStateStore selects the persisted alert-state backend from config.
func (a *App) newStateStore(store *storage.Store) (state.Store, func(), error) {
	switch a.Config.State.Backend {
	case "postgres":
		if store == nil {
			return nil, nil, errors.New("postgres state backend requires database.dsn")
		}
		return state.NewPostgresStore(store.Pool(), a.Logger), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		closer := func() { _ = client.Close() }
		return state.NewRedisStore(client, a.Config.State.KeyPrefix, a.Logger), closer, nil
	default:
		return state.NewFileStore(a.Config.State.FilePath, a.Logger), nil, nil
	}
}

// newService assembles the cycle pipeline around the given collaborators.
func (a *App) newService(sched *scheduler.Scheduler, fetch fetcher.SeriesFetcher, store *storage.Store, states state.Store, notifier alerting.Notifier, dryRun bool) *service.Service {
	table := a.Config.ThresholdTable()

	deps := service.Deps{
		Scheduler: sched,
		Fetcher:   fetch,
		Samples: series.NewStore(series.Options{
			Retention: a.Config.Analysis.Retention,
			ClockSkew: a.Config.Analysis.ClockSkew,
		}),
		Analyzer: analysis.New(table, a.Config.Analysis.Windows),
		Composer: pattern.NewComposer(a.Config.CrossSignalRules()),
		Engine:   alert.NewEngine(table, a.Config.Alerting.MaxSilence),
		States:   states,
		Notifier: notifier,
		Logger:   a.Logger,
	}
	if store != nil {
		deps.Mirror = store
		deps.Audit = store
		deps.Locker = store
	}

	return service.New(deps, service.Options{
		Instrument:      a.Config.App.Instrument,
		HistoryWindow:   a.Config.HistoryWindow(),
		Retention:       a.Config.Analysis.Retention,
		LockKey:         a.Config.Scheduler.AdvisoryLockKey,
		Channels:        a.Config.Alerting.Channels,
		AlertsOn:        a.Config.Alerting.Enabled,
		MirrorRetention: a.Config.Database.SampleRetention,
		DryRun:          dryRun,
	})
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; sample mirror and audit trail disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	states, closeStates, err := a.newStateStore(store)
	if err != nil {
		return err
	}
	if closeStates != nil {
		defer closeStates()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newService(sched, a.newFetcher(), store, states, a.newNotifier(), false)

	a.Logger.Info().Str("instrument", a.Config.App.Instrument).Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Metric string
	Alerts bool
	Limit  int
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	Metric    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}
