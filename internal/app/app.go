// Package app builds the long-lived watcher services from configuration and
// owns their shutdown order.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch/internal/api"
	"github.com/JakeFAU/stockwatch/internal/checker"
	"github.com/JakeFAU/stockwatch/internal/clock/system"
	"github.com/JakeFAU/stockwatch/internal/config"
	"github.com/JakeFAU/stockwatch/internal/extract"
	"github.com/JakeFAU/stockwatch/internal/fetcher"
	collyfetcher "github.com/JakeFAU/stockwatch/internal/fetcher/colly"
	"github.com/JakeFAU/stockwatch/internal/fetcher/detector"
	"github.com/JakeFAU/stockwatch/internal/fetcher/headless"
	"github.com/JakeFAU/stockwatch/internal/id/uuid"
	"github.com/JakeFAU/stockwatch/internal/notify"
	"github.com/JakeFAU/stockwatch/internal/policy/ratelimit"
	"github.com/JakeFAU/stockwatch/internal/scheduler"
	"github.com/JakeFAU/stockwatch/internal/state/gcs"
	"github.com/JakeFAU/stockwatch/internal/state/memory"
	"github.com/JakeFAU/stockwatch/internal/state/postgres"
	"github.com/JakeFAU/stockwatch/internal/state/sqlite"
	"github.com/JakeFAU/stockwatch/internal/stock"
)

// App holds the shared services for one process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     stock.Clock
	store     stock.StateStore
	fetcher   stock.Fetcher
	notifier  stock.Notifier
	checker   *checker.Checker
	scheduler *scheduler.Scheduler
	closers   []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// New wires every service. On error, anything already opened is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, clock: system.New()}

	store, err := OpenStore(ctx, cfg.State, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, namedCloser{name: "state store", c: store})

	f, browser, err := BuildFetcher(cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.fetcher = f
	if browser != nil {
		a.closers = append(a.closers, namedCloser{name: "headless browser", c: browser})
	}

	n, closers, err := BuildNotifier(ctx, cfg.Notify, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.notifier = n
	a.closers = append(a.closers, closers...)

	defaults := extract.Defaults{
		PositivePhrases: cfg.Extract.PositivePhrases,
		NegativePhrases: cfg.Extract.NegativePhrases,
	}
	a.checker = checker.New(
		a.fetcher,
		a.store,
		a.clock,
		func(t stock.Target) stock.Extractor { return extract.ForTarget(t, defaults) },
		checker.Config{MaxAttempts: cfg.Checker.MaxAttempts, BackoffUnit: cfg.Backoff()},
		logger.Named("checker"),
	)
	a.scheduler = scheduler.New(
		cfg.Targets,
		a.checker,
		a.notifier,
		a.clock,
		uuid.New(),
		scheduler.Config{
			Interval:       cfg.Interval(),
			Concurrency:    cfg.Checker.Concurrency,
			RunImmediately: cfg.RunImmediately,
			ShutdownGrace:  cfg.ShutdownGrace(),
		},
		logger.Named("scheduler"),
	)
	return a, nil
}

// Scheduler returns the cycle loop.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// Checker returns the single-target checker.
func (a *App) Checker() *checker.Checker {
	return a.checker
}

// Store returns the configured state store.
func (a *App) Store() stock.StateStore {
	return a.store
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Run drives cycles until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.scheduler.Run(ctx)
}

// RunOnce performs a single cycle over every target.
func (a *App) RunOnce(ctx context.Context) scheduler.CycleReport {
	return a.scheduler.RunOnce(ctx)
}

// Handler returns the HTTP handler for health, readiness and metrics.
func (a *App) Handler() http.Handler {
	return a.APIServer().Handler()
}

// APIServer builds the health/metrics HTTP surface.
func (a *App) APIServer() *api.Server {
	return api.NewServer(a.scheduler, a.store, a.cfg.Targets, a.clock, a.logger.Named("api"))
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", nc.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", nc.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenStore opens the state store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StateConfig, logger *zap.Logger) (stock.StateStore, error) {
	logger.Info("opening state store", zap.String("driver", cfg.Driver))
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "", "sqlite":
		s, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.Path, Table: cfg.Table})
		if err != nil {
			return nil, fmt.Errorf("open sqlite state: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, fmt.Errorf("open postgres state: %w", err)
		}
		return s, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		s, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("open gcs state: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown state driver %q", cfg.Driver)
	}
}

// BuildFetcher assembles colly, optional chromedp, the per-target router and
// the per-host throttle. The returned closer is the browser, if any.
func BuildFetcher(cfg config.Config, logger *zap.Logger) (stock.Fetcher, io.Closer, error) {
	httpFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	var (
		browser  stock.Fetcher
		closer   io.Closer
		promoter fetcher.Promoter
	)
	if cfg.Headless.Enabled {
		hf, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		browser, closer = hf, hf
		promoter = detector.NewHeuristic(cfg.Headless.PromotionThresh)
	} else {
		browser = headless.NewNoop()
	}

	router := fetcher.NewRouter(httpFetcher, browser, promoter, logger.Named("fetcher"))
	if cfg.HTTP.RatePerHost <= 0 {
		return router, closer, nil
	}
	limiter := ratelimit.New(ratelimit.Config{RatePerHost: cfg.HTTP.RatePerHost, Burst: cfg.HTTP.Burst})
	return ratelimit.Wrap(router, limiter), closer, nil
}

// BuildNotifier fans out to the log plus every configured channel.
func BuildNotifier(ctx context.Context, cfg config.NotifyConfig, logger *zap.Logger) (stock.Notifier, []namedCloser, error) {
	notifiers := notify.Multi{notify.NewLog(logger.Named("alerts"))}
	var closers []namedCloser

	if cfg.Pushover.Enabled() {
		p, err := notify.NewPushover(notify.PushoverConfig{
			UserKey:  cfg.Pushover.UserKey,
			APIToken: cfg.Pushover.APIToken,
			Endpoint: cfg.Pushover.Endpoint,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init pushover: %w", err)
		}
		notifiers = append(notifiers, p)
	}
	if cfg.Email.Enabled() {
		e, err := notify.NewEmail(notify.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init email: %w", err)
		}
		notifiers = append(notifiers, e)
	}
	if cfg.PubSub.Enabled() {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("create pubsub client: %w", err)
		}
		ps := notify.NewPubSub(client.Topic(cfg.PubSub.Topic))
		notifiers = append(notifiers, ps)
		closers = append(closers,
			namedCloser{name: "pubsub client", c: client},
			namedCloser{name: "pubsub topic", c: ps},
		)
	}
	logger.Info("notifiers configured", zap.Int("channels", len(notifiers)))
	return notifiers, closers, nil
}
