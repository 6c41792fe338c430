package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/urlguard/internal/analysis"
	"github.com/MrSnakeDoc/urlguard/internal/config"
	"github.com/MrSnakeDoc/urlguard/internal/httpserver"
	"github.com/MrSnakeDoc/urlguard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
	"github.com/MrSnakeDoc/urlguard/internal/metrics"
	"github.com/MrSnakeDoc/urlguard/internal/mlmodel"
	"github.com/MrSnakeDoc/urlguard/internal/reputation"
	"github.com/MrSnakeDoc/urlguard/internal/scheduler"
	"github.com/MrSnakeDoc/urlguard/internal/signalcache"
	"github.com/MrSnakeDoc/urlguard/internal/signals"
	"github.com/MrSnakeDoc/urlguard/internal/store"
	"github.com/MrSnakeDoc/urlguard/internal/version"
)

// App owns every long-lived component. CLI commands build one, use the
// parts they need and Close it.
type App struct {
	Config     *config.Config
	Logger     logger.Logger
	Metrics    *metrics.Metrics
	Store      store.Store
	Signals    signalcache.Cache
	Gatherers  *signals.Gatherer
	Model      *mlmodel.Model
	Reputation *reputation.Cache
	Analysis   *analysis.Service
	Refresher  *scheduler.Refresher

	seeder      *scheduler.Seeder
	seedTrigger chan struct{}
}

// New wires the application from cfg. The store connection is required;
// the Redis signal cache falls back to memory when unreachable.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	m := metrics.New()

	st, err := store.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s reputation store: %w", cfg.StoreBackend, err)
	}

	sc, err := signalcache.Open(ctx, cfg, log)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to open signal cache: %w", err)
	}
	log.Info("signal cache ready", logger.String("backend", sc.Backend()))

	gatherers := signals.New(cfg, sc, log)
	model := mlmodel.New(mlmodel.LoadConfig(cfg.ModelPath, cfg.ModelDefaultPath, log))
	cache := reputation.New(st, m, log)
	svc := analysis.NewService(cache, gatherers, model, m, log)

	a := &App{
		Config:     cfg,
		Logger:     log,
		Metrics:    m,
		Store:      st,
		Signals:    sc,
		Gatherers:  gatherers,
		Model:      model,
		Reputation: cache,
		Analysis:   svc,
		Refresher: scheduler.NewRefresher(cache, svc, m, log, scheduler.RefresherConfig{
			Interval:    cfg.RefreshInterval,
			Target:      cfg.RefreshTarget,
			Limit:       cfg.RefreshLimit,
			Concurrency: cfg.RefreshConcurrency,
		}),
	}

	if cfg.SeedFile != "" {
		a.seedTrigger = make(chan struct{}, 1)
		a.seeder = scheduler.NewSeeder(cfg.SeedFile, cache, log, a.seedTrigger)
	} else {
		log.Info("seed file not configured, seed lists disabled")
	}
	return a, nil
}

// Serve loads the seed lists, starts the refresher and the HTTP server, and
// blocks until ctx is cancelled or the server fails.
func (a *App) Serve(ctx context.Context) error {
	a.Logger.Infof("🚀 Starting urlguard %s on %s", version.String(), a.Config.ListenPort)

	if a.seeder != nil {
		if err := a.seeder.Start(ctx); err != nil {
			return fmt.Errorf("failed to start seeder: %w", err)
		}
		defer a.seeder.Stop()
	}

	refreshDone := make(chan struct{})
	go func() {
		defer close(refreshDone)
		a.Refresher.Start(ctx)
	}()
	defer func() {
		a.Refresher.Stop()
		<-refreshDone
	}()

	server := httpserver.New(a.Config, a.Logger, a.deps())

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.Logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

func (a *App) deps() deps.Deps {
	return deps.Deps{
		Logger:            a.Logger,
		StartTime:         time.Now(),
		Version:           version.Version,
		Commit:            version.Commit,
		BuildDate:         version.BuildDate,
		GoVersion:         version.GoVersion,
		AllowedHosts:      a.Config.AllowedHosts,
		AllowedCIDRS:      a.Config.AllowedCIDRS,
		TrustProxy:        a.Config.TrustProxy,
		Analysis:          a.Analysis,
		Reputation:        a.Reputation,
		Refresher:         a.Refresher,
		Gatherers:         a.Gatherers,
		SignalCache:       a.Signals,
		Model:             a.Model,
		Metrics:           a.Metrics,
		RefreshLimit:      a.Config.RefreshLimit,
		SeedReloadTrigger: a.seedTrigger,
		RateLimit: deps.RateLimit{
			Burst:      a.Config.RateLimitBurst,
			PerMinute:  a.Config.RateLimitPerMin,
			MaxClients: a.Config.RateLimitMaxIPs,
		},
	}
}

// Close releases the store and the signal cache.
func (a *App) Close() error {
	var errs []error
	if err := a.Signals.Close(); err != nil {
		errs = append(errs, fmt.Errorf("signal cache: %w", err))
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("failed to close cleanly", logger.Error(err))
		return err
	}
	a.Logger.Info("✅ urlguard stopped cleanly")
	return nil
}
