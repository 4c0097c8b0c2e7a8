package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/rrweller/finn-apartment-finder/internal/application/mapview"
	"github.com/rrweller/finn-apartment-finder/internal/application/routecache"
	"github.com/rrweller/finn-apartment-finder/internal/config"
	"github.com/rrweller/finn-apartment-finder/internal/domain/overlay"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/cache/redis"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/logging"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/prometheus"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/tracing"
	httpapi "github.com/rrweller/finn-apartment-finder/internal/interfaces/http"
	"github.com/rrweller/finn-apartment-finder/internal/interfaces/http/handlers"
	"github.com/rrweller/finn-apartment-finder/internal/interfaces/http/middleware"
	"github.com/rrweller/finn-apartment-finder/pkg/client"
)

// App is the wired service.
type App struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *prometheus.AppMetrics
	Store   *mapview.Store
	Server  *httpapi.Server

	redis         *redis.Client
	shutdownTrace tracing.ShutdownFunc
}

// upstreamLogger adapts the service logger to the SDK's printf logger.
type upstreamLogger struct{ l logging.Logger }

func (u upstreamLogger) Debugf(format string, args ...interface{}) { u.l.Debug(fmt.Sprintf(format, args...)) }
func (u upstreamLogger) Infof(format string, args ...interface{})  { u.l.Info(fmt.Sprintf(format, args...)) }
func (u upstreamLogger) Errorf(format string, args ...interface{}) { u.l.Error(fmt.Sprintf(format, args...)) }

// BuildApp wires tracing, metrics, the upstream client, the optional redis
// route store, the session store and the HTTP server from cfg.
func BuildApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	shutdown, err := tracing.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, err
	}
	app.shutdownTrace = shutdown

	var collector prometheus.MetricsCollector
	if cfg.Metrics.Enabled {
		collector, err = prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger)
		if err != nil {
			return nil, err
		}
		app.Metrics = prometheus.NewAppMetrics(collector)
	} else {
		app.Metrics = prometheus.NewNoopAppMetrics()
	}

	upLog := logger.Named("upstream")
	api, err := client.NewClient(cfg.Upstream.BaseURL,
		client.WithTimeout(cfg.Upstream.Timeout),
		client.WithUserAgent(cfg.Upstream.UserAgent),
		client.WithLogger(upstreamLogger{upLog}),
		client.WithTracer(otel.Tracer(tracing.TracerName)),
		client.WithRequestIDFunc(logging.RequestIDFromContext),
		client.WithObserver(func(method, path string, status int, elapsed time.Duration, err error) {
			prometheus.RecordUpstreamCall(app.Metrics, path, status, elapsed, err)
			logging.LogUpstreamCall(upLog, method, path, status, elapsed, err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("upstream client: %w", err)
	}

	var (
		routes   routecache.Fetcher = api
		checkers []handlers.HealthChecker
	)
	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(cfg.Redis, logger.Named("redis"))
		if err != nil {
			// Routes still work without the shared store.
			logger.Warn("redis unavailable, sharing routes per session only", logging.Err(err))
		} else {
			app.redis = rc
			cache := redis.NewRedisCache(rc, logger,
				redis.WithPrefix(cfg.Redis.KeyPrefix),
				redis.WithDefaultTTL(cfg.Redis.RouteTTL),
			)
			routes = redis.NewRouteStore(cache, api, cfg.Redis.RouteTTL, logger, app.Metrics)
			checkers = append(checkers, handlers.CheckFunc{CheckName: "redis", Fn: rc.Ping})
		}
	}

	app.Store = mapview.NewStore(mapview.StoreConfig{
		IdleTTL:       cfg.Session.IdleTTL,
		SweepInterval: cfg.Session.SweepInterval,
		MaxSessions:   cfg.Session.MaxSessions,
	}, mapview.Deps{
		Upstream:     api,
		Routes:       routes,
		Palette:      overlay.Palette(cfg.Overlay.Palette),
		SpreadRadius: cfg.Overlay.SpreadRadiusMeters,
		HullVisible:  cfg.Overlay.HullVisible,
		Timeout:      cfg.Upstream.Timeout,
		Logger:       logger,
		Metrics:      app.Metrics,
	})

	gin.SetMode(cfg.Server.Mode)
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.Server.CORSOrigins
	logCfg := middleware.DefaultLoggingConfig()
	logCfg.SkipPaths = append(logCfg.SkipPaths, cfg.Metrics.Path)

	routerCfg := httpapi.RouterConfig{
		SessionHandler: handlers.NewSessionHandler(app.Store, logger),
		GeocodeHandler: handlers.NewGeocodeHandler(api),
		HealthHandler:  handlers.NewHealthHandler(Version, checkers...),
		CORS:           cors,
		Logging:        logCfg,
		MaxBodySize:    cfg.Server.MaxBodySize,
		Logger:         logger.Named("http"),
		Metrics:        app.Metrics,
		MetricsPath:    cfg.Metrics.Path,
	}
	if cfg.Tracing.Enabled {
		routerCfg.TracerName = tracing.TracerName
	}
	if collector != nil {
		routerCfg.MetricsCollector = collector
	}
	app.Server = httpapi.NewServer(cfg.Server, httpapi.NewRouter(routerCfg), logger)
	return app, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Server.Start()
	})
	g.Go(func() error {
		a.Store.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		return a.Server.Stop(stopCtx)
	})

	err := g.Wait()
	a.Close(context.Background())
	return err
}

// Close releases redis and flushes traces.
func (a *App) Close(ctx context.Context) {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.shutdownTrace != nil {
		tracing.ShutdownWithTimeout(ctx, a.shutdownTrace, a.Logger)
	}
	_ = a.Logger.Sync()
}
