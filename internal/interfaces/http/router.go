package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/logging"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/prometheus"
	"github.com/rrweller/finn-apartment-finder/internal/interfaces/http/handlers"
	"github.com/rrweller/finn-apartment-finder/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware settings of the API.
type RouterConfig struct {
	SessionHandler *handlers.SessionHandler
	GeocodeHandler *handlers.GeocodeHandler
	HealthHandler  *handlers.HealthHandler

	CORS        middleware.CORSConfig
	Logging     middleware.LoggingConfig
	MaxBodySize int64
	TracerName  string
	MetricsPath string

	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
}

// NewRouter builds the gin engine: global middleware, probes, /metrics and
// the /api/v1 tree.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.RequestLogging(cfg.Logger, cfg.Logging))
	r.Use(middleware.Metrics(cfg.Metrics))
	if cfg.TracerName != "" {
		r.Use(middleware.Tracing(cfg.TracerName))
	}
	if cfg.MaxBodySize > 0 {
		r.Use(limitBody(cfg.MaxBodySize))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Code: "COMMON_005", Message: "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, handlers.ErrorResponse{Code: "COMMON_002", Message: "method not allowed"})
	})

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	api := r.Group("/api/v1")
	if cfg.SessionHandler != nil {
		cfg.SessionHandler.RegisterRoutes(api)
	}
	if cfg.GeocodeHandler != nil {
		cfg.GeocodeHandler.RegisterRoutes(api)
	}

	return r
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
