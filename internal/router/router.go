package router

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/berth-ops/notify-api/internal/handler"
	"github.com/berth-ops/notify-api/internal/middleware"
	"github.com/berth-ops/notify-api/pkg/auth"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
	CORS           middleware.CORSConfig
}

func DefaultConfig() Config {
	return Config{
		RateLimitRPS:   50,
		RateLimitBurst: 100,
		RequestTimeout: 30 * time.Second,
		CORS:           middleware.DefaultCORSConfig(),
	}
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	eventH   Handler
	channelH Handler
	ruleH    Handler
	historyH Handler
	h        *handler.Handler
	limiter  *middleware.RateLimiter
	metrics  *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

func NewRouter(
	authMW *middleware.AuthMiddleware,
	eventH Handler,
	channelH Handler,
	ruleH Handler,
	historyH Handler,
	h *handler.Handler,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     authMW,
		eventH:   eventH,
		channelH: channelH,
		ruleH:    ruleH,
		historyH: historyH,
		h:        h,
		metrics:  initRouterMetrics(),
	}

	if config.RequestTimeout <= 0 {
		config.RequestTimeout = middleware.DefaultTimeoutConfig().Duration
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.ErrorHandler(),
		r.metricsMiddleware(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
	)

	engine.Use(middleware.CORS(config.CORS))

	r.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RPS:   config.RateLimitRPS,
		Burst: config.RateLimitBurst,
	})

	return r
}

func (r *Router) Setup() {
	r.setupHealthCheck()

	api := r.engine.Group("/api/v1")

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	// Event ingestion is open to any producer on the panel network but
	// shares a rate limit budget.
	ingest := api.Group("")
	ingest.Use(r.limiter.RateLimit())
	r.eventH.RegisterRoutes(ingest)

	// The configuration surface requires a service token. Viewer tokens
	// may read; mutations need the admin role.
	protected := api.Group("")
	protected.Use(r.auth.Authenticate(), r.adminWrites())
	r.channelH.RegisterRoutes(protected)
	r.ruleH.RegisterRoutes(protected)
	r.historyH.RegisterRoutes(protected)
}

func (r *Router) setupHealthCheck() {
	health := r.engine.Group("/health")
	{
		health.GET("/live", r.h.LivenessCheck)
		health.GET("/ready", r.h.ReadinessCheck)
	}

	r.engine.GET("/metrics", r.h.MetricsHandler)
}

func (r *Router) adminWrites() gin.HandlerFunc {
	requireAdmin := r.auth.RequireRole(auth.RoleAdmin)
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			requireAdmin(c)
		default:
			c.Next()
		}
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) Use(middleware ...gin.HandlerFunc) {
	r.engine.Use(middleware...)
}

// Router metrics register once per process so tests can build routers
// freely.
var (
	metricsOnce   sync.Once
	sharedMetrics *routerMetrics
)

func initRouterMetrics() *routerMetrics {
	metricsOnce.Do(func() {
		sharedMetrics = &routerMetrics{
			requestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name: "notify_api_request_duration_seconds",
					Help: "Duration of HTTP requests in seconds",
				},
				[]string{"method", "path", "status"},
			),
			requestTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "notify_api_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			errorTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "notify_api_errors_total",
					Help: "Total number of HTTP errors",
				},
				[]string{"method", "path", "type"},
			),
		}
	})
	return sharedMetrics
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		status := fmt.Sprintf("%d", c.Writer.Status())
		duration := time.Since(start).Seconds()

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()

		if c.Writer.Status() >= 400 {
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "http").Inc()
		}
	}
}
