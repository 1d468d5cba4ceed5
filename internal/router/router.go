package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/salon-booking/config"
	"github.com/jwalitptl/salon-booking/internal/middleware"
	"github.com/jwalitptl/salon-booking/pkg/logger"
	"github.com/jwalitptl/salon-booking/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type EngineHandler interface {
	RegisterRoutes(*gin.Engine)
}

type RootHandler interface {
	RegisterRoutes(gin.IRoutes)
}

type Router struct {
	engine   *gin.Engine
	healthH  RootHandler
	bookingH Handler
	adminH   EngineHandler
	metricsH gin.HandlerFunc
	config   RouterConfig
}

type RouterConfig struct {
	RateLimit   config.RateLimitConfig
	CORSConfig  middleware.CORSConfig
	MetricsPath string
	VisitorTTL  time.Duration
	// SecureCookies marks the visitor cookie HTTPS only.
	SecureCookies bool
}

// NewRouter wires the middleware chain. metricsH may be nil when metrics are
// not exposed.
func NewRouter(
	log *logger.Logger,
	m *metrics.Metrics,
	healthH RootHandler,
	bookingH Handler,
	adminH EngineHandler,
	metricsH gin.HandlerFunc,
	cfg RouterConfig,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:   engine,
		healthH:  healthH,
		bookingH: bookingH,
		adminH:   adminH,
		metricsH: metricsH,
		config:   cfg,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.Metrics(m),
		middleware.CORS(cfg.CORSConfig),
	)

	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	r.healthH.RegisterRoutes(r.engine)
	if r.metricsH != nil {
		r.engine.GET(r.config.MetricsPath, r.metricsH)
	}

	// everything a visitor touches carries the visitor cookie
	site := r.engine.Group("")
	site.Use(middleware.Visitor(r.config.VisitorTTL, r.config.SecureCookies))

	api := site.Group("/api")
	r.bookingH.RegisterRoutes(api)

	r.adminH.RegisterRoutes(r.engine)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
