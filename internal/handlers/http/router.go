package http

import (
	"edgestream/internal/core/ports"
	"edgestream/internal/infrastructure/middleware"
	"edgestream/internal/infrastructure/monitoring"
	"edgestream/pkg/config"
	"edgestream/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services is everything the HTTP surface needs. Collector and Gatherer may be nil.
type Services struct {
	Manifests ports.ManifestService
	Segments  ports.SegmentService
	Analytics ports.AnalyticsService
	Bandwidth ports.BandwidthService
	Auth      ports.AuthService
	Sessions  ports.SessionService
	Edges     ports.EdgeSelector
	Health    *monitoring.HealthChecker
	Collector *monitoring.PrometheusCollector
	Gatherer  prometheus.Gatherer
}

// NewRouter builds the gin engine with the middleware chain and every route.
func NewRouter(cfg *config.Config, svc Services, log *zap.Logger) *gin.Engine {
	sugar := log.Sugar()

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(sugar))
	router.Use(middleware.AccessLogMiddleware(logger.NewContextLogger(log)))

	var (
		observer middleware.RequestObserver
		limited  middleware.RateLimitRecorder
	)
	if svc.Collector != nil {
		observer = svc.Collector
		limited = svc.Collector
	}
	router.Use(middleware.TracingMiddleware(observer))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg, limited))
	router.Use(middleware.ErrorHandlerMiddleware(sugar))

	NewManifestHandler(svc.Manifests).SetupRoutes(router)

	var segmentGuards []gin.HandlerFunc
	if cfg.Auth.RequireSegmentToken {
		segmentGuards = append(segmentGuards, middleware.SessionTokenMiddleware(svc.Auth))
	} else {
		segmentGuards = append(segmentGuards, middleware.OptionalSessionTokenMiddleware(svc.Auth))
	}
	NewSegmentHandler(svc.Segments).SetupRoutes(router, segmentGuards...)

	NewAnalyticsHandler(svc.Analytics).SetupRoutes(router)
	NewAuthHandler(svc.Auth).SetupRoutes(router)
	NewBandwidthHandler(svc.Bandwidth).SetupRoutes(router)
	NewHealthHandler(svc.Sessions, svc.Analytics, svc.Edges, svc.Health, sugar).SetupRoutes(router)

	if cfg.Monitoring.PrometheusEnabled && svc.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(svc.Gatherer, promhttp.HandlerOpts{})))
	}

	return router
}
