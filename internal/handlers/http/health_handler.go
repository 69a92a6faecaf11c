package http

import (
	"net/http"
	"time"

	"edgestream/internal/core/ports"
	"edgestream/internal/infrastructure/loadbalancer"
	"edgestream/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type HealthHandler struct {
	sessions  ports.SessionService
	analytics ports.AnalyticsService
	edges     ports.EdgeSelector
	checker   *monitoring.HealthChecker
	startTime time.Time
	logger    *zap.SugaredLogger
}

func NewHealthHandler(
	sessions ports.SessionService,
	analytics ports.AnalyticsService,
	edges ports.EdgeSelector,
	checker *monitoring.HealthChecker,
	logger *zap.SugaredLogger,
) *HealthHandler {
	return &HealthHandler{
		sessions:  sessions,
		analytics: analytics,
		edges:     edges,
		checker:   checker,
		startTime: time.Now(),
		logger:    logger,
	}
}

func (h *HealthHandler) SetupRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/edges", h.Edges)
}

// Health reports counters and simulated edge status. Count failures degrade the
// status instead of failing the request.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	status := monitoring.StatusHealthy

	sessions, err := h.sessions.Count(ctx)
	if err != nil {
		h.logger.Warnw("failed to count sessions", "error", err)
		status = monitoring.StatusDegraded
	}
	events, err := h.analytics.Count(ctx)
	if err != nil {
		h.logger.Warnw("failed to count analytics events", "error", err)
		status = monitoring.StatusDegraded
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          status,
		"timestamp":       time.Now().UTC(),
		"uptime":          time.Since(h.startTime).Round(time.Second).String(),
		"activeSessions":  sessions,
		"analyticsEvents": events,
		"edgeLocations":   loadbalancer.Statuses(h.edges.Locations()),
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	result := h.checker.CheckAll(c.Request.Context())
	code := http.StatusOK
	if result.Status != monitoring.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, result)
}

func (h *HealthHandler) Edges(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"edges": loadbalancer.Statuses(h.edges.Locations()),
	})
}
