package http

import (
	"context"
	"net/http"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	"callrelay/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
	webrtc "github.com/pion/webrtc/v3"
)

const readinessTimeout = 2 * time.Second

type SignalHandler struct {
	registry   ports.ConnectionRegistry
	sessions   ports.SessionService
	pairing    domain.PairingMode
	iceServers []webrtc.ICEServer
	health     *monitoring.HealthChecker
	instanceID string
	startTime  time.Time
}

func NewSignalHandler(
	registry ports.ConnectionRegistry,
	sessions ports.SessionService,
	pairing domain.PairingMode,
	iceServers []webrtc.ICEServer,
	health *monitoring.HealthChecker,
	instanceID string,
) *SignalHandler {
	return &SignalHandler{
		registry:   registry,
		sessions:   sessions,
		pairing:    pairing,
		iceServers: iceServers,
		health:     health,
		instanceID: instanceID,
		startTime:  time.Now(),
	}
}

var _ ports.HTTPHandler = (*SignalHandler)(nil)

func (h *SignalHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)

	api := router.Group("/api/v1")
	{
		api.GET("/ice-servers", h.GetICEServers)
		api.GET("/stats", h.GetStats)
	}
}

func (h *SignalHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).String(),
	})
}

func (h *SignalHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	status := h.health.CheckAll(ctx)
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *SignalHandler) GetICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ice_servers": h.iceServers,
	})
}

func (h *SignalHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"instance_id":     h.instanceID,
		"pairing":         h.pairing,
		"connections":     h.registry.ActiveCount(ctx),
		"rooms":           h.registry.RoomCount(ctx),
		"active_sessions": h.sessions.ActiveSessions(ctx),
		"uptime":          time.Since(h.startTime).String(),
	})
}
