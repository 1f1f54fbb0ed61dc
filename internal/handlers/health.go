// Package handlers implements the gin HTTP surface of §6, translating
// domain service calls into requests/responses and mapping apperr.Kind to
// HTTP status via errorStatus — replacing the teacher's crude
// strings.Contains(err.Error(), "...") error-to-status mapping with an
// explicit table.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/shearline/booking-core/pkg/logger"
	"gorm.io/gorm"
)

// HealthHandler exposes liveness/readiness checks, grounded on the
// teacher's handlers.go HealthHandler.
type HealthHandler struct {
	db     *gorm.DB
	redis  *redis.Client
	nats   *nats.Conn
	logger *logger.Logger
}

func NewHealthHandler(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn, log *logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, nats: natsConn, logger: log}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "booking-core"})
}

// Ready checks the database and redis connections are actually reachable.
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := gin.H{}
	ready := true

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.Ping() != nil {
		checks["database"] = "unreachable"
		ready = false
	} else {
		checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			checks["redis"] = "unreachable"
			ready = false
		} else {
			checks["redis"] = "ok"
		}
	}

	if h.nats != nil && !h.nats.IsConnected() {
		checks["nats"] = "unreachable"
	} else if h.nats != nil {
		checks["nats"] = "ok"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": map[bool]string{true: "ready", false: "not_ready"}[ready], "checks": checks})
}

func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}
