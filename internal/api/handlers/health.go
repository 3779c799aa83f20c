package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/gridironlabs/ffpipeline/pkg/database"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db     *database.DB
	redis  *redis.Client
	logger *logrus.Logger
}

func NewHealthHandler(db *database.DB, redisClient *redis.Client, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, logger: logger}
}

// GetHealth returns the basic health status
func (h *HealthHandler) GetHealth(c *gin.Context) {
	status := "ok"
	checks := make(map[string]string)

	if err := h.db.HealthCheck(); err != nil {
		status = "unhealthy"
		checks["database"] = "failed: " + err.Error()
	} else {
		checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			status = "unhealthy"
			checks["redis"] = "failed: " + err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	statusCode := http.StatusOK
	if status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "ffpipeline",
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}
