package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/naseer2426/ocr-server/internal/health"
	"github.com/naseer2426/ocr-server/internal/stats"
)

// HealthCheck reports that the process is serving requests.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness reports the last engine self-test; 503 until one has passed.
func Readiness(monitor *health.Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := monitor.Status()
		code := http.StatusOK
		if !status.OK {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}

func Stats(store *stats.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, store.Snapshot())
	}
}
