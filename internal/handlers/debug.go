package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/telemetry"
)

// PresenceStats exposes the live presence counters.
type PresenceStats interface {
	Snapshot() []int
	SessionCount() int
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, stats PresenceStats, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), auditRecord(c, "audit_test", 0, "audit test"))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/presence", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"online":   stats.Snapshot(),
			"sessions": stats.SessionCount(),
		})
	})
}
