package stats

import (
	"tsr_go/internal/registry"
	"tsr_go/pkg/storage"

	"github.com/gin-gonic/gin"
)

// SetupRoutes регистрирует маршруты мониторинга.
func SetupRoutes(r *gin.RouterGroup, db *storage.DB, reg *registry.Registry) {
	h := NewHandler(db, reg)
	r.GET("/queue", h.QueueStats)
	r.GET("/sessions", h.SessionStats)
}
