package sessions

import (
	"tsr_go/internal/registry"
	"tsr_go/pkg/storage"

	"github.com/gin-gonic/gin"
)

// SetupRoutes регистрирует маршруты онбординга и управления сессиями.
func SetupRoutes(r *gin.RouterGroup, db *storage.DB, reg *registry.Registry) {
	h := NewHandler(db, reg)
	r.POST("/create", h.CreateSession)
	r.POST("/proxy", h.CreateProxy)
	r.POST("/verify", h.VerifySession)
	r.GET("", h.ListSessions)
	r.GET("/:id/groups", h.SessionGroups)
	r.POST("/:id/refresh-groups", h.RefreshGroups)
	r.DELETE("/:id", h.DeleteSession)
}
