package subscriptions

import (
	"tsr_go/internal/registry"
	"tsr_go/pkg/storage"

	"github.com/gin-gonic/gin"
)

// SetupRoutes регистрирует маршруты аренды сессий.
func SetupRoutes(r *gin.RouterGroup, db *storage.DB, reg *registry.Registry) *Handler {
	h := NewHandler(db, reg)
	r.POST("", h.CreateSubscription)
	r.POST("/:id/cancel", h.CancelSubscription)
	r.GET("", h.ListSubscriptions)
	return h
}
