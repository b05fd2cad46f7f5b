package broadcast

import (
	"tsr_go/pkg/storage"

	"github.com/gin-gonic/gin"
)

// SetupRoutes регистрирует маршруты рассылок.
func SetupRoutes(r *gin.RouterGroup, db *storage.DB, pipeline *Pipeline) {
	h := NewHandler(db, pipeline)
	r.POST("/send", h.Send)
	r.GET("/:id", h.Get)
	r.GET("", h.List)
}
