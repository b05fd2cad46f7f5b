package stats

import (
	"tsr_go/internal/httputil"
	"tsr_go/internal/registry"
	"tsr_go/pkg/storage"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	DB       *storage.DB
	Registry *registry.Registry
}

func NewHandler(db *storage.DB, reg *registry.Registry) *Handler {
	return &Handler{DB: db, Registry: reg}
}

// QueueStats возвращает число заданий очереди по виду и статусу.
func (h *Handler) QueueStats(c *gin.Context) {
	counts, err := h.DB.JobCounts()
	if err != nil {
		httputil.RespondError(c, 500, "DB error")
		return
	}
	c.JSON(200, counts)
}

// SessionStats возвращает распределение сессий по статусам
// и размер пула живых подключений.
func (h *Handler) SessionStats(c *gin.Context) {
	counts, err := h.DB.SessionStatusCounts()
	if err != nil {
		httputil.RespondError(c, 500, "DB error")
		return
	}
	c.JSON(200, gin.H{
		"by_status": counts,
		"pooled":    h.Registry.Size(),
	})
}
