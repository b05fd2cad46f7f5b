package users

import (
	"tsr_go/internal/httputil"
	"tsr_go/models"
	"tsr_go/pkg/storage"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	DB *storage.DB
}

func NewHandler(db *storage.DB) *Handler {
	return &Handler{DB: db}
}

// CreateUser регистрирует клиента. Повторный вызов обновляет имя.
func (h *Handler) CreateUser(c *gin.Context) {
	var input struct {
		TgUserID  int64   `json:"tg_user_id" binding:"required"`
		Username  *string `json:"username"`
		FirstName *string `json:"first_name"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		httputil.RespondError(c, 400, "Invalid data")
		return
	}
	user, err := h.DB.CreateUser(models.User{
		TgUserID:  input.TgUserID,
		Username:  input.Username,
		FirstName: input.FirstName,
	})
	if err != nil {
		httputil.RespondError(c, 500, "DB error")
		return
	}
	c.JSON(200, user)
}

// SetupRoutes регистрирует маршруты клиентов.
func SetupRoutes(r *gin.RouterGroup, db *storage.DB) {
	h := NewHandler(db)
	r.POST("", h.CreateUser)
}
