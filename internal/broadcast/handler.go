package broadcast

import (
	"database/sql"
	"errors"
	"log"
	"strconv"

	"tsr_go/internal/httputil"
	"tsr_go/models"
	"tsr_go/pkg/storage"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	DB       *storage.DB
	Pipeline *Pipeline
}

func NewHandler(db *storage.DB, pipeline *Pipeline) *Handler {
	return &Handler{DB: db, Pipeline: pipeline}
}

// Send принимает рассылку от клиента: находит его активную аренду,
// создаёт запись рассылки и ставит задание разбиения.
func (h *Handler) Send(c *gin.Context) {
	var input struct {
		UserID        int    `json:"user_id" binding:"required"`
		Content       string `json:"content" binding:"required"`
		ContactNumber string `json:"contact_number"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		httputil.RespondError(c, 400, "Invalid data")
		return
	}

	sub, err := h.DB.ActiveSubscriptionByUser(input.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.RespondError(c, 404, "No active subscription")
		return
	}
	if err != nil {
		log.Printf("[ERROR] Поиск аренды пользователя %d: %v", input.UserID, err)
		httputil.RespondError(c, 500, "DB error")
		return
	}

	msg, err := h.DB.CreateMessage(models.Message{
		SessionID:     sub.SessionID,
		UserID:        input.UserID,
		Content:       input.Content,
		ContactNumber: input.ContactNumber,
	})
	if err != nil {
		httputil.RespondError(c, 500, "DB error")
		return
	}

	if err := h.Pipeline.Submit(msg); err != nil {
		log.Printf("[ERROR] Постановка рассылки %d: %v", msg.ID, err)
		httputil.RespondError(c, 500, "Failed to enqueue broadcast")
		return
	}

	c.JSON(200, msg)
}

// Get возвращает рассылку с текущими счётчиками.
func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		httputil.RespondError(c, 400, "Invalid id")
		return
	}
	msg, err := h.DB.GetMessageByID(id)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.RespondError(c, 404, "Message not found")
		return
	}
	if err != nil {
		httputil.RespondError(c, 500, "DB error")
		return
	}
	c.JSON(200, msg)
}

// List возвращает рассылки пользователя.
func (h *Handler) List(c *gin.Context) {
	userID, err := strconv.Atoi(c.Query("user_id"))
	if err != nil {
		httputil.RespondError(c, 400, "Invalid user_id")
		return
	}
	messages, err := h.DB.MessagesByUser(userID)
	if err != nil {
		httputil.RespondError(c, 500, "DB error")
		return
	}
	c.JSON(200, messages)
}
