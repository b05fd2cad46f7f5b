package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strconv"
	"time"

	"tsr_go/internal/httputil"
	"tsr_go/internal/registry"
	"tsr_go/models"
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

// CreateSubscription оформляет аренду: подбирает лучшую свободную сессию
// и привязывает её к пользователю на срок тарифа.
func (h *Handler) CreateSubscription(c *gin.Context) {
	var input struct {
		UserID   int    `json:"user_id" binding:"required"`
		PlanType string `json:"plan_type" binding:"required"`
		Days     int    `json:"days" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		httputil.RespondError(c, 400, "Invalid data")
		return
	}

	if _, err := h.DB.GetUserByID(input.UserID); err != nil {
		httputil.RespondError(c, 404, "User not found")
		return
	}

	// Кандидаты ранжируются как при замене: богатое окружение первым.
	// Порог окружения для новой аренды не применяется.
	session, err := h.DB.FindReplacementSession(0)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.RespondError(c, 409, "No available sessions")
		return
	}
	if err != nil {
		httputil.RespondError(c, 500, "DB error")
		return
	}

	now := time.Now()
	sub, err := h.DB.CreateSubscription(models.Subscription{
		UserID:    input.UserID,
		SessionID: session.ID,
		PlanType:  input.PlanType,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, input.Days),
	})
	if err != nil {
		httputil.RespondError(c, 500, "DB error")
		return
	}

	// Прогреваем подключение, чтобы первая рассылка не ждала загрузки.
	if _, err := h.Registry.Acquire(c.Request.Context(), session.ID); err != nil {
		log.Printf("[SUBS] прогрев сессии %d: %v", session.ID, err)
	}

	c.JSON(200, sub)
}

// CancelSubscription закрывает аренду и возвращает сессию в пул свободных.
func (h *Handler) CancelSubscription(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		httputil.RespondError(c, 400, "Invalid id")
		return
	}

	sub, err := h.DB.CancelSubscription(id)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.RespondError(c, 404, "Active subscription not found")
		return
	}
	if err != nil {
		httputil.RespondError(c, 500, "DB error")
		return
	}

	h.Registry.Unload(sub.SessionID)
	c.JSON(200, sub)
}

// ListSubscriptions возвращает подписки пользователя.
func (h *Handler) ListSubscriptions(c *gin.Context) {
	userID, err := strconv.Atoi(c.Query("user_id"))
	if err != nil {
		httputil.RespondError(c, 400, "Invalid user_id")
		return
	}
	subs, err := h.DB.SubscriptionsByUser(userID)
	if err != nil {
		httputil.RespondError(c, 500, "DB error")
		return
	}
	c.JSON(200, subs)
}

// ExpireSweep закрывает просроченные аренды и выгружает их подключения.
// Вызывается планировщиком; ошибки логируются и ждут следующего прохода.
func (h *Handler) ExpireSweep(ctx context.Context) {
	expired, err := h.DB.ExpireSubscriptions(time.Now())
	if err != nil {
		log.Printf("[SUBS] закрытие просроченных аренд: %v", err)
		return
	}
	for _, sub := range expired {
		h.Registry.Unload(sub.SessionID)
		log.Printf("[SUBS] аренда %d истекла, сессия %d освобождена", sub.ID, sub.SessionID)
	}
}
