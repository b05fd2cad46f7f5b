package sessions

import (
	"database/sql"
	"errors"
	"log"
	"strconv"

	"tsr_go/internal/httputil"
	"tsr_go/internal/registry"
	"tsr_go/models"
	"tsr_go/pkg/storage"
	"tsr_go/pkg/telegram"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	DB       *storage.DB
	Registry *registry.Registry
}

func NewHandler(db *storage.DB, reg *registry.Registry) *Handler {
	return &Handler{DB: db, Registry: reg}
}

// CreateSession — первая фаза онбординга: сохраняет сессию
// и отправляет код подтверждения на телефон.
func (h *Handler) CreateSession(c *gin.Context) {
	var input struct {
		Phone   string `json:"phone" binding:"required"`
		ApiID   int    `json:"api_id" binding:"required"`
		ApiHash string `json:"api_hash" binding:"required"`
		ProxyID *int   `json:"proxy_id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		httputil.RespondError(c, 400, "Invalid data")
		return
	}

	var proxy *models.Proxy
	if input.ProxyID != nil {
		p, err := h.DB.GetProxyByID(*input.ProxyID)
		if err != nil {
			httputil.RespondError(c, 400, "Proxy not found")
			return
		}
		proxy = p
	}

	created, err := h.DB.CreateSession(models.Session{
		Phone:   input.Phone,
		ApiID:   input.ApiID,
		ApiHash: input.ApiHash,
		ProxyID: input.ProxyID,
	})
	if err != nil {
		log.Printf("[ERROR] Не удалось создать сессию в БД: %v", err)
		httputil.RespondError(c, 500, "DB error")
		return
	}
	created.Proxy = proxy

	// Отправляем код подтверждения и сохраняем хеш в БД
	if _, err := telegram.RequestCode(h.DB, created); err != nil {
		log.Printf("[ERROR] Не удалось получить код: %v", err)
		httputil.RespondError(c, 500, "Failed to request code")
		return
	}

	log.Printf("[INFO] Сессия сохранена в БД с ID=%d", created.ID)
	c.JSON(200, gin.H{"результат": "готово, теперь нужно подтвердить кодом"})
}

// VerifySession — вторая фаза онбординга: завершает вход по коду
// и каталогизирует окружение сессии.
func (h *Handler) VerifySession(c *gin.Context) {
	var input struct {
		Code     string `json:"code" binding:"required"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		httputil.RespondError(c, 400, "Invalid code")
		return
	}

	// Берём последнюю созданную сессию и фиксируем первичную ошибку
	session, err := h.DB.GetLastSession()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("[WARN] В БД нет сессий: %v", err)
			httputil.RespondError(c, 404, "Session not found")
			return
		}
		log.Printf("[ERROR] Не удалось получить последнюю сессию: %v", err)
		httputil.RespondError(c, 500, "DB error")
		return
	}

	log.Printf("[INFO] Подтверждаем сессию с ID=%d", session.ID)
	if session.IsAuthorized {
		c.JSON(200, gin.H{"результат": "последняя сессия уже авторизована"})
		return
	}

	if err := telegram.CompleteAuthorization(h.DB, session, input.Code, input.Password); err != nil {
		httputil.RespondError(c, 400, "Auth failed: "+err.Error())
		return
	}
	if err := h.DB.MarkSessionAuthorized(session.ID); err != nil {
		httputil.RespondError(c, 500, "Failed to mark session as authorized")
		return
	}

	// Каталогизируем группы, чтобы сессию можно было сдавать в аренду
	count, err := h.catalogGroups(c.Request.Context(), session.ID)
	if err != nil {
		log.Printf("[ERROR] Каталогизация групп сессии %d: %v", session.ID, err)
		httputil.RespondError(c, 500, "Failed to load session groups")
		return
	}

	c.JSON(200, gin.H{"status": "Authorized!", "active_groups": count})
}

// RefreshGroups перекаталогизирует окружение сессии по запросу оператора:
// группы появляются и исчезают, ограничения и боты меняются, а groups_count
// участвует в ранжировании кандидатов на замену и не должен протухать.
func (h *Handler) RefreshGroups(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		httputil.RespondError(c, 400, "Invalid id")
		return
	}

	count, err := h.catalogGroups(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrSessionNotFound) {
			httputil.RespondError(c, 404, "Session not found")
			return
		}
		log.Printf("[ERROR] Обновление групп сессии %d: %v", id, err)
		httputil.RespondError(c, 500, "Failed to refresh session groups")
		return
	}

	c.JSON(200, gin.H{"active_groups": count})
}

// CreateProxy сохраняет прокси для последующей привязки к сессиям.
func (h *Handler) CreateProxy(c *gin.Context) {
	var input struct {
		IP       string `json:"ip" binding:"required"`
		Port     int    `json:"port" binding:"required"`
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		httputil.RespondError(c, 400, "Invalid data")
		return
	}
	proxy, err := h.DB.CreateProxy(models.Proxy{
		IP:       input.IP,
		Port:     input.Port,
		Login:    input.Login,
		Password: input.Password,
		IsActive: true,
	})
	if err != nil {
		httputil.RespondError(c, 500, "DB error")
		return
	}
	c.JSON(200, proxy)
}

// ListSessions возвращает все сессии для панели оператора.
func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.DB.ListSessions()
	if err != nil {
		httputil.RespondError(c, 500, "DB error")
		return
	}
	c.JSON(200, sessions)
}

// SessionGroups возвращает каталог групп сессии.
func (h *Handler) SessionGroups(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		httputil.RespondError(c, 400, "Invalid id")
		return
	}
	groups, err := h.DB.SessionGroups(id)
	if err != nil {
		httputil.RespondError(c, 500, "DB error")
		return
	}
	c.JSON(200, groups)
}

// DeleteSession удаляет сессию. Арендованные сессии не удаляются.
func (h *Handler) DeleteSession(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		httputil.RespondError(c, 400, "Invalid id")
		return
	}
	h.Registry.Unload(id)
	if err := h.DB.DeleteSession(id); err != nil {
		httputil.RespondError(c, 400, err.Error())
		return
	}
	c.JSON(200, gin.H{"status": "deleted"})
}
