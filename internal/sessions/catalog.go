package sessions

import (
	"context"
	"log"

	"tsr_go/models"
)

// catalogGroups составляет каталог окружения сессии: перечисляет группы,
// проверяет ограничения и модерирующих ботов, сохраняет результат
// и обновляет groups_count. Возвращает число активных групп.
func (h *Handler) catalogGroups(ctx context.Context, sessionID int) (int, error) {
	conn, err := h.Registry.Acquire(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	groups, err := conn.ListGroups(ctx)
	if err != nil {
		return 0, err
	}

	for _, g := range groups {
		restricted, err := conn.CheckGroupRestrictions(ctx, g.Ref)
		if err != nil {
			// При ошибке группа считается ограниченной, отправка туда опасна.
			log.Printf("[CATALOG] проверка ограничений группы %d: %v", g.Ref.ID, err)
			restricted = true
		}
		hasBot, err := conn.HasDeleteBot(ctx, g.Ref)
		if err != nil {
			log.Printf("[CATALOG] поиск модерирующего бота в группе %d: %v", g.Ref.ID, err)
		}

		var username *string
		if g.Username != "" {
			u := g.Username
			username = &u
		}
		_, err = h.DB.CreateSessionGroup(models.SessionGroup{
			SessionID:     sessionID,
			GroupID:       models.FormatGroupID(g.Ref.ID),
			AccessHash:    g.Ref.AccessHash,
			IsChannel:     g.Ref.IsChannel,
			Title:         g.Title,
			Username:      username,
			IsActive:      !restricted && !hasBot,
			HasRestricted: restricted,
			HasDeleteBot:  hasBot,
		})
		if err != nil {
			log.Printf("[CATALOG] сохранение группы %d: %v", g.Ref.ID, err)
		}
	}

	count, err := h.DB.CountActiveSessionGroups(sessionID)
	if err != nil {
		return 0, err
	}
	if err := h.DB.UpdateSessionGroupsCount(sessionID, count); err != nil {
		return 0, err
	}

	log.Printf("[CATALOG] сессия %d: %d групп, %d активных", sessionID, len(groups), count)
	return count, nil
}
