package telegram

import (
	"context"
	"fmt"
	"strings"

	"tsr_go/models"

	"github.com/gotd/td/tg"
)

// GroupInfo — группа из списка диалогов сессии.
type GroupInfo struct {
	Ref      models.GroupRef
	Title    string
	Username string
}

// deleteBotKeywords — признаки модерирующих ботов в названии администратора.
var deleteBotKeywords = []string{"delete", "clean", "anti", "spam", "guard"}

// ListGroups возвращает группы из диалогов сессии: обычные группы и супергруппы.
// Вещательные каналы пропускаются, туда рассылка не идёт.
func (h *Handle) ListGroups(ctx context.Context) ([]GroupInfo, error) {
	api, err := h.apiClient()
	if err != nil {
		return nil, err
	}
	ctx, cancel := withDeadline(ctx)
	defer cancel()

	dialogs, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      500,
	})
	if err != nil {
		return nil, err
	}

	var chats []tg.ChatClass
	switch d := dialogs.(type) {
	case *tg.MessagesDialogs:
		chats = d.Chats
	case *tg.MessagesDialogsSlice:
		chats = d.Chats
	default:
		return nil, fmt.Errorf("неожиданный тип диалогов: %T", dialogs)
	}

	var groups []GroupInfo
	for _, chat := range chats {
		switch c := chat.(type) {
		case *tg.Chat:
			// Группы, мигрировавшие в супергруппу, придут каналом.
			if c.Deactivated {
				continue
			}
			groups = append(groups, GroupInfo{
				Ref:   models.GroupRef{ID: c.ID},
				Title: c.Title,
			})
		case *tg.Channel:
			if !c.Megagroup {
				continue
			}
			groups = append(groups, GroupInfo{
				Ref:      models.GroupRef{ID: c.ID, AccessHash: c.AccessHash, IsChannel: true},
				Title:    c.Title,
				Username: c.Username,
			})
		}
	}
	return groups, nil
}

// CheckGroupRestrictions проверяет, запрещена ли в группе отправка сообщений.
// При ошибке считаем группу ограниченной: лучше пропустить, чем поймать бан.
func (h *Handle) CheckGroupRestrictions(ctx context.Context, ref models.GroupRef) (bool, error) {
	api, err := h.apiClient()
	if err != nil {
		return true, err
	}
	ctx, cancel := withDeadline(ctx)
	defer cancel()

	if ref.IsChannel {
		res, err := api.ChannelsGetChannels(ctx, []tg.InputChannelClass{
			&tg.InputChannel{ChannelID: ref.ID, AccessHash: ref.AccessHash},
		})
		if err != nil {
			return true, err
		}
		for _, chat := range res.GetChats() {
			if ch, ok := chat.(*tg.Channel); ok && ch.ID == ref.ID {
				return ch.DefaultBannedRights.SendMessages, nil
			}
		}
		return true, fmt.Errorf("канал %d не найден", ref.ID)
	}

	res, err := api.MessagesGetChats(ctx, []int64{ref.ID})
	if err != nil {
		return true, err
	}
	for _, chat := range res.GetChats() {
		if c, ok := chat.(*tg.Chat); ok && c.ID == ref.ID {
			return c.DefaultBannedRights.SendMessages, nil
		}
	}
	return true, fmt.Errorf("группа %d не найдена", ref.ID)
}

// HasDeleteBot ищет среди администраторов супергруппы модерирующего бота.
// Для обычных групп проверка не выполняется: список админов там не отдаётся дёшево.
func (h *Handle) HasDeleteBot(ctx context.Context, ref models.GroupRef) (bool, error) {
	if !ref.IsChannel {
		return false, nil
	}
	api, err := h.apiClient()
	if err != nil {
		return false, err
	}
	ctx, cancel := withDeadline(ctx)
	defer cancel()

	res, err := api.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
		Channel: &tg.InputChannel{ChannelID: ref.ID, AccessHash: ref.AccessHash},
		Filter:  &tg.ChannelParticipantsAdmins{},
		Limit:   200,
	})
	if err != nil {
		return false, err
	}
	participants, ok := res.(*tg.ChannelsChannelParticipants)
	if !ok {
		return false, nil
	}
	for _, u := range participants.Users {
		user, ok := u.(*tg.User)
		if !ok || !user.Bot {
			continue
		}
		name := strings.ToLower(user.Username + " " + user.FirstName)
		for _, kw := range deleteBotKeywords {
			if strings.Contains(name, kw) {
				return true, nil
			}
		}
	}
	return false, nil
}
