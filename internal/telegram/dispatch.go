package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/psds-microservice/support-bot/internal/bot"
)

// Handler receives classified inbound events. *bot.Router implements it.
type Handler interface {
	Start(ctx context.Context, cmd bot.Command)
	ChatID(ctx context.Context, cmd bot.Command)
	HandleFind(ctx context.Context, cmd bot.Command)
	HandleClientMessage(ctx context.Context, m bot.ClientMessage)
	HandleCategoryChoice(ctx context.Context, c bot.CategoryChoice)
	HandleChannelMessage(ctx context.Context, m bot.ChannelMessage)
	HandleClose(ctx context.Context, a bot.CloseAction)
}

var _ Handler = (*bot.Router)(nil)

// Dispatch classifies one update and calls the matching handler method.
// Updates the router has no use for are dropped.
func Dispatch(ctx context.Context, h Handler, upd tgbotapi.Update) {
	switch {
	case upd.CallbackQuery != nil:
		dispatchCallback(ctx, h, upd.CallbackQuery)
	case upd.Message != nil:
		dispatchMessage(ctx, h, upd.Message)
	}
}

func dispatchCallback(ctx context.Context, h Handler, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil {
		return
	}
	from := user(cq.From)
	switch {
	case strings.HasPrefix(cq.Data, bot.PayloadCategoryPrefix):
		chatID := from.ID
		if cq.Message != nil && cq.Message.Chat != nil {
			chatID = cq.Message.Chat.ID
		}
		h.HandleCategoryChoice(ctx, bot.CategoryChoice{
			CallbackID: cq.ID,
			ChatID:     chatID,
			From:       from,
			Category:   strings.TrimPrefix(cq.Data, bot.PayloadCategoryPrefix),
		})
	case strings.HasPrefix(cq.Data, bot.PayloadClosePrefix):
		// inline-mode callbacks carry no message and cannot be traced to a channel
		if cq.Message == nil || cq.Message.Chat == nil {
			return
		}
		h.HandleClose(ctx, bot.CloseAction{
			CallbackID: cq.ID,
			ChatID:     cq.Message.Chat.ID,
			MessageID:  cq.Message.MessageID,
			From:       from,
			TicketNo:   strings.TrimPrefix(cq.Data, bot.PayloadClosePrefix),
		})
	}
}

func dispatchMessage(ctx context.Context, h Handler, m *tgbotapi.Message) {
	if m.Chat == nil || m.From == nil {
		return
	}
	from := user(m.From)
	private := m.Chat.IsPrivate()

	if m.IsCommand() {
		cmd := bot.Command{ChatID: m.Chat.ID, MessageID: m.MessageID, From: from, Args: m.CommandArguments()}
		switch m.Command() {
		case "start":
			if private {
				h.Start(ctx, cmd)
			}
			return
		case "chat_id":
			h.ChatID(ctx, cmd)
			return
		case "find":
			h.HandleFind(ctx, cmd)
			return
		}
	}

	if private {
		h.HandleClientMessage(ctx, bot.ClientMessage{ChatID: m.Chat.ID, From: from, Text: m.Text})
		return
	}
	cm := bot.ChannelMessage{
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		From:      from,
		Text:      m.Text,
	}
	if m.ReplyToMessage != nil {
		cm.ReplyTo = m.ReplyToMessage.MessageID
	}
	h.HandleChannelMessage(ctx, cm)
}

func user(u *tgbotapi.User) bot.User {
	return bot.User{
		ID:       u.ID,
		FullName: bot.FullName(u.FirstName, u.LastName),
		Username: u.UserName,
		IsBot:    u.IsBot,
	}
}
