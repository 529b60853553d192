// Package telegram adapts the Telegram Bot API to the bot.Gateway port and
// feeds inbound updates into the ticket router.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/psds-microservice/support-bot/internal/bot"
)

// Gateway sends and edits messages through the Bot API.
type Gateway struct {
	api *tgbotapi.BotAPI
}

// NewAPI authorizes the bot token against the Bot API.
func NewAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: authorize: %w", err)
	}
	api.Debug = debug
	return api, nil
}

func NewGateway(api *tgbotapi.BotAPI) *Gateway {
	return &Gateway{api: api}
}

func (g *Gateway) Send(ctx context.Context, chatID int64, text string, opts bot.SendOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = opts.ReplyTo
	if len(opts.Buttons) > 0 {
		msg.ReplyMarkup = keyboard(opts.Buttons)
	}
	sent, err := g.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram: send to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

func (g *Gateway) Edit(ctx context.Context, chatID int64, messageID int, text string, buttons [][]bot.Button) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var edit tgbotapi.EditMessageTextConfig
	if len(buttons) > 0 {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, keyboard(buttons))
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	if _, err := g.api.Send(edit); err != nil {
		return fmt.Errorf("telegram: edit %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

func (g *Gateway) AnswerChoice(ctx context.Context, callbackID, text string, alert bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cb := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cb = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	if _, err := g.api.Request(cb); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

func (g *Gateway) Administrators(ctx context.Context, chatID int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	members, err := g.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: administrators of %d: %w", chatID, err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if m.User != nil {
			ids = append(ids, m.User.ID)
		}
	}
	return ids, nil
}

func keyboard(rows [][]bot.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

var _ bot.Gateway = (*Gateway)(nil)
