package bot

import "context"

// Button is an interactive choice with an opaque payload.
type Button struct {
	Text string
	Data string
}

// SendOptions — необязательные параметры отправки.
type SendOptions struct {
	// ReplyTo связывает новое сообщение с уже отправленным (0 — без ответа).
	ReplyTo int
	// Buttons — строки кнопок под сообщением.
	Buttons [][]Button
}

// Gateway is the messaging transport the router talks to.
type Gateway interface {
	// Send delivers text to a chat and returns the new message id.
	Send(ctx context.Context, chatID int64, text string, opts SendOptions) (int, error)
	// Edit replaces text and buttons of a message sent earlier.
	Edit(ctx context.Context, chatID int64, messageID int, text string, buttons [][]Button) error
	// AnswerChoice acknowledges a button press; alert shows a modal warning.
	AnswerChoice(ctx context.Context, callbackID, text string, alert bool) error
	// Administrators lists user ids of the chat administrators.
	Administrators(ctx context.Context, chatID int64) ([]int64, error)
}
