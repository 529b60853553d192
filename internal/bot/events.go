package bot

import "strings"

const (
	PayloadCategoryPrefix = "theme:"
	PayloadClosePrefix    = "close:"
)

// User — участник переписки.
type User struct {
	ID       int64
	FullName string
	Username string
	IsBot    bool
}

// Handle returns "@username" or "-" when the user has none.
func (u User) Handle() string {
	if u.Username == "" {
		return "-"
	}
	return "@" + u.Username
}

// FullName joins first and last name the way clients see them.
func FullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

// ClientMessage — текст клиента в личном чате с ботом.
type ClientMessage struct {
	ChatID int64
	From   User
	Text   string
}

// CategoryChoice — нажатие кнопки выбора темы.
type CategoryChoice struct {
	CallbackID string
	ChatID     int64
	From       User
	Category   string
}

// ChannelMessage — сообщение в канале операторов.
type ChannelMessage struct {
	ChatID    int64
	MessageID int
	From      User
	Text      string
	// ReplyTo — id сообщения, на которое отвечают (0, если это не ответ).
	ReplyTo int
}

// CloseAction — нажатие кнопки «Закрыть» на карточке.
type CloseAction struct {
	CallbackID string
	ChatID     int64
	MessageID  int
	From       User
	TicketNo   string
}

// Command — служебная команда (/find, /chat_id, /start).
type Command struct {
	ChatID    int64
	MessageID int
	From      User
	Args      string
}
