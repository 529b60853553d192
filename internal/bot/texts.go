package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/psds-microservice/support-bot/internal/model"
)

const (
	textChooseCategory    = "Выберите тему обращения:"
	textSendQuestionFirst = "Пожалуйста, сначала напишите вопрос сообщением."
	textNotConfigured     = "Бот не настроен: не указаны ID групп отделов."
	textTextOnly          = "Пожалуйста, опишите вопрос текстом."
	textTryLater          = "Не удалось создать заявку. Попробуйте выбрать тему ещё раз чуть позже."
	textUnknownCategory   = "Неизвестная тема"
	textAccepted          = "Принято"
	textCloseForbidden    = "Нельзя закрыть отсюда"
	textCloseBadPayload   = "Некорректная заявка"
	textTicketNotFound    = "Заявка не найдена"
	textAlreadyClosed     = "Заявка уже закрыта"
	textClosedAck         = "Закрыто"
	textFindUsage         = "Использование: /find <ticket_no|@username|client_id>"
	textFindOnlyChannels  = "Команда доступна только в группах отделов."
	textNotFound          = "Не найдено."
	textInvalidArgument   = "Неверный аргумент."
	textCardFailed        = "⚠️ Заявка не создана"
	textNoAssignee        = "не назначен"
	cardHeaderPending     = "🆕 Заявка (создается...)"
	closeButtonText       = "Закрыть"
	findListLimit         = 10
)

func textGreeting(hours, tz string) string {
	titles := make([]string, 0, 3)
	for _, c := range model.Categories() {
		titles = append(titles, c.Title())
	}
	return "Здравствуйте! Напишите ваш вопрос одним сообщением.\n" +
		fmt.Sprintf("Мы работаем ежедневно с %s (%s).\n", strings.Replace(hours, "–", " до ", 1), tz) +
		"После сообщения выберите тему: " + strings.Join(titles, " / ") + "."
}

func textAcceptedInHours(no int64) string {
	return fmt.Sprintf("Заявка №%d принята. Мы ответим в ближайшее время.", no)
}

func textAcceptedOffHours(no int64, hours, tz string) string {
	return fmt.Sprintf("Заявка №%d принята.\nГрафик работы: ежедневно %s (%s). Ответим в рабочее время.", no, hours, tz)
}

func textAlreadyActive(no int64) string {
	return fmt.Sprintf("У вас уже есть открытая заявка №%d, добавил сообщение в неё.", no)
}

func textRelayToChannel(no int64, text string) string {
	return fmt.Sprintf("Сообщение от клиента по заявке №%d:\n%s", no, text)
}

func textAppendedAck(no int64) string {
	return fmt.Sprintf("Добавил сообщение в заявку №%d. Оператор ответит в этом чате.", no)
}

func textOperatorReply(name, text string) string {
	return name + ": " + text
}

func textClosedInChannel(no int64) string {
	return fmt.Sprintf("✅ Заявка №%d закрыта.", no)
}

func textClosedToClient(no int64) string {
	return fmt.Sprintf("Заявка №%d закрыта. Если появятся новые вопросы — напишите, и мы создадим новую заявку.", no)
}

func textChatID(id int64) string {
	return fmt.Sprintf("chat.id = %d", id)
}

func categoryButtons() [][]Button {
	rows := make([][]Button, 0, 3)
	for _, c := range model.Categories() {
		rows = append(rows, []Button{{Text: c.Title(), Data: PayloadCategoryPrefix + string(c)}})
	}
	return rows
}

func closeButtons(no int64) [][]Button {
	return [][]Button{{{Text: closeButtonText, Data: fmt.Sprintf("%s%d", PayloadClosePrefix, no)}}}
}

// ticketCard — карточка заявки в канале операторов.
type ticketCard struct {
	Category  model.Category
	Client    User
	CreatedAt time.Time
	Status    model.TicketStatus
	Assignee  string
	Text      string
}

// render returns the card text; ticketNo 0 renders the placeholder header.
func (c ticketCard) render(ticketNo int64, tz string) string {
	header := cardHeaderPending
	if ticketNo > 0 {
		header = fmt.Sprintf("🆕 Заявка №%d", ticketNo)
	}
	assignee := c.Assignee
	if assignee == "" {
		assignee = textNoAssignee
	}
	return header + "\n" +
		"Тема: " + c.Category.Title() + "\n" +
		fmt.Sprintf("Клиент: %s (%s) | id:%d\n", c.Client.FullName, c.Client.Handle(), c.Client.ID) +
		"Создано: " + c.CreatedAt.Format("2006-01-02 15:04") + " " + tz + "\n" +
		"Статус: " + string(c.Status) + "\n" +
		"Ответственный: " + assignee + "\n" +
		"Текст: " + c.Text
}

func formatTicketDetail(t *model.Ticket, loc *time.Location, tz string) string {
	assignee := t.AssigneeName
	if assignee == "" {
		assignee = "-"
	}
	return fmt.Sprintf("Заявка №%d\nТема: %s\nСтатус: %s\nКлиент: %s @%s id:%d\nОтветственный: %s\nСоздано: %s %s",
		t.TicketNo, t.Category.Title(), t.Status,
		t.ClientName, t.ClientUsername, t.ClientID,
		assignee,
		t.CreatedAt.In(loc).Format("2006-01-02 15:04"), tz)
}

func formatTicketList(items []model.Ticket, loc *time.Location) string {
	lines := make([]string, 0, len(items))
	for _, t := range items {
		lines = append(lines, fmt.Sprintf("№%d %s %s", t.TicketNo, t.Status, t.CreatedAt.In(loc).Format("2006-01-02 15:04")))
	}
	return strings.Join(lines, "\n")
}
