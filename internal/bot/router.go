// Package bot routes customer and operator events through the ticket
// lifecycle: pending intake, category choice, active ticket, closure.
package bot

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/psds-microservice/support-bot/internal/clock"
	"github.com/psds-microservice/support-bot/internal/config"
	"github.com/psds-microservice/support-bot/internal/errs"
	"github.com/psds-microservice/support-bot/internal/intake"
	"github.com/psds-microservice/support-bot/internal/kafka"
	"github.com/psds-microservice/support-bot/internal/keylock"
	"github.com/psds-microservice/support-bot/internal/model"
	"github.com/psds-microservice/support-bot/internal/service"
)

// Indexer получает заявки для поисковой индексации (best-effort).
type Indexer interface {
	IndexTicketAsync(t *model.Ticket)
}

// Deps — зависимости роутера. Events и Search необязательны.
type Deps struct {
	Tickets   service.TicketServicer
	Operators service.OperatorRegistry
	Intake    intake.Tracker
	Gateway   Gateway
	Clock     clock.Clock
	Channels  config.Channels
	Hours     clock.Window
	// TZLabel — подпись часового пояса в сообщениях («МСК»).
	TZLabel string
	Events  kafka.TicketEventProducer
	Search  Indexer
}

// Router is the TicketRouter. Each Handle* call is an independent unit of
// work and may run concurrently with any other.
type Router struct {
	tickets   service.TicketServicer
	operators service.OperatorRegistry
	intake    intake.Tracker
	gw        Gateway
	clock     clock.Clock
	channels  config.Channels
	hours     clock.Window
	tz        string
	events    kafka.TicketEventProducer
	search    Indexer

	// clients serializes check-then-act per client id, groups serializes
	// operator selection and assignment per category channel. Lock order: client, then group.
	clients keylock.Map[int64]
	groups  keylock.Map[int64]
}

func NewRouter(d Deps) *Router {
	clk := d.Clock
	if clk == nil {
		clk = clock.Real(d.Hours.Location)
	}
	return &Router{
		tickets:   d.Tickets,
		operators: d.Operators,
		intake:    d.Intake,
		gw:        d.Gateway,
		clock:     clk,
		channels:  d.Channels,
		hours:     d.Hours,
		tz:        d.TZLabel,
		events:    d.Events,
		search:    d.Search,
	}
}

// Start answers /start in a private chat.
func (r *Router) Start(ctx context.Context, cmd Command) {
	r.send(ctx, cmd.ChatID, textGreeting(r.hours.String(), r.tz), SendOptions{})
}

// ChatID answers /chat_id with the id of the chat it was sent to.
func (r *Router) ChatID(ctx context.Context, cmd Command) {
	r.send(ctx, cmd.ChatID, textChatID(cmd.ChatID), SendOptions{ReplyTo: cmd.MessageID})
}

// HandleClientMessage handles a private message from a customer.
func (r *Router) HandleClientMessage(ctx context.Context, m ClientMessage) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		r.send(ctx, m.ChatID, textTextOnly, SendOptions{})
		return
	}

	unlock := r.clients.Lock(m.From.ID)
	defer unlock()

	active, err := r.tickets.GetActiveTicket(ctx, m.From.ID)
	switch {
	case err == nil:
		r.appendToActive(ctx, m.ChatID, m.From, active, text)
		return
	case !errors.Is(err, errs.ErrTicketNotFound):
		log.Printf("bot: active ticket for client %d: %v", m.From.ID, err)
		r.send(ctx, m.ChatID, textTryLater, SendOptions{})
		return
	}

	if err := r.intake.Save(ctx, m.From.ID, text); err != nil {
		log.Printf("bot: save pending for client %d: %v", m.From.ID, err)
		r.send(ctx, m.ChatID, textTryLater, SendOptions{})
		return
	}
	r.send(ctx, m.ChatID, textChooseCategory, SendOptions{Buttons: categoryButtons()})
}

// appendToActive logs a client message on its ticket and relays it to the card.
func (r *Router) appendToActive(ctx context.Context, chatID int64, from User, t *model.Ticket, text string) {
	err := r.tickets.AppendMessage(ctx, service.NewMessage{
		TicketID:   t.ID,
		TicketNo:   t.TicketNo,
		Role:       model.SenderClient,
		SenderID:   from.ID,
		SenderName: from.FullName,
		Text:       text,
	})
	if err != nil {
		log.Printf("bot: append client message to ticket %d: %v", t.TicketNo, err)
	}
	r.send(ctx, t.GroupID, textRelayToChannel(t.TicketNo, text), SendOptions{ReplyTo: int(t.GroupMessageID)})
	r.send(ctx, chatID, textAppendedAck(t.TicketNo), SendOptions{})
}

// HandleCategoryChoice turns the pending intake into a ticket.
func (r *Router) HandleCategoryChoice(ctx context.Context, c CategoryChoice) {
	cat, ok := model.ParseCategory(c.Category)
	if !ok {
		r.answer(ctx, c.CallbackID, textUnknownCategory, true)
		return
	}

	unlock := r.clients.Lock(c.From.ID)
	defer unlock()

	pending, err := r.intake.Get(ctx, c.From.ID)
	if err != nil {
		if !errors.Is(err, errs.ErrPendingNotFound) {
			log.Printf("bot: get pending for client %d: %v", c.From.ID, err)
		}
		r.send(ctx, c.ChatID, textSendQuestionFirst, SendOptions{})
		r.answer(ctx, c.CallbackID, "", false)
		return
	}

	groupID, ok := r.channels.Lookup(cat)
	if !ok {
		log.Printf("bot: %v: %s", errs.ErrCategoryNotConfigured, cat)
		r.send(ctx, c.ChatID, textNotConfigured, SendOptions{})
		r.answer(ctx, c.CallbackID, "", false)
		return
	}

	if active, err := r.tickets.GetActiveTicket(ctx, c.From.ID); err == nil {
		r.appendToActive(ctx, c.ChatID, c.From, active, pending.FirstText)
		r.clearPending(ctx, c.From.ID)
		r.answer(ctx, c.CallbackID, "", false)
		return
	}

	ticket, err := r.openTicket(ctx, c.From, cat, groupID, pending.FirstText)
	if err != nil {
		if errors.Is(err, errs.ErrActiveTicketExists) {
			if active, aerr := r.tickets.GetActiveTicket(ctx, c.From.ID); aerr == nil {
				r.send(ctx, c.ChatID, textAlreadyActive(active.TicketNo), SendOptions{})
				r.clearPending(ctx, c.From.ID)
				r.answer(ctx, c.CallbackID, "", false)
				return
			}
		}
		log.Printf("bot: create ticket for client %d: %v", c.From.ID, err)
		r.send(ctx, c.ChatID, textTryLater, SendOptions{})
		r.answer(ctx, c.CallbackID, "", false)
		return
	}
	r.clearPending(ctx, c.From.ID)

	if r.hours.Contains(r.clock.Now()) {
		r.send(ctx, c.ChatID, textAcceptedInHours(ticket.TicketNo), SendOptions{})
	} else {
		r.send(ctx, c.ChatID, textAcceptedOffHours(ticket.TicketNo, r.hours.String(), r.tz), SendOptions{})
	}
	r.answer(ctx, c.CallbackID, textAccepted, false)
	r.publish(ctx, kafka.EventTicketCreated, ticket)
}

// openTicket picks an operator, publishes the card and stores the ticket.
// The category channel stays locked until the assignment is recorded.
func (r *Router) openTicket(ctx context.Context, from User, cat model.Category, groupID int64, text string) (*model.Ticket, error) {
	unlock := r.groups.Lock(groupID)
	defer unlock()

	assignee, err := r.operators.SelectForCategory(ctx, groupID)
	if err != nil {
		if !errors.Is(err, errs.ErrOperatorNotFound) {
			log.Printf("bot: select operator for channel %d: %v", groupID, err)
		}
	}

	card := ticketCard{
		Category:  cat,
		Client:    from,
		CreatedAt: r.clock.Now().In(r.location()),
		Status:    model.TicketStatusOpen,
		Text:      text,
	}
	if assignee != nil {
		card.Assignee = assignee.FullName
	}
	cardID, err := r.gw.Send(ctx, groupID, card.render(0, r.tz), SendOptions{})
	if err != nil {
		return nil, err
	}

	ticket, err := r.tickets.CreateTicket(ctx, service.NewTicket{
		ClientID:       from.ID,
		ClientName:     from.FullName,
		ClientUsername: from.Username,
		Category:       cat,
		GroupID:        groupID,
		FirstText:      text,
		CardMessageID:  int64(cardID),
		Assignee:       assignee,
	})
	if err != nil {
		if eerr := r.gw.Edit(ctx, groupID, cardID, textCardFailed, nil); eerr != nil {
			log.Printf("bot: mark card %d failed: %v", cardID, eerr)
		}
		return nil, err
	}

	if err := r.gw.Edit(ctx, groupID, cardID, card.render(ticket.TicketNo, r.tz), closeButtons(ticket.TicketNo)); err != nil {
		log.Printf("bot: edit card for ticket %d: %v", ticket.TicketNo, err)
	}
	return ticket, nil
}

// HandleChannelMessage registers operators and relays replies to cards.
// Messages outside the category channels and non-replies are ignored.
func (r *Router) HandleChannelMessage(ctx context.Context, m ChannelMessage) {
	if !r.channels.Contains(m.ChatID) {
		return
	}
	if r.eligibleOperator(ctx, m.ChatID, m.From) {
		if err := r.operators.RegisterOrRefresh(ctx, m.From.ID, m.From.FullName, m.From.Username, m.ChatID); err != nil {
			log.Printf("bot: register operator %d: %v", m.From.ID, err)
		}
	}
	if m.ReplyTo == 0 {
		return
	}
	t, err := r.tickets.FindByCardMessage(ctx, m.ChatID, int64(m.ReplyTo))
	if err != nil {
		if !errors.Is(err, errs.ErrTicketNotFound) {
			log.Printf("bot: find card %d in %d: %v", m.ReplyTo, m.ChatID, err)
		}
		return
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}

	r.send(ctx, t.ClientID, textOperatorReply(m.From.FullName, text), SendOptions{})
	err = r.tickets.AppendMessage(ctx, service.NewMessage{
		TicketID:   t.ID,
		TicketNo:   t.TicketNo,
		Role:       model.SenderOperator,
		SenderID:   m.From.ID,
		SenderName: m.From.FullName,
		Text:       text,
	})
	if err != nil {
		log.Printf("bot: append operator message to ticket %d: %v", t.TicketNo, err)
	}

	changed, err := r.tickets.MarkInProgress(ctx, t.TicketNo)
	if err != nil {
		log.Printf("bot: mark ticket %d in progress: %v", t.TicketNo, err)
		return
	}
	if changed {
		t.Status = model.TicketStatusInProgress
		r.publish(ctx, kafka.EventTicketInProgress, t)
	}
}

// eligibleOperator is false for bots, channel administrators and when the
// administrator list cannot be fetched.
func (r *Router) eligibleOperator(ctx context.Context, chatID int64, u User) bool {
	if u.ID == 0 || u.IsBot {
		return false
	}
	admins, err := r.gw.Administrators(ctx, chatID)
	if err != nil {
		log.Printf("bot: administrators of %d: %v", chatID, err)
		return false
	}
	for _, id := range admins {
		if id == u.ID {
			return false
		}
	}
	return true
}

// HandleClose closes a ticket from its card in a category channel.
func (r *Router) HandleClose(ctx context.Context, a CloseAction) {
	if !r.channels.Contains(a.ChatID) {
		r.answer(ctx, a.CallbackID, textCloseForbidden, true)
		return
	}
	no, err := strconv.ParseInt(strings.TrimSpace(a.TicketNo), 10, 64)
	if err != nil || no <= 0 {
		r.answer(ctx, a.CallbackID, textCloseBadPayload, true)
		return
	}
	t, err := r.tickets.GetByNumber(ctx, no)
	if err != nil {
		if !errors.Is(err, errs.ErrTicketNotFound) {
			log.Printf("bot: get ticket %d: %v", no, err)
		}
		r.answer(ctx, a.CallbackID, textTicketNotFound, true)
		return
	}
	// only the channel that holds the card may close the ticket
	if t.GroupID != a.ChatID {
		r.answer(ctx, a.CallbackID, textCloseForbidden, true)
		return
	}

	unlock := r.clients.Lock(t.ClientID)
	defer unlock()

	changed, err := r.tickets.Close(ctx, no)
	if err != nil {
		log.Printf("bot: close ticket %d: %v", no, err)
		r.answer(ctx, a.CallbackID, textTryLater, true)
		return
	}
	if !changed {
		r.answer(ctx, a.CallbackID, textAlreadyClosed, false)
		return
	}

	r.send(ctx, a.ChatID, textClosedInChannel(no), SendOptions{ReplyTo: a.MessageID})
	r.send(ctx, t.ClientID, textClosedToClient(no), SendOptions{})
	r.answer(ctx, a.CallbackID, textClosedAck, false)

	if closed, err := r.tickets.GetByNumber(ctx, no); err == nil {
		t = closed
	}
	r.publish(ctx, kafka.EventTicketClosed, t)
}

// HandleFind answers /find in a category channel.
func (r *Router) HandleFind(ctx context.Context, cmd Command) {
	if !r.channels.Contains(cmd.ChatID) {
		r.send(ctx, cmd.ChatID, textFindOnlyChannels, SendOptions{ReplyTo: cmd.MessageID})
		return
	}
	reply := SendOptions{ReplyTo: cmd.MessageID}
	q := strings.TrimSpace(cmd.Args)
	if q == "" {
		r.send(ctx, cmd.ChatID, textFindUsage, reply)
		return
	}
	r.send(ctx, cmd.ChatID, r.Lookup(ctx, q), reply)
}

// Lookup resolves a /find query into the reply text. Digits are a ticket
// number first and a client id second; "@handle" matches the username.
func (r *Router) Lookup(ctx context.Context, q string) string {
	one, many, err := r.find(ctx, q)
	switch {
	case errors.Is(err, errs.ErrInvalidQuery):
		return textInvalidArgument
	case err != nil:
		log.Printf("bot: find %q: %v", q, err)
		return textNotFound
	case one != nil:
		return formatTicketDetail(one, r.location(), r.tz)
	case len(many) == 0:
		return textNotFound
	default:
		return formatTicketList(many, r.location())
	}
}

func (r *Router) find(ctx context.Context, q string) (*model.Ticket, []model.Ticket, error) {
	if strings.HasPrefix(q, "@") {
		name := strings.TrimPrefix(q, "@")
		if name == "" {
			return nil, nil, errs.ErrInvalidQuery
		}
		items, err := r.tickets.FindByUsername(ctx, name, findListLimit)
		return nil, items, err
	}
	id, err := strconv.ParseInt(q, 10, 64)
	if err != nil {
		return nil, nil, errs.ErrInvalidQuery
	}
	if isDigits(q) {
		t, err := r.tickets.GetByNumber(ctx, id)
		if err == nil {
			return t, nil, nil
		}
		if !errors.Is(err, errs.ErrTicketNotFound) {
			return nil, nil, err
		}
	}
	items, err := r.tickets.FindByClient(ctx, id, findListLimit)
	return nil, items, err
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

func (r *Router) location() *time.Location {
	if r.hours.Location != nil {
		return r.hours.Location
	}
	return time.UTC
}

func (r *Router) clearPending(ctx context.Context, clientID int64) {
	if err := r.intake.Clear(ctx, clientID); err != nil {
		log.Printf("bot: clear pending for client %d: %v", clientID, err)
	}
}

func (r *Router) send(ctx context.Context, chatID int64, text string, opts SendOptions) {
	if _, err := r.gw.Send(ctx, chatID, text, opts); err != nil {
		log.Printf("bot: send to %d: %v", chatID, err)
	}
}

func (r *Router) answer(ctx context.Context, callbackID, text string, alert bool) {
	if callbackID == "" {
		return
	}
	if err := r.gw.AnswerChoice(ctx, callbackID, text, alert); err != nil {
		log.Printf("bot: answer callback: %v", err)
	}
}

// publish sends the lifecycle event and reindexes the ticket. Neither may
// hold up the update that caused it.
func (r *Router) publish(ctx context.Context, event string, t *model.Ticket) {
	if r.events != nil {
		r.events.ProduceTicketEvent(context.WithoutCancel(ctx), event, kafka.TicketPayload(t))
	}
	if r.search != nil {
		r.search.IndexTicketAsync(t)
	}
}
