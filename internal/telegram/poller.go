package telegram

import (
	"context"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleTimeout bounds one update; shutdown does not cancel updates in flight.
const handleTimeout = 30 * time.Second

// Poller long-polls getUpdates. Updates of one chat are handled in arrival
// order; different chats are handled concurrently.
type Poller struct {
	api     *tgbotapi.BotAPI
	handler Handler
	timeout int

	seq sequencer
}

func NewPoller(api *tgbotapi.BotAPI, h Handler) *Poller {
	return &Poller{api: api, handler: h, timeout: 60}
}

// Run blocks until ctx is done, then waits for updates in flight.
func (p *Poller) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = p.timeout
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := p.api.GetUpdatesChan(u)
	log.Printf("telegram: polling as @%s", p.api.Self.UserName)

	defer p.seq.Wait()
	for {
		select {
		case <-ctx.Done():
			p.api.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			p.seq.Submit(chatKey(upd), func() { p.handle(ctx, upd) })
		}
	}
}

func (p *Poller) handle(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("telegram: update %d: panic: %v", upd.UpdateID, r)
		}
	}()
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handleTimeout)
	defer cancel()
	Dispatch(hctx, p.handler, upd)
}
