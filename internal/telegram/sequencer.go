package telegram

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// sequencer runs submitted funcs in submission order per key and
// concurrently across keys. A key's goroutine exits once its queue drains.
type sequencer struct {
	mu     sync.Mutex
	queues map[int64][]func()
	wg     sync.WaitGroup
}

func (s *sequencer) Submit(key int64, fn func()) {
	s.mu.Lock()
	if s.queues == nil {
		s.queues = make(map[int64][]func())
	}
	q, running := s.queues[key]
	s.queues[key] = append(q, fn)
	if !running {
		s.wg.Add(1)
		go s.drain(key)
	}
	s.mu.Unlock()
}

func (s *sequencer) drain(key int64) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		q := s.queues[key]
		if len(q) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		fn := q[0]
		s.queues[key] = q[1:]
		s.mu.Unlock()
		fn()
	}
}

// Wait blocks until every submitted func has returned.
func (s *sequencer) Wait() {
	s.wg.Wait()
}

// chatKey is the conversation an update belongs to: the chat for messages
// and card buttons, the pressing user for callbacks without a message.
func chatKey(upd tgbotapi.Update) int64 {
	switch {
	case upd.Message != nil && upd.Message.Chat != nil:
		return upd.Message.Chat.ID
	case upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil && upd.CallbackQuery.Message.Chat != nil:
		return upd.CallbackQuery.Message.Chat.ID
	case upd.CallbackQuery != nil && upd.CallbackQuery.From != nil:
		return upd.CallbackQuery.From.ID
	}
	return 0
}
