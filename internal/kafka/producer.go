package kafka

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/psds-microservice/support-bot/internal/model"
	"github.com/segmentio/kafka-go"
)

const (
	EventTicketCreated    = "ticket.created"
	EventTicketInProgress = "ticket.in_progress"
	EventTicketClosed     = "ticket.closed"
)

// TicketEventProducer — интерфейс для отправки событий тикета в Kafka (для подмены моком в тестах).
type TicketEventProducer interface {
	ProduceTicketEvent(ctx context.Context, event string, payload map[string]interface{})
}

// Producer пишет события тикетов в топик Kafka (best-effort, не блокирует бота).
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer создаёт продюсер. Если brokers пустой или topic пустой — методы no-op.
func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{}
	}
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					log.Printf("kafka: write %d ticket events: %v", len(messages), err)
				}
			},
		},
	}
}

// Enabled reports whether events are actually sent.
func (p *Producer) Enabled() bool { return p.writer != nil }

// ProduceTicketEvent отправляет событие тикета в топик. Ключ сообщения — номер
// заявки, чтобы события одной заявки попадали в одну партицию.
func (p *Producer) ProduceTicketEvent(ctx context.Context, event string, payload map[string]interface{}) {
	if p.writer == nil {
		return
	}
	msg := map[string]interface{}{"event": event}
	for k, v := range payload {
		msg[k] = v
	}
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("kafka: marshal ticket event: %v", err)
		return
	}
	var key []byte
	if no, ok := payload["ticket_no"].(int64); ok {
		key = []byte(strconv.FormatInt(no, 10))
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: body}); err != nil {
		log.Printf("kafka: write ticket event: %v", err)
	}
}

// Close закрывает writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// TicketPayload — поля заявки, публикуемые в событиях.
func TicketPayload(t *model.Ticket) map[string]interface{} {
	if t == nil {
		return nil
	}
	payload := map[string]interface{}{
		"ticket_id":       int64(t.ID),
		"ticket_no":       t.TicketNo,
		"client_id":       t.ClientID,
		"client_username": t.ClientUsername,
		"category":        string(t.Category),
		"group_id":        t.GroupID,
		"status":          string(t.Status),
		"assignee_name":   t.AssigneeName,
		"created_at":      t.CreatedAt.UTC().Format(time.RFC3339),
	}
	if t.AssigneeID != nil {
		payload["assignee_id"] = *t.AssigneeID
	}
	if t.ClosedAt != nil {
		payload["closed_at"] = t.ClosedAt.UTC().Format(time.RFC3339)
	}
	return payload
}
