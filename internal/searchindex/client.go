package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/psds-microservice/support-bot/internal/model"
)

// Client отправляет заявки в search-service для индексации (best-effort, не блокирует бота).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient возвращает клиент. Если baseURL пустой, вызовы IndexTicket — no-op.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// IndexTicketPayload — тело POST /search/index/ticket.
type IndexTicketPayload struct {
	TicketID       int64  `json:"ticket_id"`
	TicketNo       int64  `json:"ticket_no"`
	ClientID       int64  `json:"client_id"`
	ClientName     string `json:"client_name"`
	ClientUsername string `json:"client_username"`
	Category       string `json:"category"`
	AssigneeName   string `json:"assignee_name"`
	Status         string `json:"status"`
}

// IndexTicket отправляет заявку в search-service. Возвращает false при ошибке.
func (c *Client) IndexTicket(ctx context.Context, t *model.Ticket) bool {
	if c.baseURL == "" {
		return false
	}
	payload := IndexTicketPayload{
		TicketID:       int64(t.ID),
		TicketNo:       t.TicketNo,
		ClientID:       t.ClientID,
		ClientName:     t.ClientName,
		ClientUsername: t.ClientUsername,
		Category:       string(t.Category),
		AssigneeName:   t.AssigneeName,
		Status:         string(t.Status),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("searchindex: marshal: %v", err)
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search/index/ticket", bytes.NewReader(body))
	if err != nil {
		log.Printf("searchindex: new request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("searchindex: request: %v", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("searchindex: status %d for ticket %d", resp.StatusCode, t.TicketNo)
		return false
	}
	return true
}

// IndexTicketAsync вызывает IndexTicket в отдельной горутине (не блокирует обработку апдейта).
func (c *Client) IndexTicketAsync(t *model.Ticket) {
	if c.baseURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.IndexTicket(ctx, t)
	}()
}
