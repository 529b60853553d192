package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/psds-microservice/support-bot/internal/clock"
	"github.com/psds-microservice/support-bot/internal/errs"
	"github.com/psds-microservice/support-bot/internal/model"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "support-bot:pending:"

// RedisTracker хранит ожидающие сообщения в Redis с TTL: брошенный выбор темы
// не копится вечно.
type RedisTracker struct {
	client *redis.Client
	clock  clock.Clock
	ttl    time.Duration
}

// NewRedisTracker подключается по URL вида redis://host:6379/0.
func NewRedisTracker(ctx context.Context, url string, ttl time.Duration, clk clock.Clock) (*RedisTracker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisTracker{client: client, clock: clk, ttl: ttl}, nil
}

type pendingRecord struct {
	FirstText string    `json:"first_text"`
	CreatedAt time.Time `json:"created_at"`
}

func key(clientID int64) string {
	return keyPrefix + strconv.FormatInt(clientID, 10)
}

func (t *RedisTracker) Save(ctx context.Context, clientID int64, text string) error {
	body, err := json.Marshal(pendingRecord{FirstText: text, CreatedAt: t.clock.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal pending: %w", err)
	}
	return t.client.Set(ctx, key(clientID), body, t.ttl).Err()
}

func (t *RedisTracker) Get(ctx context.Context, clientID int64) (*model.PendingIntake, error) {
	body, err := t.client.Get(ctx, key(clientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.ErrPendingNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec pendingRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode pending %d: %w", clientID, err)
	}
	return &model.PendingIntake{ClientID: clientID, FirstText: rec.FirstText, CreatedAt: rec.CreatedAt}, nil
}

func (t *RedisTracker) Clear(ctx context.Context, clientID int64) error {
	return t.client.Del(ctx, key(clientID)).Err()
}

func (t *RedisTracker) Close() error {
	return t.client.Close()
}

var _ Tracker = (*RedisTracker)(nil)
