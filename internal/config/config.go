package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/psds-microservice/support-bot/internal/clock"
	"github.com/psds-microservice/support-bot/internal/model"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	BotToken string

	// Timezone — зона рабочего графика, TimezoneLabel — её подпись в сообщениях клиенту.
	Timezone      string
	TimezoneLabel string
	WorkStart     string
	WorkEnd       string

	// Groups — ID каналов операторов по темам. 0 означает «не настроено».
	Groups map[model.Category]int64

	TicketNoFloor int64

	// RedisURL — если задан, ожидающие выбора темы сообщения хранятся в Redis.
	RedisURL   string
	PendingTTL time.Duration

	KafkaBrokers     []string
	KafkaTopicTicket string

	// SearchServiceURL — если задан, тикеты отправляются в search-service для индексации.
	SearchServiceURL string

	DB struct {
		Driver   string
		Path     string
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	location *time.Location
	hours    clock.Window
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:          getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:         firstEnv("APP_PORT", "HTTP_PORT", "8098"),
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		BotToken:         getEnv("BOT_TOKEN", ""),
		Timezone:         getEnv("TZ", "Europe/Moscow"),
		TimezoneLabel:    getEnv("TZ_LABEL", "МСК"),
		WorkStart:        getEnv("WORK_START", "07:30"),
		WorkEnd:          getEnv("WORK_END", "18:00"),
		RedisURL:         getEnv("REDIS_URL", ""),
		KafkaBrokers:     ParseList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopicTicket: getEnv("KAFKA_TOPIC_TICKET", "support.tickets"),
		SearchServiceURL: getEnv("SEARCH_SERVICE_URL", ""),
	}

	var err error
	cfg.Groups = make(map[model.Category]int64, 3)
	for cat, key := range map[model.Category]string{
		model.CategorySales:    "GROUP_SALES_ID",
		model.CategorySupport:  "GROUP_SUPPORT_ID",
		model.CategoryDelivery: "GROUP_DELIVERY_ID",
	} {
		if cfg.Groups[cat], err = getInt(key, 0); err != nil {
			return nil, err
		}
	}
	if cfg.TicketNoFloor, err = getInt("TICKET_NO_FLOOR", 1000); err != nil {
		return nil, err
	}
	if cfg.PendingTTL, err = time.ParseDuration(getEnv("PENDING_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("config: PENDING_TTL: %w", err)
	}

	cfg.DB.Driver = getEnv("DB_DRIVER", DriverPostgres)
	cfg.DB.Path = getEnv("DB_PATH", "db.sqlite3")
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "support_bot")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	if err := cfg.resolveHours(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolveHours() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("config: TZ %q: %w", c.Timezone, err)
	}
	w, err := clock.NewWindow(c.WorkStart, c.WorkEnd, loc)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.location = loc
	c.hours = w
	return nil
}

// Validate проверяет настройки, без которых сервис не запустится.
// Незаданные каналы тем не являются ошибкой: клиент получит «бот не настроен».
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.Host == "" || c.DB.Database == "" {
			return errors.New("config: DB_HOST and DB_DATABASE are required")
		}
		if c.AppEnv == "production" && c.DB.Password == "" {
			return errors.New("config: in production DB_PASSWORD is required")
		}
	case DriverSQLite:
		if c.DB.Path == "" {
			return errors.New("config: DB_PATH is required for sqlite")
		}
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.DB.Driver)
	}
	if c.location == nil {
		if err := c.resolveHours(); err != nil {
			return err
		}
	}
	for _, cat := range model.Categories() {
		if c.Groups[cat] == 0 {
			log.Printf("config: channel for category %q is not set", cat)
		}
	}
	return nil
}

// ValidateBot — дополнительные требования для режима serve.
func (c *Config) ValidateBot() error {
	if c.BotToken == "" {
		return errors.New("config: BOT_TOKEN is required")
	}
	return nil
}

func (c *Config) Location() *time.Location { return c.location }

// Hours — окно рабочего времени.
func (c *Config) Hours() clock.Window { return c.hours }

// Channels returns an immutable copy of the category→channel mapping.
func (c *Config) Channels() Channels {
	return NewChannels(c.Groups)
}

func (c *Config) DSN() string {
	if c.DB.Driver == DriverSQLite {
		return c.DB.Path
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

// ParseList разбивает строку "a,b , c" на непустые элементы.
func ParseList(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
