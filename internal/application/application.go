package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-bot/internal/bot"
	"github.com/psds-microservice/support-bot/internal/clock"
	"github.com/psds-microservice/support-bot/internal/config"
	"github.com/psds-microservice/support-bot/internal/database"
	"github.com/psds-microservice/support-bot/internal/handler"
	"github.com/psds-microservice/support-bot/internal/intake"
	"github.com/psds-microservice/support-bot/internal/kafka"
	"github.com/psds-microservice/support-bot/internal/router"
	"github.com/psds-microservice/support-bot/internal/searchindex"
	"github.com/psds-microservice/support-bot/internal/service"
	"github.com/psds-microservice/support-bot/internal/telegram"
	"gorm.io/gorm"
)

// App — бот поддержки: long polling Telegram + read-only HTTP API.
type App struct {
	cfg     *config.Config
	httpSrv *http.Server
	poller  *telegram.Poller
	closers []func() error
}

// New собирает приложение для режима serve.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateBot(); err != nil {
		return nil, err
	}
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DB.Driver, cfg.DSN(), cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a := &App{cfg: cfg}
	a.closers = append(a.closers, closeDB(db))

	clk := clock.Real(cfg.Location())
	operators := service.NewOperatorService(db, clk)
	tickets := service.NewTicketService(db, clk, cfg.TicketNoFloor, operators)

	tracker, err := a.newTracker(ctx, db, clk)
	if err != nil {
		a.close()
		return nil, err
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket)
	a.closers = append(a.closers, producer.Close)
	if producer.Enabled() {
		log.Printf("kafka: ticket events -> %s", cfg.KafkaTopicTicket)
	}

	api, err := telegram.NewAPI(cfg.BotToken, cfg.LogLevel == "debug")
	if err != nil {
		a.close()
		return nil, err
	}

	r := bot.NewRouter(bot.Deps{
		Tickets:   tickets,
		Operators: operators,
		Intake:    tracker,
		Gateway:   telegram.NewGateway(api),
		Clock:     clk,
		Channels:  cfg.Channels(),
		Hours:     cfg.Hours(),
		TZLabel:   cfg.TimezoneLabel,
		Events:    producer,
		Search:    searchindex.NewClient(cfg.SearchServiceURL),
	})
	a.poller = telegram.NewPoller(api, r)

	a.httpSrv = &http.Server{
		Addr: cfg.Addr(),
		Handler: router.New(
			handler.NewTicketHandler(tickets),
			handler.NewOperatorHandler(operators),
			handler.Ready(database.Ping(db)),
		),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return a, nil
}

// newTracker выбирает хранилище ожидающих сообщений: Redis, если задан REDIS_URL.
func (a *App) newTracker(ctx context.Context, db *gorm.DB, clk clock.Clock) (intake.Tracker, error) {
	if a.cfg.RedisURL == "" {
		return intake.NewGormTracker(db, clk), nil
	}
	rt, err := intake.NewRedisTracker(ctx, a.cfg.RedisURL, a.cfg.PendingTTL, clk)
	if err != nil {
		return nil, fmt.Errorf("intake: %w", err)
	}
	a.closers = append(a.closers, rt.Close)
	log.Printf("intake: pending messages in redis, ttl %s", a.cfg.PendingTTL)
	return rt, nil
}

// Run запускает HTTP-сервер и поллер, блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", a.httpSrv.Addr)
	log.Printf("  Swagger UI:    %s/swagger", base)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Ready:         %s/ready", base)
	log.Printf("  API v1:        %s/api/v1/", base)
	log.Printf("Business hours %s (%s)", a.cfg.Hours(), a.cfg.TimezoneLabel)

	errCh := make(chan error, 2)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		if err := a.poller.Run(pollCtx); err != nil {
			errCh <- fmt.Errorf("telegram: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	stopPolling()
	<-pollDone
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http shutdown: %w", err)
	}
	return runErr
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("application: close: %v", err)
		}
	}
	a.closers = nil
}

func closeDB(db *gorm.DB) func() error {
	return func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
}
