package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/psds-microservice/support-bot/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// NewLogger — логгер gorm: ошибки и медленные запросы. «Запись не найдена»
// на обычном трафике (первое сообщение клиента, пустой пул операторов) не пишется.
func NewLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Open открывает соединение через gorm. Для sqlite схема создаётся AutoMigrate,
// для postgres — миграциями goose (см. MigrateUp).
func Open(driver, dsn string) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: NewLogger(log.New(os.Stdout, "\r\n", log.LstdFlags))}
	switch driver {
	case DriverPostgres:
		db, err := gorm.Open(postgres.Open(dsn), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return db, nil
	case DriverSQLite:
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		db, err := gorm.Open(sqlite.Open(dsn+sep+"_busy_timeout=5000&_foreign_keys=on"), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		// single writer; every store operation goes through one connection
		sqlDB.SetMaxOpenConns(1)
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
		log.Printf("database: sqlite %s ready", dsn)
		return db, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", driver)
}

// AutoMigrate создаёт таблицы tickets, messages, pending_intakes, operators.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Ticket{},
		&model.Message{},
		&model.PendingIntake{},
		&model.Operator{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// Connect готовит схему и открывает хранилище: для postgres сначала
// применяются миграции по migrateURL.
func Connect(driver, dsn, migrateURL string) (*gorm.DB, error) {
	if driver == DriverPostgres {
		if err := MigrateUp(migrateURL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return Open(driver, dsn)
}

// Ping проверяет доступность базы (для /ready).
func Ping(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
