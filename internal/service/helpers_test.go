package service_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/psds-microservice/support-bot/internal/clock"
	"github.com/psds-microservice/support-bot/internal/database"
	"github.com/psds-microservice/support-bot/internal/model"
	"github.com/psds-microservice/support-bot/internal/service"
	"gorm.io/gorm"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// setupTestDB opens a fresh sqlite database with the full schema.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "support.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type fixture struct {
	db        *gorm.DB
	clock     *clock.Fake
	tickets   *service.TicketService
	operators *service.OperatorService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	clk := clock.NewFake(testStart)
	ops := service.NewOperatorService(db, clk)
	return &fixture{
		db:        db,
		clock:     clk,
		operators: ops,
		tickets:   service.NewTicketService(db, clk, 1000, ops),
	}
}

func newTicketInput(clientID int64, card int64) service.NewTicket {
	return service.NewTicket{
		ClientID:       clientID,
		ClientName:     "Ivan Petrov",
		ClientUsername: "ivan",
		Category:       model.CategoryDelivery,
		GroupID:        -100,
		FirstText:      "Where's my order?",
		CardMessageID:  card,
	}
}
