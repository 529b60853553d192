package config

import (
	"testing"

	"github.com/psds-microservice/support-bot/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TZ", "UTC")
	t.Setenv("GROUP_SALES_ID", "-1001")
	t.Setenv("GROUP_SUPPORT_ID", "")
	t.Setenv("GROUP_DELIVERY_ID", "-1003")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TicketNoFloor != 1000 {
		t.Errorf("expected floor 1000, got %d", cfg.TicketNoFloor)
	}
	if got := cfg.Hours().String(); got != "07:30–18:00" {
		t.Errorf("unexpected hours %q", got)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Errorf("expected 2 brokers, got %v", cfg.KafkaBrokers)
	}

	ch := cfg.Channels()
	if id, ok := ch.Lookup(model.CategorySales); !ok || id != -1001 {
		t.Errorf("sales lookup = %d, %v", id, ok)
	}
	if _, ok := ch.Lookup(model.CategorySupport); ok {
		t.Error("support must be unset")
	}
	if !ch.Contains(-1003) || ch.Contains(0) {
		t.Error("Contains mismatch")
	}
	if cat, ok := ch.CategoryOf(-1003); !ok || cat != model.CategoryDelivery {
		t.Errorf("CategoryOf = %q, %v", cat, ok)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("TZ", "UTC")
	t.Setenv("GROUP_SALES_ID", "sales")
	if _, err := Load(); err == nil {
		t.Error("expected error for non-numeric group id")
	}

	t.Setenv("GROUP_SALES_ID", "")
	t.Setenv("WORK_START", "19:00")
	if _, err := Load(); err == nil {
		t.Error("expected error for inverted work window")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("TZ", "UTC")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg.DB.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown driver")
	}

	cfg.DB.Driver = DriverSQLite
	cfg.DB.Path = "test.db"
	if err := cfg.Validate(); err != nil {
		t.Errorf("sqlite config should be valid: %v", err)
	}
	if cfg.DSN() != "test.db" {
		t.Errorf("sqlite DSN = %q", cfg.DSN())
	}

	cfg.BotToken = ""
	if err := cfg.ValidateBot(); err == nil {
		t.Error("expected error without BOT_TOKEN")
	}
}
