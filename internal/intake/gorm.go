package intake

import (
	"context"
	"errors"

	"github.com/psds-microservice/support-bot/internal/clock"
	"github.com/psds-microservice/support-bot/internal/errs"
	"github.com/psds-microservice/support-bot/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTracker хранит ожидающие сообщения в таблице pending_intakes.
type GormTracker struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewGormTracker(db *gorm.DB, clk clock.Clock) *GormTracker {
	return &GormTracker{db: db, clock: clk}
}

func (t *GormTracker) Save(ctx context.Context, clientID int64, text string) error {
	return t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_text", "created_at"}),
	}).Create(&model.PendingIntake{
		ClientID:  clientID,
		FirstText: text,
		CreatedAt: t.clock.Now().UTC(),
	}).Error
}

func (t *GormTracker) Get(ctx context.Context, clientID int64) (*model.PendingIntake, error) {
	var p model.PendingIntake
	if err := t.db.WithContext(ctx).Where("client_id = ?", clientID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrPendingNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (t *GormTracker) Clear(ctx context.Context, clientID int64) error {
	return t.db.WithContext(ctx).Where("client_id = ?", clientID).Delete(&model.PendingIntake{}).Error
}

var _ Tracker = (*GormTracker)(nil)
