package service

import (
	"context"
	"errors"
	"time"

	"github.com/psds-microservice/support-bot/internal/clock"
	"github.com/psds-microservice/support-bot/internal/errs"
	"github.com/psds-microservice/support-bot/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OperatorRegistry — реестр операторов по каналам тем.
type OperatorRegistry interface {
	RegisterOrRefresh(ctx context.Context, userID int64, fullName, username string, groupID int64) error
	SelectForCategory(ctx context.Context, groupID int64) (*model.Operator, error)
	RecordAssignment(ctx context.Context, userID int64) error
	ListActive(ctx context.Context, groupID int64) ([]model.Operator, error)
}

type OperatorService struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewOperatorService(db *gorm.DB, clk clock.Clock) *OperatorService {
	return &OperatorService{db: db, clock: clk}
}

func (s *OperatorService) now() time.Time {
	return s.clock.Now().UTC()
}

// RegisterOrRefresh добавляет оператора или обновляет его имя и канал.
// История назначений (last_assigned_at) при обновлении сохраняется.
func (s *OperatorService) RegisterOrRefresh(ctx context.Context, userID int64, fullName, username string, groupID int64) error {
	now := s.now()
	op := &model.Operator{
		UserID:    userID,
		FullName:  fullName,
		Username:  username,
		GroupID:   groupID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "username", "group_id", "active", "updated_at"}),
	}).Create(op).Error
}

// SelectForCategory — round-robin: сначала ни разу не назначенные (в порядке
// регистрации), затем с самым давним last_assigned_at.
func (s *OperatorService) SelectForCategory(ctx context.Context, groupID int64) (*model.Operator, error) {
	var op model.Operator
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND active = ?", groupID, true).
		Order("CASE WHEN last_assigned_at IS NULL THEN 0 ELSE 1 END").
		Order("last_assigned_at ASC").
		Order("id ASC").
		First(&op).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrOperatorNotFound
		}
		return nil, err
	}
	return &op, nil
}

func (s *OperatorService) RecordAssignment(ctx context.Context, userID int64) error {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&model.Operator{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"last_assigned_at": now, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrOperatorNotFound
	}
	return nil
}

func (s *OperatorService) ListActive(ctx context.Context, groupID int64) ([]model.Operator, error) {
	var items []model.Operator
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND active = ?", groupID, true).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

var (
	_ OperatorRegistry   = (*OperatorService)(nil)
	_ AssignmentRecorder = (*OperatorService)(nil)
	_ TicketServicer     = (*TicketService)(nil)
)
