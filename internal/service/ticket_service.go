package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/psds-microservice/support-bot/internal/clock"
	"github.com/psds-microservice/support-bot/internal/errs"
	"github.com/psds-microservice/support-bot/internal/model"
	"gorm.io/gorm"
)

// TicketServicer — интерфейс хранилища заявок для роутера и HTTP-хендлеров.
type TicketServicer interface {
	GetActiveTicket(ctx context.Context, clientID int64) (*model.Ticket, error)
	NextTicketNumber(ctx context.Context) (int64, error)
	CreateTicket(ctx context.Context, in NewTicket) (*model.Ticket, error)
	SetStatus(ctx context.Context, ticketNo int64, status model.TicketStatus) error
	MarkInProgress(ctx context.Context, ticketNo int64) (bool, error)
	Close(ctx context.Context, ticketNo int64) (bool, error)
	FindByCardMessage(ctx context.Context, groupID, messageID int64) (*model.Ticket, error)
	AppendMessage(ctx context.Context, msg NewMessage) error
	GetByNumber(ctx context.Context, ticketNo int64) (*model.Ticket, error)
	FindByUsername(ctx context.Context, username string, limit int) ([]model.Ticket, error)
	FindByClient(ctx context.Context, clientID int64, limit int) ([]model.Ticket, error)
	List(ctx context.Context, filter map[string]interface{}, limit, offset int) ([]model.Ticket, int64, error)
	Messages(ctx context.Context, ticketNo int64) ([]model.Message, error)
}

// AssignmentRecorder получает сигнал о назначении оператора на новую заявку.
type AssignmentRecorder interface {
	RecordAssignment(ctx context.Context, userID int64) error
}

// NewTicket — данные для создания заявки вместе с первым сообщением клиента.
type NewTicket struct {
	ClientID       int64
	ClientName     string
	ClientUsername string
	Category       model.Category
	GroupID        int64
	FirstText      string
	CardMessageID  int64
	Assignee       *model.Operator
}

type NewMessage struct {
	TicketID   uint64
	TicketNo   int64
	Role       model.SenderRole
	SenderID   int64
	SenderName string
	Text       string
}

var activeStatuses = []model.TicketStatus{model.TicketStatusOpen, model.TicketStatusInProgress}

type TicketService struct {
	db        *gorm.DB
	clock     clock.Clock
	floor     int64
	operators AssignmentRecorder

	// mu serializes number allocation and ticket creation.
	mu         sync.Mutex
	lastIssued int64
}

func NewTicketService(db *gorm.DB, clk clock.Clock, floor int64, operators AssignmentRecorder) *TicketService {
	return &TicketService{db: db, clock: clk, floor: floor, operators: operators}
}

func (s *TicketService) now() time.Time {
	return s.clock.Now().UTC()
}

// GetActiveTicket возвращает последнюю заявку клиента в статусе OPEN или IN_PROGRESS.
func (s *TicketService) GetActiveTicket(ctx context.Context, clientID int64) (*model.Ticket, error) {
	return activeTicket(s.db.WithContext(ctx), clientID)
}

func activeTicket(tx *gorm.DB, clientID int64) (*model.Ticket, error) {
	var t model.Ticket
	err := tx.Where("client_id = ? AND status IN ?", clientID, activeStatuses).
		Order("id DESC").
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

// NextTicketNumber выдаёт следующий номер: max(ticket_no) в базе, но не меньше
// нижней границы и ранее выданных номеров, плюс один.
func (s *TicketService) NextTicketNumber(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextNumber(s.db.WithContext(ctx))
}

func (s *TicketService) nextNumber(tx *gorm.DB) (int64, error) {
	var max int64
	if err := tx.Model(&model.Ticket{}).
		Select("COALESCE(MAX(ticket_no), ?)", s.floor).
		Scan(&max).Error; err != nil {
		return 0, fmt.Errorf("max ticket_no: %w", err)
	}
	if max < s.floor {
		max = s.floor
	}
	if max < s.lastIssued {
		max = s.lastIssued
	}
	s.lastIssued = max + 1
	return s.lastIssued, nil
}

// CreateTicket атомарно выделяет номер, создаёт заявку (OPEN) и первое сообщение.
// Возвращает errs.ErrActiveTicketExists, если у клиента уже есть активная заявка.
func (s *TicketService) CreateTicket(ctx context.Context, in NewTicket) (*model.Ticket, error) {
	now := s.now()
	ticket := &model.Ticket{
		ClientID:       in.ClientID,
		ClientName:     in.ClientName,
		ClientUsername: in.ClientUsername,
		Category:       in.Category,
		GroupID:        in.GroupID,
		Status:         model.TicketStatusOpen,
		GroupMessageID: in.CardMessageID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.Assignee != nil {
		id := in.Assignee.UserID
		ticket.AssigneeID = &id
		ticket.AssigneeName = in.Assignee.FullName
	}

	s.mu.Lock()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := activeTicket(tx, in.ClientID); err == nil {
			return errs.ErrActiveTicketExists
		} else if !errors.Is(err, errs.ErrTicketNotFound) {
			return err
		}
		no, err := s.nextNumber(tx)
		if err != nil {
			return err
		}
		ticket.TicketNo = no
		if err := tx.Create(ticket).Error; err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		first := &model.Message{
			TicketID:   ticket.ID,
			TicketNo:   ticket.TicketNo,
			SenderRole: model.SenderClient,
			SenderID:   in.ClientID,
			SenderName: in.ClientName,
			Text:       in.FirstText,
			CreatedAt:  now,
		}
		if err := tx.Create(first).Error; err != nil {
			return fmt.Errorf("insert first message: %w", err)
		}
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if in.Assignee != nil && s.operators != nil {
		if err := s.operators.RecordAssignment(ctx, in.Assignee.UserID); err != nil {
			log.Printf("service: record assignment for operator %d: %v", in.Assignee.UserID, err)
		}
	}
	return ticket, nil
}

// SetStatus переводит заявку в status. Для CLOSED проставляет closed_at;
// повторное закрытие ничего не меняет.
func (s *TicketService) SetStatus(ctx context.Context, ticketNo int64, status model.TicketStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", errs.ErrInvalidStatus, status)
	}
	if status == model.TicketStatusClosed {
		_, err := s.Close(ctx, ticketNo)
		return err
	}
	res := s.db.WithContext(ctx).Model(&model.Ticket{}).
		Where("ticket_no = ?", ticketNo).
		Updates(map[string]interface{}{"status": status, "updated_at": s.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrTicketNotFound
	}
	return nil
}

// MarkInProgress переводит OPEN в IN_PROGRESS. changed=false, если заявка уже
// была в другом статусе.
func (s *TicketService) MarkInProgress(ctx context.Context, ticketNo int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Ticket{}).
		Where("ticket_no = ? AND status = ?", ticketNo, model.TicketStatusOpen).
		Updates(map[string]interface{}{"status": model.TicketStatusInProgress, "updated_at": s.now()})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, s.ensureExists(ctx, ticketNo)
	}
	return true, nil
}

// Close закрывает заявку. changed=false, если она уже была закрыта:
// closed_at при этом не перезаписывается.
func (s *TicketService) Close(ctx context.Context, ticketNo int64) (bool, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&model.Ticket{}).
		Where("ticket_no = ? AND status <> ?", ticketNo, model.TicketStatusClosed).
		Updates(map[string]interface{}{
			"status":     model.TicketStatusClosed,
			"closed_at":  now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, s.ensureExists(ctx, ticketNo)
	}
	return true, nil
}

func (s *TicketService) ensureExists(ctx context.Context, ticketNo int64) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Ticket{}).Where("ticket_no = ?", ticketNo).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrTicketNotFound
	}
	return nil
}

// FindByCardMessage ищет заявку по карточке в канале операторов.
func (s *TicketService) FindByCardMessage(ctx context.Context, groupID, messageID int64) (*model.Ticket, error) {
	var t model.Ticket
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND group_message_id = ?", groupID, messageID).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *TicketService) AppendMessage(ctx context.Context, msg NewMessage) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("append message: unknown sender role %q", msg.Role)
	}
	return s.db.WithContext(ctx).Create(&model.Message{
		TicketID:   msg.TicketID,
		TicketNo:   msg.TicketNo,
		SenderRole: msg.Role,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Text:       msg.Text,
		CreatedAt:  s.now(),
	}).Error
}

func (s *TicketService) GetByNumber(ctx context.Context, ticketNo int64) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).Where("ticket_no = ?", ticketNo).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

// FindByUsername — последние заявки клиента по @username, новые первыми.
func (s *TicketService) FindByUsername(ctx context.Context, username string, limit int) ([]model.Ticket, error) {
	var items []model.Ticket
	err := s.db.WithContext(ctx).
		Where("client_username = ?", username).
		Order("id DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (s *TicketService) FindByClient(ctx context.Context, clientID int64, limit int) ([]model.Ticket, error) {
	var items []model.Ticket
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("id DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (s *TicketService) List(ctx context.Context, filter map[string]interface{}, limit, offset int) ([]model.Ticket, int64, error) {
	var items []model.Ticket
	var total int64
	tx := s.db.WithContext(ctx).Model(&model.Ticket{})
	for k, v := range filter {
		tx = tx.Where(k, v)
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	if err := tx.Order("id DESC").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Messages — журнал сообщений заявки в порядке добавления.
func (s *TicketService) Messages(ctx context.Context, ticketNo int64) ([]model.Message, error) {
	if err := s.ensureExists(ctx, ticketNo); err != nil {
		return nil, err
	}
	var items []model.Message
	err := s.db.WithContext(ctx).
		Where("ticket_no = ?", ticketNo).
		Order("id ASC").
		Find(&items).Error
	return items, err
}
