package model

import "time"

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// Valid сообщает, входит ли статус в допустимый набор.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusClosed:
		return true
	}
	return false
}

// Active — заявка ещё не закрыта.
func (s TicketStatus) Active() bool {
	return s == TicketStatusOpen || s == TicketStatusInProgress
}

// SenderRole — автор записи в журнале сообщений заявки.
type SenderRole string

const (
	SenderClient   SenderRole = "client"
	SenderOperator SenderRole = "operator"
	SenderSystem   SenderRole = "system"
)

func (r SenderRole) Valid() bool {
	switch r {
	case SenderClient, SenderOperator, SenderSystem:
		return true
	}
	return false
}

type Ticket struct {
	ID             uint64       `gorm:"primaryKey" json:"id"`
	TicketNo       int64        `gorm:"uniqueIndex;not null" json:"ticket_no"`
	ClientID       int64        `gorm:"index;not null" json:"client_id"`
	ClientName     string       `gorm:"type:varchar(255)" json:"client_name"`
	ClientUsername string       `gorm:"type:varchar(64);index" json:"client_username,omitempty"`
	Category       Category     `gorm:"type:varchar(32);index;not null" json:"category"`
	GroupID        int64        `gorm:"index;not null" json:"group_id"`
	Status         TicketStatus `gorm:"type:varchar(32);index;not null" json:"status"`
	AssigneeID     *int64       `gorm:"index" json:"assignee_id,omitempty"`
	AssigneeName   string       `gorm:"type:varchar(255)" json:"assignee_name,omitempty"`
	GroupMessageID int64        `gorm:"index" json:"group_message_id"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

type Message struct {
	ID         uint64     `gorm:"primaryKey" json:"id"`
	TicketID   uint64     `gorm:"index;not null" json:"ticket_id"`
	TicketNo   int64      `gorm:"index;not null" json:"ticket_no"`
	SenderRole SenderRole `gorm:"type:varchar(16);not null" json:"sender_role"`
	SenderID   int64      `json:"sender_id"`
	SenderName string     `gorm:"type:varchar(255)" json:"sender_name"`
	Text       string     `gorm:"type:text" json:"text"`
	CreatedAt  time.Time  `json:"created_at"`
}

type PendingIntake struct {
	ClientID  int64     `gorm:"primaryKey;autoIncrement:false" json:"client_id"`
	FirstText string    `gorm:"type:text;not null" json:"first_text"`
	CreatedAt time.Time `json:"created_at"`
}

type Operator struct {
	ID             uint64     `gorm:"primaryKey" json:"id"`
	UserID         int64      `gorm:"uniqueIndex;not null" json:"user_id"`
	FullName       string     `gorm:"type:varchar(255)" json:"full_name"`
	Username       string     `gorm:"type:varchar(64)" json:"username,omitempty"`
	GroupID        int64      `gorm:"index;not null" json:"group_id"`
	Active         bool       `gorm:"not null;default:true" json:"active"`
	LastAssignedAt *time.Time `json:"last_assigned_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
