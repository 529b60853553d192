package errs

import "errors"

var (
	ErrTicketNotFound        = errors.New("ticket not found")
	ErrPendingNotFound       = errors.New("pending intake not found")
	ErrOperatorNotFound      = errors.New("no active operator for category")
	ErrActiveTicketExists    = errors.New("client already has an active ticket")
	ErrInvalidStatus         = errors.New("invalid ticket status")
	ErrCategoryNotConfigured = errors.New("category channel is not configured")
	ErrInvalidQuery          = errors.New("invalid lookup query")
)
