// Package intake holds at most one unclassified client message per client
// while the client chooses a ticket category.
package intake

import (
	"context"

	"github.com/psds-microservice/support-bot/internal/model"
)

// Tracker is the pending-intake scratch space. Save replaces any earlier
// text for the client; Get returns errs.ErrPendingNotFound when nothing is
// stored; Clear is idempotent.
type Tracker interface {
	Save(ctx context.Context, clientID int64, text string) error
	Get(ctx context.Context, clientID int64) (*model.PendingIntake, error)
	Clear(ctx context.Context, clientID int64) error
}
