package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/psds-microservice/support-bot/internal/errs"
	"github.com/psds-microservice/support-bot/internal/model"
	"github.com/psds-microservice/support-bot/internal/service"
)

func TestTicketService_CreateTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.operators.RegisterOrRefresh(ctx, 501, "Olga", "olga", -100); err != nil {
		t.Fatalf("register operator: %v", err)
	}
	op, err := f.operators.SelectForCategory(ctx, -100)
	if err != nil {
		t.Fatalf("select operator: %v", err)
	}

	in := newTicketInput(7, 55)
	in.Assignee = op
	ticket, err := f.tickets.CreateTicket(ctx, in)
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	if ticket.TicketNo != 1001 {
		t.Errorf("expected ticket_no 1001, got %d", ticket.TicketNo)
	}
	if ticket.Status != model.TicketStatusOpen {
		t.Errorf("expected OPEN, got %s", ticket.Status)
	}
	if ticket.AssigneeID == nil || *ticket.AssigneeID != 501 || ticket.AssigneeName != "Olga" {
		t.Errorf("unexpected assignee %v %q", ticket.AssigneeID, ticket.AssigneeName)
	}

	msgs, err := f.tickets.Messages(ctx, 1001)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].SenderRole != model.SenderClient || msgs[0].Text != "Where's my order?" {
		t.Errorf("unexpected first message log: %+v", msgs)
	}

	var stored model.Operator
	if err := f.db.Where("user_id = ?", 501).First(&stored).Error; err != nil {
		t.Fatalf("load operator: %v", err)
	}
	if stored.LastAssignedAt == nil || !stored.LastAssignedAt.Equal(testStart) {
		t.Errorf("expected last_assigned_at %s, got %v", testStart, stored.LastAssignedAt)
	}
}

func TestTicketService_CreateTicketRejectsSecondActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.tickets.CreateTicket(ctx, newTicketInput(7, 1)); err != nil {
		t.Fatalf("first CreateTicket failed: %v", err)
	}
	_, err := f.tickets.CreateTicket(ctx, newTicketInput(7, 2))
	if !errors.Is(err, errs.ErrActiveTicketExists) {
		t.Fatalf("expected ErrActiveTicketExists, got %v", err)
	}

	if _, err := f.tickets.Close(ctx, 1001); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	second, err := f.tickets.CreateTicket(ctx, newTicketInput(7, 3))
	if err != nil {
		t.Fatalf("CreateTicket after close failed: %v", err)
	}
	if second.TicketNo != 1002 {
		t.Errorf("expected 1002, got %d", second.TicketNo)
	}
}

func TestTicketService_ConcurrentCreateSameClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(card int64) {
			defer wg.Done()
			_, err := f.tickets.CreateTicket(ctx, newTicketInput(42, card))
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else if !errors.Is(err, errs.ErrActiveTicketExists) {
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected exactly one ticket, got %d", created)
	}
	var active int64
	f.db.Model(&model.Ticket{}).Where("client_id = ? AND status IN ?", 42,
		[]model.TicketStatus{model.TicketStatusOpen, model.TicketStatusInProgress}).Count(&active)
	if active != 1 {
		t.Fatalf("expected one active ticket in store, got %d", active)
	}
}

func TestTicketService_ConcurrentNumbersUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const clients = 12
	var wg sync.WaitGroup
	numbers := make(chan int64, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(clientID int64) {
			defer wg.Done()
			ticket, err := f.tickets.CreateTicket(ctx, newTicketInput(clientID, clientID))
			if err != nil {
				t.Errorf("CreateTicket(%d): %v", clientID, err)
				return
			}
			numbers <- ticket.TicketNo
		}(int64(100 + i))
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int64]bool)
	for n := range numbers {
		if seen[n] {
			t.Errorf("ticket number %d issued twice", n)
		}
		if n <= 1000 || n > 1000+clients {
			t.Errorf("ticket number %d out of range", n)
		}
		seen[n] = true
	}
}

func TestTicketService_NextTicketNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.tickets.NextTicketNumber(ctx)
	if err != nil {
		t.Fatalf("NextTicketNumber failed: %v", err)
	}
	if first != 1001 {
		t.Errorf("expected 1001, got %d", first)
	}
	second, _ := f.tickets.NextTicketNumber(ctx)
	if second <= first {
		t.Errorf("expected strictly increasing, got %d then %d", first, second)
	}

	// gap from imported data
	if err := f.db.Create(&model.Ticket{
		TicketNo: 5000, ClientID: 1, Category: model.CategorySales, GroupID: -1,
		Status: model.TicketStatusClosed, CreatedAt: testStart, UpdatedAt: testStart,
	}).Error; err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	third, _ := f.tickets.NextTicketNumber(ctx)
	if third != 5001 {
		t.Errorf("expected 5001 after gap, got %d", third)
	}
}

func TestTicketService_GetActiveTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.tickets.GetActiveTicket(ctx, 7); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
	created, err := f.tickets.CreateTicket(ctx, newTicketInput(7, 10))
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	active, err := f.tickets.GetActiveTicket(ctx, 7)
	if err != nil {
		t.Fatalf("GetActiveTicket failed: %v", err)
	}
	if active.TicketNo != created.TicketNo {
		t.Errorf("expected %d, got %d", created.TicketNo, active.TicketNo)
	}
	if _, err := f.tickets.MarkInProgress(ctx, created.TicketNo); err != nil {
		t.Fatalf("MarkInProgress failed: %v", err)
	}
	if _, err := f.tickets.GetActiveTicket(ctx, 7); err != nil {
		t.Errorf("IN_PROGRESS ticket must stay active: %v", err)
	}
}

func TestTicketService_CloseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.tickets.CreateTicket(ctx, newTicketInput(7, 10)); err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	changed, err := f.tickets.Close(ctx, 1001)
	if err != nil || !changed {
		t.Fatalf("first Close = %v, %v", changed, err)
	}
	closed, _ := f.tickets.GetByNumber(ctx, 1001)
	if closed.ClosedAt == nil {
		t.Fatal("closed_at not set")
	}
	firstClosedAt := *closed.ClosedAt

	f.clock.Advance(time.Hour)
	if err := f.tickets.SetStatus(ctx, 1001, model.TicketStatusClosed); err != nil {
		t.Fatalf("repeated close errored: %v", err)
	}
	again, _ := f.tickets.GetByNumber(ctx, 1001)
	if again.Status != model.TicketStatusClosed || !again.ClosedAt.Equal(firstClosedAt) {
		t.Errorf("closed_at changed on repeated close: %v -> %v", firstClosedAt, again.ClosedAt)
	}

	if _, err := f.tickets.Close(ctx, 9999); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Errorf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestTicketService_SetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.tickets.CreateTicket(ctx, newTicketInput(7, 10)); err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	if err := f.tickets.SetStatus(ctx, 1001, "REOPENED"); !errors.Is(err, errs.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	if err := f.tickets.SetStatus(ctx, 1001, model.TicketStatusInProgress); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	got, _ := f.tickets.GetByNumber(ctx, 1001)
	if got.Status != model.TicketStatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", got.Status)
	}
	if err := f.tickets.SetStatus(ctx, 4242, model.TicketStatusOpen); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Errorf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestTicketService_MarkInProgressOnlyFromOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.tickets.CreateTicket(ctx, newTicketInput(7, 10)); err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	changed, err := f.tickets.MarkInProgress(ctx, 1001)
	if err != nil || !changed {
		t.Fatalf("first MarkInProgress = %v, %v", changed, err)
	}
	changed, err = f.tickets.MarkInProgress(ctx, 1001)
	if err != nil || changed {
		t.Fatalf("second MarkInProgress = %v, %v", changed, err)
	}
	f.tickets.Close(ctx, 1001)
	changed, _ = f.tickets.MarkInProgress(ctx, 1001)
	if changed {
		t.Error("closed ticket must not return to IN_PROGRESS")
	}
}

func TestTicketService_FindByCardMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.tickets.CreateTicket(ctx, newTicketInput(7, 77)); err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	got, err := f.tickets.FindByCardMessage(ctx, -100, 77)
	if err != nil {
		t.Fatalf("FindByCardMessage failed: %v", err)
	}
	if got.TicketNo != 1001 {
		t.Errorf("expected 1001, got %d", got.TicketNo)
	}
	if _, err := f.tickets.FindByCardMessage(ctx, -200, 77); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Errorf("other channel must not match, got %v", err)
	}
	if _, err := f.tickets.FindByCardMessage(ctx, -100, 78); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Errorf("other message must not match, got %v", err)
	}
}

func TestTicketService_AppendMessageAndLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.tickets.CreateTicket(ctx, newTicketInput(7, 10))
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	err = f.tickets.AppendMessage(ctx, service.NewMessage{
		TicketID: ticket.ID, TicketNo: ticket.TicketNo,
		Role: model.SenderOperator, SenderID: 501, SenderName: "Olga", Text: "On its way",
	})
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if err := f.tickets.AppendMessage(ctx, service.NewMessage{TicketID: ticket.ID, Role: "bot"}); err == nil {
		t.Error("expected error for unknown role")
	}
	msgs, _ := f.tickets.Messages(ctx, ticket.TicketNo)
	if len(msgs) != 2 || msgs[1].SenderRole != model.SenderOperator {
		t.Errorf("unexpected log: %+v", msgs)
	}

	f.tickets.Close(ctx, ticket.TicketNo)
	f.tickets.CreateTicket(ctx, newTicketInput(7, 11))

	byClient, err := f.tickets.FindByClient(ctx, 7, 10)
	if err != nil || len(byClient) != 2 {
		t.Fatalf("FindByClient = %d items, %v", len(byClient), err)
	}
	if byClient[0].TicketNo != 1002 {
		t.Errorf("expected most recent first, got %d", byClient[0].TicketNo)
	}
	byName, _ := f.tickets.FindByUsername(ctx, "ivan", 1)
	if len(byName) != 1 || byName[0].TicketNo != 1002 {
		t.Errorf("FindByUsername limit/order mismatch: %+v", byName)
	}

	items, total, err := f.tickets.List(ctx, map[string]interface{}{"status = ?": model.TicketStatusClosed}, 0, 0)
	if err != nil || total != 1 || len(items) != 1 {
		t.Errorf("List closed = %d/%d, %v", len(items), total, err)
	}
	if _, err := f.tickets.Messages(ctx, 31337); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Errorf("expected ErrTicketNotFound, got %v", err)
	}
}
