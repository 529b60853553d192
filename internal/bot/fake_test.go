package bot

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/psds-microservice/support-bot/internal/clock"
	"github.com/psds-microservice/support-bot/internal/config"
	"github.com/psds-microservice/support-bot/internal/database"
	"github.com/psds-microservice/support-bot/internal/intake"
	"github.com/psds-microservice/support-bot/internal/model"
	"github.com/psds-microservice/support-bot/internal/service"
	"gorm.io/gorm"
)

const (
	channelSales    int64 = -1001
	channelSupport  int64 = -1002
	channelDelivery int64 = -1003
	strangerChat    int64 = -9999
)

var (
	msk = time.FixedZone("MSK", 3*60*60)
	// 09:00 МСК, inside business hours.
	testStart = time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	client    = User{ID: 7, FullName: "Ivan Petrov", Username: "ivan"}
	operator  = User{ID: 501, FullName: "Oleg Sidorov", Username: "oleg"}
)

type sentMessage struct {
	ID     int
	ChatID int64
	Text   string
	Opts   SendOptions
}

type editedMessage struct {
	ChatID    int64
	MessageID int
	Text      string
	Buttons   [][]Button
}

type answer struct {
	CallbackID string
	Text       string
	Alert      bool
}

type fakeGateway struct {
	mu       sync.Mutex
	nextID   int
	sent     []sentMessage
	edits    []editedMessage
	answers  []answer
	admins   map[int64][]int64
	adminErr error
	// sendErr and editErr fail every Send or Edit to the given chat.
	sendErr map[int64]error
	editErr map[int64]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		nextID:  100,
		admins:  map[int64][]int64{},
		sendErr: map[int64]error{},
		editErr: map[int64]error{},
	}
}

func (g *fakeGateway) Send(_ context.Context, chatID int64, text string, opts SendOptions) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.sendErr[chatID]; err != nil {
		return 0, err
	}
	g.nextID++
	g.sent = append(g.sent, sentMessage{ID: g.nextID, ChatID: chatID, Text: text, Opts: opts})
	return g.nextID, nil
}

func (g *fakeGateway) Edit(_ context.Context, chatID int64, messageID int, text string, buttons [][]Button) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.editErr[chatID]; err != nil {
		return err
	}
	g.edits = append(g.edits, editedMessage{ChatID: chatID, MessageID: messageID, Text: text, Buttons: buttons})
	return nil
}

func (g *fakeGateway) AnswerChoice(_ context.Context, callbackID, text string, alert bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.answers = append(g.answers, answer{CallbackID: callbackID, Text: text, Alert: alert})
	return nil
}

func (g *fakeGateway) Administrators(_ context.Context, chatID int64) ([]int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.adminErr != nil {
		return nil, g.adminErr
	}
	return g.admins[chatID], nil
}

// to returns the texts sent to chatID in order.
func (g *fakeGateway) to(chatID int64) []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sentMessage
	for _, m := range g.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (g *fakeGateway) last(t *testing.T, chatID int64) sentMessage {
	t.Helper()
	msgs := g.to(chatID)
	if len(msgs) == 0 {
		t.Fatalf("nothing sent to %d", chatID)
	}
	return msgs[len(msgs)-1]
}

func (g *fakeGateway) lastAnswer(t *testing.T) answer {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.answers) == 0 {
		t.Fatal("no callback answered")
	}
	return g.answers[len(g.answers)-1]
}

type publishedEvent struct {
	Name    string
	Payload map[string]interface{}
}

type fakeEvents struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakeEvents) ProduceTicketEvent(_ context.Context, event string, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{Name: event, Payload: payload})
}

func (f *fakeEvents) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Name)
	}
	return out
}

type fakeIndexer struct {
	mu      sync.Mutex
	indexed []int64
}

func (f *fakeIndexer) IndexTicketAsync(t *model.Ticket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, t.TicketNo)
}

type env struct {
	db        *gorm.DB
	clock     *clock.Fake
	gw        *fakeGateway
	events    *fakeEvents
	search    *fakeIndexer
	tickets   *service.TicketService
	operators *service.OperatorService
	intake    *intake.GormTracker
	deps      Deps
	router    *Router
}

// rebuild recreates the router after a test swapped some of e.deps.
func (e *env) rebuild() {
	e.router = NewRouter(e.deps)
}

// failingTickets fails CreateTicket and delegates everything else.
type failingTickets struct {
	service.TicketServicer
	err error
}

func (f failingTickets) CreateTicket(context.Context, service.NewTicket) (*model.Ticket, error) {
	return nil, f.err
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "bot.db"))
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

func allChannels() map[model.Category]int64 {
	return map[model.Category]int64{
		model.CategorySales:    channelSales,
		model.CategorySupport:  channelSupport,
		model.CategoryDelivery: channelDelivery,
	}
}

func newEnv(t *testing.T, groups map[model.Category]int64) *env {
	t.Helper()
	db := setupTestDB(t)
	clk := clock.NewFake(testStart)
	hours, err := clock.NewWindow("07:30", "18:00", msk)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	ops := service.NewOperatorService(db, clk)
	e := &env{
		db:        db,
		clock:     clk,
		gw:        newFakeGateway(),
		events:    &fakeEvents{},
		search:    &fakeIndexer{},
		operators: ops,
		tickets:   service.NewTicketService(db, clk, 1000, ops),
		intake:    intake.NewGormTracker(db, clk),
	}
	e.deps = Deps{
		Tickets:   e.tickets,
		Operators: e.operators,
		Intake:    e.intake,
		Gateway:   e.gw,
		Clock:     clk,
		Channels:  config.NewChannels(groups),
		Hours:     hours,
		TZLabel:   "МСК",
		Events:    e.events,
		Search:    e.search,
	}
	e.rebuild()
	return e
}

func (e *env) registerOperator(t *testing.T, u User, channel int64) {
	t.Helper()
	if err := e.operators.RegisterOrRefresh(context.Background(), u.ID, u.FullName, u.Username, channel); err != nil {
		t.Fatalf("register operator: %v", err)
	}
}

func (e *env) ticketCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&model.Ticket{}).Count(&n).Error; err != nil {
		t.Fatalf("count tickets: %v", err)
	}
	return n
}

// openTicket drives a customer through message + category choice.
func (e *env) openTicket(t *testing.T, u User, text string, cat model.Category) *model.Ticket {
	t.Helper()
	ctx := context.Background()
	e.router.HandleClientMessage(ctx, ClientMessage{ChatID: u.ID, From: u, Text: text})
	e.router.HandleCategoryChoice(ctx, CategoryChoice{CallbackID: "cb-open", ChatID: u.ID, From: u, Category: string(cat)})
	ticket, err := e.tickets.GetActiveTicket(ctx, u.ID)
	if err != nil {
		t.Fatalf("active ticket after choice: %v", err)
	}
	return ticket
}

var (
	errAdmins    = errors.New("admins unavailable")
	errTransport = errors.New("transport unavailable")
	errStore     = errors.New("store unavailable")
)
