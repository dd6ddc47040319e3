package tickets

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
	"github.com/ivankudzin/tgapp/moderator/internal/pkg/keylock"
	pgrepo "github.com/ivankudzin/tgapp/moderator/internal/repo/postgres"
)

type memoryStore struct {
	mu      sync.Mutex
	nextID  int64
	tickets []model.Ticket
	// hideOpen makes the next FindOpen calls miss, simulating a concurrent writer
	// outside this process.
	hideOpen int
}

func (m *memoryStore) FindOpen(_ context.Context, communityID, userID int64) (model.Ticket, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hideOpen > 0 {
		m.hideOpen--
		return model.Ticket{}, false, nil
	}
	for _, t := range m.tickets {
		if t.CommunityID == communityID && t.UserID == userID && t.Status == enums.TicketStatusOpen {
			return t, true, nil
		}
	}
	return model.Ticket{}, false, nil
}

func (m *memoryStore) Create(_ context.Context, ticket model.Ticket) (model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tickets {
		if t.ChannelRef == ticket.ChannelRef {
			return model.Ticket{}, pgrepo.ErrUniqueViolation
		}
		if t.CommunityID == ticket.CommunityID && t.UserID == ticket.UserID && t.Status == enums.TicketStatusOpen {
			return model.Ticket{}, pgrepo.ErrUniqueViolation
		}
	}
	m.nextID++
	ticket.ID = m.nextID
	ticket.Status = enums.TicketStatusOpen
	ticket.CreatedAt = time.Now()
	m.tickets = append(m.tickets, ticket)
	return ticket, nil
}

func (m *memoryStore) GetByID(_ context.Context, ticketID int64) (model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tickets {
		if t.ID == ticketID {
			return t, nil
		}
	}
	return model.Ticket{}, pgrepo.ErrTicketNotFound
}

func (m *memoryStore) GetByChannelRef(_ context.Context, channelRef string) (model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tickets {
		if t.ChannelRef == channelRef {
			return t, nil
		}
	}
	return model.Ticket{}, pgrepo.ErrTicketNotFound
}

func (m *memoryStore) Close(_ context.Context, ticketID, closedBy int64) (model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.tickets {
		if m.tickets[i].ID == ticketID && m.tickets[i].Status == enums.TicketStatusOpen {
			m.tickets[i].Status = enums.TicketStatusClosed
			m.tickets[i].ClosedBy = &closedBy
			return m.tickets[i], nil
		}
	}
	return model.Ticket{}, pgrepo.ErrTicketNotFound
}

type fakePlatform struct {
	created atomic.Int64
	mu      sync.Mutex
	deleted []string
	delay   time.Duration
}

func (p *fakePlatform) CreateTicketChannel(_ context.Context, chatID int64, _ string) (string, error) {
	time.Sleep(p.delay)
	n := p.created.Add(1)
	return strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(n, 10), nil
}

func (p *fakePlatform) DeleteTicketChannel(_ context.Context, channelRef string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, channelRef)
	return nil
}

type staticGuilds struct {
	ticketChat int64
}

func (g staticGuilds) Ensure(_ context.Context, communityID int64) (model.GuildConfig, error) {
	return model.GuildConfig{CommunityID: communityID, TicketChannelID: g.ticketChat}, nil
}

func TestConcurrentOpenCreatesOneTicket(t *testing.T) {
	store := &memoryStore{}
	platform := &fakePlatform{delay: 20 * time.Millisecond}
	svc := NewService(store, staticGuilds{ticketChat: -300}, platform, keylock.New(time.Second), nil, nil)

	var wg sync.WaitGroup
	results := make([]model.Ticket, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = svc.Open(context.Background(), OpenInput{CommunityID: -100, UserID: 42, Username: "neo"})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("open: %v", err)
		}
	}
	if results[0].ID != results[1].ID || results[0].ChannelRef != results[1].ChannelRef {
		t.Fatalf("callers received different tickets: %+v vs %+v", results[0], results[1])
	}
	if platform.created.Load() != 1 {
		t.Fatalf("expected one channel created, got %d", platform.created.Load())
	}
	if len(store.tickets) != 1 {
		t.Fatalf("expected one persisted ticket, got %d", len(store.tickets))
	}
}

func TestOpenRecoversFromUniqueViolation(t *testing.T) {
	store := &memoryStore{}
	platform := &fakePlatform{}
	svc := NewService(store, staticGuilds{ticketChat: -300}, platform, nil, nil, nil)
	ctx := context.Background()

	existing, created, err := svc.Open(ctx, OpenInput{CommunityID: -100, UserID: 42})
	if err != nil || !created {
		t.Fatalf("first open: created=%v err=%v", created, err)
	}

	// Both pre-create lookups miss, as if another instance inserted concurrently.
	store.hideOpen = 2
	got, created, err := svc.Open(ctx, OpenInput{CommunityID: -100, UserID: 42})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	if created || got.ID != existing.ID {
		t.Fatalf("expected existing ticket %d, got %+v created=%v", existing.ID, got, created)
	}
	if len(platform.deleted) != 1 || platform.deleted[0] != "-300:2" {
		t.Fatalf("redundant channel must be deleted, got %v", platform.deleted)
	}
}

func TestOpenReturnsExistingWithoutLock(t *testing.T) {
	store := &memoryStore{}
	platform := &fakePlatform{}
	svc := NewService(store, nil, platform, nil, nil, nil)
	ctx := context.Background()

	first, _, err := svc.Open(ctx, OpenInput{CommunityID: -100, UserID: 42})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if first.ChannelRef != "-100:1" {
		t.Fatalf("community chat expected as fallback ticket chat, got %s", first.ChannelRef)
	}
	second, created, err := svc.Open(ctx, OpenInput{CommunityID: -100, UserID: 42})
	if err != nil || created || second.ID != first.ID {
		t.Fatalf("expected existing ticket, got %+v created=%v err=%v", second, created, err)
	}
}

func TestCloseDeletesChannel(t *testing.T) {
	store := &memoryStore{}
	platform := &fakePlatform{}
	svc := NewService(store, staticGuilds{ticketChat: -300}, platform, nil, nil, nil)
	ctx := context.Background()

	ticket, _, err := svc.Open(ctx, OpenInput{CommunityID: -100, UserID: 42})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	closed, err := svc.CloseByChannel(ctx, ticket.ChannelRef, 7)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != enums.TicketStatusClosed || closed.ClosedBy == nil || *closed.ClosedBy != 7 {
		t.Fatalf("unexpected closed ticket %+v", closed)
	}
	if len(platform.deleted) != 1 || platform.deleted[0] != ticket.ChannelRef {
		t.Fatalf("expected channel deletion, got %v", platform.deleted)
	}

	if _, err := svc.Close(ctx, ticket.ID, 7); !errors.Is(err, pgrepo.ErrTicketNotFound) {
		t.Fatalf("closing twice must report not found, got %v", err)
	}

	reopened, created, err := svc.Open(ctx, OpenInput{CommunityID: -100, UserID: 42})
	if err != nil || !created || reopened.ID == ticket.ID {
		t.Fatalf("expected a fresh ticket after close, got %+v created=%v err=%v", reopened, created, err)
	}
}
