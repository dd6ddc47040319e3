package botapp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
	tginfra "github.com/ivankudzin/tgapp/moderator/internal/infra/telegram"
	pgrepo "github.com/ivankudzin/tgapp/moderator/internal/repo/postgres"
	ticketsvc "github.com/ivankudzin/tgapp/moderator/internal/services/tickets"
)

type sentText struct {
	chatID int64
	ref    string
	text   string
}

type stubMessenger struct {
	sent []sentText
}

func (m *stubMessenger) SendText(_ context.Context, chatID int64, text string) error {
	m.sent = append(m.sent, sentText{chatID: chatID, text: text})
	return nil
}

func (m *stubMessenger) SendToTicket(_ context.Context, channelRef, text string) error {
	m.sent = append(m.sent, sentText{ref: channelRef, text: text})
	return nil
}

func (m *stubMessenger) last() string {
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].text
}

type stubTickets struct {
	openCalls int
	created   bool
	openErr   error
	ticket    model.Ticket
	getErr    error
	closedBy  int64
}

func (s *stubTickets) Open(_ context.Context, in ticketsvc.OpenInput) (model.Ticket, bool, error) {
	s.openCalls++
	if s.openErr != nil {
		return model.Ticket{}, false, s.openErr
	}
	s.ticket.CommunityID = in.CommunityID
	s.ticket.UserID = in.UserID
	return s.ticket, s.created, nil
}

func (s *stubTickets) Get(context.Context, int64) (model.Ticket, error) {
	if s.getErr != nil {
		return model.Ticket{}, s.getErr
	}
	return s.ticket, nil
}

func (s *stubTickets) Close(_ context.Context, _ int64, actorID int64) (model.Ticket, error) {
	s.closedBy = actorID
	s.ticket.Status = enums.TicketStatusClosed
	return s.ticket, nil
}

type stubStrikeReader struct {
	active    int
	standing  enums.Standing
	queried   int64
	pardonErr error
}

func (s *stubStrikeReader) Active(_ context.Context, _ int64, userID int64) (int, error) {
	s.queried = userID
	return s.active, nil
}

func (s *stubStrikeReader) Standing(context.Context, int64, int64) (enums.Standing, error) {
	return s.standing, nil
}

func (s *stubStrikeReader) Pardon(_ context.Context, strikeID int64) (model.Strike, error) {
	if s.pardonErr != nil {
		return model.Strike{}, s.pardonErr
	}
	return model.Strike{ID: strikeID, UserID: 7, Pardoned: true}, nil
}

func TestTicketCommandCreatesAndGreets(t *testing.T) {
	msgr := &stubMessenger{}
	tickets := &stubTickets{created: true, ticket: model.Ticket{ID: 5, ChannelRef: "-100:77"}}
	router := newCommandRouter(msgr, tickets, &stubStrikeReader{}, nil)

	err := router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: -100, UserID: 7, Username: "alice", Command: "ticket"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(msgr.sent) != 2 {
		t.Fatalf("expected greeting and reply, got %+v", msgr.sent)
	}
	if msgr.sent[0].ref != "-100:77" || !strings.Contains(msgr.sent[0].text, "@alice") {
		t.Fatalf("unexpected greeting %+v", msgr.sent[0])
	}
	if msgr.sent[1].chatID != -100 || !strings.Contains(msgr.sent[1].text, "#5") {
		t.Fatalf("unexpected reply %+v", msgr.sent[1])
	}
}

func TestTicketCommandReturnsExisting(t *testing.T) {
	msgr := &stubMessenger{}
	tickets := &stubTickets{created: false, ticket: model.Ticket{ID: 5, ChannelRef: "-100:77"}}
	router := newCommandRouter(msgr, tickets, &stubStrikeReader{}, nil)

	_ = router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: -100, UserID: 7, Command: "ticket"})
	if len(msgr.sent) != 1 || !strings.Contains(msgr.last(), "already have an open ticket") {
		t.Fatalf("unexpected messages %+v", msgr.sent)
	}
}

func TestTicketCommandFailureIsGeneric(t *testing.T) {
	msgr := &stubMessenger{}
	tickets := &stubTickets{openErr: errors.New("forum topics disabled")}
	router := newCommandRouter(msgr, tickets, &stubStrikeReader{}, nil)

	_ = router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: -100, UserID: 7, Command: "ticket"})
	if strings.Contains(msgr.last(), "forum") || !strings.Contains(msgr.last(), "try again later") {
		t.Fatalf("expected generic failure notice, got %q", msgr.last())
	}
}

func TestTicketCommandRejectedInPrivate(t *testing.T) {
	msgr := &stubMessenger{}
	tickets := &stubTickets{}
	router := newCommandRouter(msgr, tickets, &stubStrikeReader{}, nil)

	_ = router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: 7, UserID: 7, Command: "ticket", Private: true})
	if tickets.openCalls != 0 {
		t.Fatalf("ticket must not open from a private chat")
	}
}

func TestCloseCommand(t *testing.T) {
	msgr := &stubMessenger{}
	tickets := &stubTickets{ticket: model.Ticket{ID: 5, UserID: 7, Status: enums.TicketStatusOpen}}
	router := newCommandRouter(msgr, tickets, &stubStrikeReader{}, nil)

	_ = router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: -100, UserID: 8, Command: "close", Args: "5"})
	if tickets.closedBy != 0 || !strings.Contains(msgr.last(), "owner or an admin") {
		t.Fatalf("stranger must not close ticket, reply %q", msgr.last())
	}

	_ = router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: -100, UserID: 7, Command: "close", Args: "#5"})
	if tickets.closedBy != 7 || !strings.Contains(msgr.last(), "closed") {
		t.Fatalf("owner close failed, reply %q", msgr.last())
	}

	_ = router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: -100, UserID: 1, IsAdmin: true, Command: "close", Args: "5"})
	if !strings.Contains(msgr.last(), "already closed") {
		t.Fatalf("expected already closed notice, got %q", msgr.last())
	}

	_ = router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: -100, UserID: 7, Command: "close"})
	if !strings.HasPrefix(msgr.last(), "Usage") {
		t.Fatalf("expected usage, got %q", msgr.last())
	}

	tickets.getErr = pgrepo.ErrTicketNotFound
	_ = router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: -100, UserID: 7, Command: "close", Args: "99"})
	if msgr.last() != "Ticket not found." {
		t.Fatalf("expected not found, got %q", msgr.last())
	}
}

func TestStrikesCommand(t *testing.T) {
	msgr := &stubMessenger{}
	strikes := &stubStrikeReader{active: 2, standing: enums.StandingMuted}
	router := newCommandRouter(msgr, &stubTickets{}, strikes, nil)

	_ = router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: -100, UserID: 7, Command: "strikes", Args: "9"})
	if len(msgr.sent) != 0 {
		t.Fatalf("non-admin must get no reply, got %+v", msgr.sent)
	}

	_ = router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: -100, UserID: 1, IsAdmin: true, Command: "strikes", ReplyUserID: 9})
	if strikes.queried != 9 || !strings.Contains(msgr.last(), "2 active strike(s), standing muted") {
		t.Fatalf("unexpected reply %q for user %d", msgr.last(), strikes.queried)
	}

	_ = router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: -100, UserID: 1, IsAdmin: true, Command: "strikes", Args: "12"})
	if strikes.queried != 12 {
		t.Fatalf("expected arg target 12, got %d", strikes.queried)
	}
}

func TestPardonCommand(t *testing.T) {
	msgr := &stubMessenger{}
	strikes := &stubStrikeReader{}
	router := newCommandRouter(msgr, &stubTickets{}, strikes, nil)

	_ = router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: -100, UserID: 1, IsAdmin: true, Command: "pardon", Args: "3"})
	if msgr.last() != "Strike #3 pardoned for user 7." {
		t.Fatalf("unexpected reply %q", msgr.last())
	}

	strikes.pardonErr = pgrepo.ErrStrikeNotFound
	_ = router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: -100, UserID: 1, IsAdmin: true, Command: "pardon", Args: "4"})
	if msgr.last() != "Strike not found." {
		t.Fatalf("unexpected reply %q", msgr.last())
	}
}

func TestUnknownCommandIsIgnored(t *testing.T) {
	msgr := &stubMessenger{}
	router := newCommandRouter(msgr, &stubTickets{}, &stubStrikeReader{}, nil)

	if err := router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: -100, Command: "weather"}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(msgr.sent) != 0 {
		t.Fatalf("expected no reply, got %+v", msgr.sent)
	}

	_ = router.Handle(context.Background(), tginfra.CommandUpdate{ChatID: -100, Command: "help"})
	if msgr.last() != helpText {
		t.Fatalf("expected help text")
	}
}
