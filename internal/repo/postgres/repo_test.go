package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func strikeRow(id int64, now time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "community_id", "user_id", "category", "reason", "source_message_id", "actor", "metadata", "pardoned", "created_at",
	}).AddRow(id, int64(-100), int64(42), "BET", "paid picks", int64(7), "adjudicator", []byte(`{"evidence":"k"}`), false, now)
}

func TestStrikeRepoCreateAndCountActive(t *testing.T) {
	mock := newMock(t)
	repo := NewStrikeRepo(mock)
	now := time.Now()
	since := now.Add(-30 * 24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(strikeLockKey(-100, 42)).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`INSERT INTO strikes`).
		WithArgs(int64(-100), int64(42), "BET", "paid picks", int64(7), "adjudicator", `{"evidence":"k"}`).
		WillReturnRows(strikeRow(11, now))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs(int64(-100), int64(42), since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectCommit()

	created, active, err := repo.CreateAndCountActive(context.Background(), model.Strike{
		CommunityID:     -100,
		UserID:          42,
		Category:        enums.CategoryBet,
		Reason:          "paid picks",
		SourceMessageID: 7,
		Actor:           "adjudicator",
		Metadata:        map[string]any{"evidence": "k"},
	}, since)
	if err != nil {
		t.Fatalf("create strike: %v", err)
	}
	if created.ID != 11 || created.Category != enums.CategoryBet || active != 3 {
		t.Fatalf("unexpected result: %+v active=%d", created, active)
	}
	if created.Metadata["evidence"] != "k" {
		t.Fatalf("metadata not decoded: %+v", created.Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStrikeLockKeyIsPerPair(t *testing.T) {
	if strikeLockKey(-100, 42) != strikeLockKey(-100, 42) {
		t.Fatalf("lock key must be stable")
	}
	if strikeLockKey(-100, 42) == strikeLockKey(-100, 43) || strikeLockKey(-100, 42) == strikeLockKey(-101, 42) {
		t.Fatalf("distinct pairs must not share a lock key")
	}
}

func TestStrikeRepoPardonNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewStrikeRepo(mock)

	mock.ExpectQuery(`UPDATE strikes`).WithArgs(int64(5)).WillReturnError(pgx.ErrNoRows)

	if _, err := repo.Pardon(context.Background(), 5); !errors.Is(err, ErrStrikeNotFound) {
		t.Fatalf("expected ErrStrikeNotFound, got %v", err)
	}
}

func TestPermanentMuteRepoInsertIsIdempotent(t *testing.T) {
	mock := newMock(t)
	repo := NewPermanentMuteRepo(mock)
	mute := model.PermanentMute{CommunityID: -100, UserID: 42, StrikeCount: 3}

	mock.ExpectExec(`INSERT INTO permanent_mutes`).
		WithArgs(int64(-100), int64(42), 3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO permanent_mutes`).
		WithArgs(int64(-100), int64(42), 3).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := repo.Insert(context.Background(), mute)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	inserted, err = repo.Insert(context.Background(), mute)
	if err != nil || inserted {
		t.Fatalf("second insert must be a no-op: inserted=%v err=%v", inserted, err)
	}
}

func TestTicketRepoCreateMapsUniqueViolation(t *testing.T) {
	mock := newMock(t)
	repo := NewTicketRepo(mock)

	mock.ExpectQuery(`INSERT INTO tickets`).
		WithArgs(int64(-100), int64(42), "-200:17").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), model.Ticket{CommunityID: -100, UserID: 42, ChannelRef: "-200:17"})
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
}

func TestTicketRepoFindOpenAndClose(t *testing.T) {
	mock := newMock(t)
	repo := NewTicketRepo(mock)
	now := time.Now()
	columns := []string{"id", "community_id", "user_id", "channel_ref", "status", "closed_by", "created_at", "closed_at"}

	mock.ExpectQuery(`FROM tickets`).
		WithArgs(int64(-100), int64(42)).
		WillReturnRows(pgxmock.NewRows(columns).AddRow(int64(1), int64(-100), int64(42), "-200:17", "open", (*int64)(nil), now, (*time.Time)(nil)))
	mock.ExpectQuery(`UPDATE tickets`).
		WithArgs(int64(1), int64(9)).
		WillReturnError(pgx.ErrNoRows)

	ticket, ok, err := repo.FindOpen(context.Background(), -100, 42)
	if err != nil || !ok {
		t.Fatalf("find open: ok=%v err=%v", ok, err)
	}
	if ticket.Status != enums.TicketStatusOpen || ticket.ClosedBy != nil {
		t.Fatalf("unexpected ticket %+v", ticket)
	}

	if _, err := repo.Close(context.Background(), 1, 9); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestQuarantineRepoGetMissing(t *testing.T) {
	mock := newMock(t)
	repo := NewQuarantineRepo(mock)

	mock.ExpectQuery(`FROM quarantine_records`).
		WithArgs(int64(-100), int64(42)).
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := repo.Get(context.Background(), -100, 42)
	if err != nil || ok {
		t.Fatalf("expected missing record, ok=%v err=%v", ok, err)
	}
}

func TestGuildConfigRepoUpsert(t *testing.T) {
	mock := newMock(t)
	repo := NewGuildConfigRepo(mock)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO guild_configs`).
		WithArgs(int64(-100), int64(0), int64(0), int64(-300), int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{
			"community_id", "panel_channel_id", "panel_message_id", "ticket_channel_id", "log_channel_id", "created_at", "updated_at",
		}).AddRow(int64(-100), int64(0), int64(0), int64(-300), int64(-400), now, now))

	cfg, err := repo.Upsert(context.Background(), model.GuildConfig{CommunityID: -100, TicketChannelID: -300})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if cfg.LogChannelID != -400 || cfg.TicketChannelID != -300 {
		t.Fatalf("unexpected stored config %+v", cfg)
	}
}
