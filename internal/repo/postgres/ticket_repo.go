package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
)

const ticketColumns = `id, community_id, user_id, channel_ref, status, closed_by, created_at, closed_at`

type TicketRepo struct {
	db DB
}

func NewTicketRepo(db DB) *TicketRepo {
	return &TicketRepo{db: db}
}

// Create returns ErrUniqueViolation when the channel reference or the pair's open ticket
// already exists.
func (r *TicketRepo) Create(ctx context.Context, ticket model.Ticket) (model.Ticket, error) {
	if r.db == nil {
		return model.Ticket{}, fmt.Errorf("postgres pool is nil")
	}
	if ticket.CommunityID == 0 || ticket.UserID == 0 || ticket.ChannelRef == "" {
		return model.Ticket{}, fmt.Errorf("invalid ticket payload")
	}

	created, err := scanTicket(r.db.QueryRow(ctx, `
INSERT INTO tickets (community_id, user_id, channel_ref, status, created_at)
VALUES ($1, $2, $3, 'open', NOW())
RETURNING `+ticketColumns, ticket.CommunityID, ticket.UserID, ticket.ChannelRef))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Ticket{}, ErrUniqueViolation
		}
		return model.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}

	return created, nil
}

func (r *TicketRepo) FindOpen(ctx context.Context, communityID, userID int64) (model.Ticket, bool, error) {
	if r.db == nil {
		return model.Ticket{}, false, fmt.Errorf("postgres pool is nil")
	}

	ticket, err := scanTicket(r.db.QueryRow(ctx, `
SELECT `+ticketColumns+`
FROM tickets
WHERE community_id = $1
	AND user_id = $2
	AND status = 'open'
ORDER BY created_at DESC
LIMIT 1
`, communityID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Ticket{}, false, nil
		}
		return model.Ticket{}, false, fmt.Errorf("find open ticket: %w", err)
	}

	return ticket, true, nil
}

func (r *TicketRepo) GetByID(ctx context.Context, ticketID int64) (model.Ticket, error) {
	if r.db == nil {
		return model.Ticket{}, fmt.Errorf("postgres pool is nil")
	}

	ticket, err := scanTicket(r.db.QueryRow(ctx, `
SELECT `+ticketColumns+`
FROM tickets
WHERE id = $1
`, ticketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Ticket{}, ErrTicketNotFound
		}
		return model.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}

	return ticket, nil
}

func (r *TicketRepo) GetByChannelRef(ctx context.Context, channelRef string) (model.Ticket, error) {
	if r.db == nil {
		return model.Ticket{}, fmt.Errorf("postgres pool is nil")
	}

	ticket, err := scanTicket(r.db.QueryRow(ctx, `
SELECT `+ticketColumns+`
FROM tickets
WHERE channel_ref = $1
`, channelRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Ticket{}, ErrTicketNotFound
		}
		return model.Ticket{}, fmt.Errorf("get ticket by channel: %w", err)
	}

	return ticket, nil
}

// Close only transitions open tickets; a closed or missing ticket yields ErrTicketNotFound.
func (r *TicketRepo) Close(ctx context.Context, ticketID, closedBy int64) (model.Ticket, error) {
	if r.db == nil {
		return model.Ticket{}, fmt.Errorf("postgres pool is nil")
	}

	ticket, err := scanTicket(r.db.QueryRow(ctx, `
UPDATE tickets
SET status = 'closed',
	closed_by = $2,
	closed_at = NOW()
WHERE id = $1
	AND status = 'open'
RETURNING `+ticketColumns, ticketID, closedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Ticket{}, ErrTicketNotFound
		}
		return model.Ticket{}, fmt.Errorf("close ticket: %w", err)
	}

	return ticket, nil
}

func scanTicket(row pgx.Row) (model.Ticket, error) {
	var (
		t      model.Ticket
		status string
	)
	if err := row.Scan(
		&t.ID,
		&t.CommunityID,
		&t.UserID,
		&t.ChannelRef,
		&status,
		&t.ClosedBy,
		&t.CreatedAt,
		&t.ClosedAt,
	); err != nil {
		return model.Ticket{}, err
	}
	t.Status = enums.TicketStatus(status)
	return t, nil
}
