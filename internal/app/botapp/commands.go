package botapp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
	tginfra "github.com/ivankudzin/tgapp/moderator/internal/infra/telegram"
	pgrepo "github.com/ivankudzin/tgapp/moderator/internal/repo/postgres"
	ticketsvc "github.com/ivankudzin/tgapp/moderator/internal/services/tickets"
)

const helpText = "Commands:\n" +
	"/ticket - open a private ticket with the moderators\n" +
	"/close <id> - close a ticket\n" +
	"/strikes <user_id> - show active strikes (or reply to a message)\n" +
	"/pardon <strike_id> - pardon a strike"

type ticketOpener interface {
	Open(ctx context.Context, in ticketsvc.OpenInput) (model.Ticket, bool, error)
	Get(ctx context.Context, ticketID int64) (model.Ticket, error)
	Close(ctx context.Context, ticketID, actorID int64) (model.Ticket, error)
}

type strikeReader interface {
	Active(ctx context.Context, communityID, userID int64) (int, error)
	Standing(ctx context.Context, communityID, userID int64) (enums.Standing, error)
	Pardon(ctx context.Context, strikeID int64) (model.Strike, error)
}

type messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendToTicket(ctx context.Context, channelRef, text string) error
}

type commandRouter struct {
	messenger messenger
	tickets   ticketOpener
	strikes   strikeReader
	logger    *zap.Logger
}

func newCommandRouter(m messenger, tickets ticketOpener, strikes strikeReader, logger *zap.Logger) *commandRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &commandRouter{messenger: m, tickets: tickets, strikes: strikes, logger: logger}
}

func (c *commandRouter) Handle(ctx context.Context, cmd tginfra.CommandUpdate) error {
	var reply string
	switch strings.ToLower(cmd.Command) {
	case "ticket":
		reply = c.openTicket(ctx, cmd)
	case "close":
		reply = c.closeTicket(ctx, cmd)
	case "strikes":
		reply = c.showStrikes(ctx, cmd)
	case "pardon":
		reply = c.pardon(ctx, cmd)
	case "help", "start":
		reply = helpText
	default:
		return nil
	}
	if reply == "" {
		return nil
	}
	if err := c.messenger.SendText(ctx, cmd.ChatID, reply); err != nil {
		return fmt.Errorf("reply to /%s: %w", cmd.Command, err)
	}
	return nil
}

func (c *commandRouter) openTicket(ctx context.Context, cmd tginfra.CommandUpdate) string {
	if cmd.Private {
		return "Use /ticket inside the community chat."
	}
	ticket, created, err := c.tickets.Open(ctx, ticketsvc.OpenInput{
		CommunityID: cmd.ChatID,
		UserID:      cmd.UserID,
		Username:    cmd.Username,
	})
	if err != nil {
		c.logger.Error("open ticket failed",
			zap.Int64("community_id", cmd.ChatID),
			zap.Int64("user_id", cmd.UserID),
			zap.Error(err),
		)
		return "Could not open a ticket right now, please try again later."
	}
	if !created {
		return fmt.Sprintf("You already have an open ticket (#%d).", ticket.ID)
	}

	greeting := fmt.Sprintf("Ticket #%d opened by %s. A moderator will reply here.", ticket.ID, displayUser(cmd))
	if err := c.messenger.SendToTicket(ctx, ticket.ChannelRef, greeting); err != nil {
		c.logger.Warn("ticket greeting failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}
	return fmt.Sprintf("Ticket #%d opened.", ticket.ID)
}

func (c *commandRouter) closeTicket(ctx context.Context, cmd tginfra.CommandUpdate) string {
	id, ok := parseID(cmd.Args)
	if !ok {
		return "Usage: /close <ticket_id>"
	}
	ticket, err := c.tickets.Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgrepo.ErrTicketNotFound) {
			return "Ticket not found."
		}
		c.logger.Error("load ticket failed", zap.Int64("ticket_id", id), zap.Error(err))
		return "Could not close the ticket."
	}
	if !cmd.IsAdmin && ticket.UserID != cmd.UserID {
		return "Only the ticket owner or an admin can close it."
	}
	if ticket.Status == enums.TicketStatusClosed {
		return fmt.Sprintf("Ticket #%d is already closed.", ticket.ID)
	}
	if _, err := c.tickets.Close(ctx, id, cmd.UserID); err != nil {
		c.logger.Error("close ticket failed", zap.Int64("ticket_id", id), zap.Error(err))
		return "Could not close the ticket."
	}
	return fmt.Sprintf("Ticket #%d closed.", ticket.ID)
}

func (c *commandRouter) showStrikes(ctx context.Context, cmd tginfra.CommandUpdate) string {
	if !cmd.IsAdmin {
		return ""
	}
	userID := cmd.ReplyUserID
	if userID == 0 {
		id, ok := parseID(cmd.Args)
		if !ok {
			return "Usage: /strikes <user_id> or reply to a message."
		}
		userID = id
	}

	active, err := c.strikes.Active(ctx, cmd.ChatID, userID)
	if err != nil {
		c.logger.Error("count strikes failed", zap.Int64("user_id", userID), zap.Error(err))
		return "Could not load strikes."
	}
	standing, err := c.strikes.Standing(ctx, cmd.ChatID, userID)
	if err != nil {
		c.logger.Error("load standing failed", zap.Int64("user_id", userID), zap.Error(err))
		return "Could not load strikes."
	}
	return fmt.Sprintf("User %d: %d active strike(s), standing %s.", userID, active, standing)
}

func (c *commandRouter) pardon(ctx context.Context, cmd tginfra.CommandUpdate) string {
	if !cmd.IsAdmin {
		return ""
	}
	id, ok := parseID(cmd.Args)
	if !ok {
		return "Usage: /pardon <strike_id>"
	}
	strike, err := c.strikes.Pardon(ctx, id)
	if err != nil {
		if errors.Is(err, pgrepo.ErrStrikeNotFound) {
			return "Strike not found."
		}
		c.logger.Error("pardon strike failed", zap.Int64("strike_id", id), zap.Error(err))
		return "Could not pardon the strike."
	}
	c.logger.Info("strike pardoned from chat",
		zap.Int64("strike_id", strike.ID),
		zap.Int64("actor_id", cmd.UserID),
	)
	return fmt.Sprintf("Strike #%d pardoned for user %d.", strike.ID, strike.UserID)
}

func parseID(raw string) (int64, bool) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(fields[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func displayUser(cmd tginfra.CommandUpdate) string {
	if cmd.Username != "" {
		return "@" + cmd.Username
	}
	return strconv.FormatInt(cmd.UserID, 10)
}
