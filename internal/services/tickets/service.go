package tickets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
	"github.com/ivankudzin/tgapp/moderator/internal/metrics"
	"github.com/ivankudzin/tgapp/moderator/internal/pkg/keylock"
	pgrepo "github.com/ivankudzin/tgapp/moderator/internal/repo/postgres"
)

const cleanupTimeout = 10 * time.Second

var ErrValidation = errors.New("validation error")

type Store interface {
	FindOpen(ctx context.Context, communityID, userID int64) (model.Ticket, bool, error)
	Create(ctx context.Context, ticket model.Ticket) (model.Ticket, error)
	GetByID(ctx context.Context, ticketID int64) (model.Ticket, error)
	GetByChannelRef(ctx context.Context, channelRef string) (model.Ticket, error)
	Close(ctx context.Context, ticketID, closedBy int64) (model.Ticket, error)
}

type GuildConfigs interface {
	Ensure(ctx context.Context, communityID int64) (model.GuildConfig, error)
}

// Platform creates and removes the private channel backing a ticket.
type Platform interface {
	CreateTicketChannel(ctx context.Context, chatID int64, title string) (string, error)
	DeleteTicketChannel(ctx context.Context, channelRef string) error
}

type OpenInput struct {
	CommunityID int64
	UserID      int64
	Username    string
}

type Service struct {
	store    Store
	guilds   GuildConfigs
	platform Platform
	locks    *keylock.Table
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewService(store Store, guilds GuildConfigs, platform Platform, locks *keylock.Table, m *metrics.Metrics, logger *zap.Logger) *Service {
	if locks == nil {
		locks = keylock.New(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		guilds:   guilds,
		platform: platform,
		locks:    locks,
		metrics:  m,
		logger:   logger,
	}
}

// Open returns the user's open ticket, creating it when none exists. created is false
// whenever an existing ticket is returned, including after a lost creation race.
func (s *Service) Open(ctx context.Context, in OpenInput) (model.Ticket, bool, error) {
	if in.CommunityID == 0 || in.UserID == 0 {
		return model.Ticket{}, false, ErrValidation
	}
	if s.store == nil || s.platform == nil {
		return model.Ticket{}, false, fmt.Errorf("ticket service dependencies are not configured")
	}

	if existing, ok, err := s.store.FindOpen(ctx, in.CommunityID, in.UserID); err != nil {
		return model.Ticket{}, false, err
	} else if ok {
		s.metrics.Ticket("existing")
		return existing, false, nil
	}

	handle, err := s.locks.Acquire(ctx, lockKey(in.CommunityID, in.UserID))
	if err != nil {
		return model.Ticket{}, false, fmt.Errorf("acquire ticket lock: %w", err)
	}
	defer handle.Release()

	// The previous holder may have created it while we waited.
	if existing, ok, err := s.store.FindOpen(ctx, in.CommunityID, in.UserID); err != nil {
		return model.Ticket{}, false, err
	} else if ok {
		s.metrics.Ticket("existing")
		return existing, false, nil
	}

	chatID := in.CommunityID
	if s.guilds != nil {
		cfg, err := s.guilds.Ensure(ctx, in.CommunityID)
		if err != nil {
			return model.Ticket{}, false, fmt.Errorf("ensure guild config: %w", err)
		}
		if cfg.TicketChannelID != 0 {
			chatID = cfg.TicketChannelID
		}
	}

	channelRef, err := s.platform.CreateTicketChannel(ctx, chatID, ticketTitle(in))
	if err != nil {
		s.metrics.Ticket("failed")
		return model.Ticket{}, false, fmt.Errorf("create ticket channel: %w", err)
	}

	ticket, err := s.store.Create(ctx, model.Ticket{
		CommunityID: in.CommunityID,
		UserID:      in.UserID,
		ChannelRef:  channelRef,
	})
	if err == nil {
		s.metrics.Ticket("created")
		s.logger.Info("ticket opened",
			zap.Int64("ticket_id", ticket.ID),
			zap.Int64("community_id", in.CommunityID),
			zap.Int64("user_id", in.UserID),
			zap.String("channel_ref", channelRef),
		)
		return ticket, true, nil
	}

	s.discardChannel(channelRef)
	if !errors.Is(err, pgrepo.ErrUniqueViolation) {
		s.metrics.Ticket("failed")
		return model.Ticket{}, false, err
	}

	existing, ok, findErr := s.store.FindOpen(ctx, in.CommunityID, in.UserID)
	if findErr != nil {
		return model.Ticket{}, false, findErr
	}
	if !ok {
		return model.Ticket{}, false, fmt.Errorf("ticket conflict without open ticket: %w", err)
	}
	s.metrics.Ticket("existing")
	s.logger.Info("ticket creation raced, returning existing",
		zap.Int64("ticket_id", existing.ID),
		zap.Int64("community_id", in.CommunityID),
		zap.Int64("user_id", in.UserID),
	)
	return existing, false, nil
}

// Close marks the ticket closed and removes its channel. A failed removal is only logged.
func (s *Service) Close(ctx context.Context, ticketID, actorID int64) (model.Ticket, error) {
	if ticketID <= 0 {
		return model.Ticket{}, ErrValidation
	}
	if s.store == nil {
		return model.Ticket{}, fmt.Errorf("ticket store is not configured")
	}

	ticket, err := s.store.Close(ctx, ticketID, actorID)
	if err != nil {
		return model.Ticket{}, err
	}
	s.discardChannel(ticket.ChannelRef)
	s.logger.Info("ticket closed",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int64("closed_by", actorID),
	)
	return ticket, nil
}

func (s *Service) CloseByChannel(ctx context.Context, channelRef string, actorID int64) (model.Ticket, error) {
	if strings.TrimSpace(channelRef) == "" {
		return model.Ticket{}, ErrValidation
	}
	if s.store == nil {
		return model.Ticket{}, fmt.Errorf("ticket store is not configured")
	}

	ticket, err := s.store.GetByChannelRef(ctx, channelRef)
	if err != nil {
		return model.Ticket{}, err
	}
	return s.Close(ctx, ticket.ID, actorID)
}

func (s *Service) Get(ctx context.Context, ticketID int64) (model.Ticket, error) {
	if s.store == nil {
		return model.Ticket{}, fmt.Errorf("ticket store is not configured")
	}
	return s.store.GetByID(ctx, ticketID)
}

func (s *Service) discardChannel(channelRef string) {
	if s.platform == nil || channelRef == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := s.platform.DeleteTicketChannel(ctx, channelRef); err != nil {
		s.metrics.PlatformError("delete_channel")
		s.logger.Warn("delete ticket channel failed",
			zap.String("channel_ref", channelRef),
			zap.Error(err),
		)
	}
}

func ticketTitle(in OpenInput) string {
	name := strings.TrimSpace(in.Username)
	if name == "" {
		name = strconv.FormatInt(in.UserID, 10)
	}
	return "ticket-" + name
}

func lockKey(communityID, userID int64) string {
	return "ticket:" + strconv.FormatInt(communityID, 10) + ":" + strconv.FormatInt(userID, 10)
}
