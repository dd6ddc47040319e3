package guilds

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
	"github.com/ivankudzin/tgapp/moderator/internal/pkg/ttlmap"
)

const cacheTTL = 5 * time.Minute

type Store interface {
	Get(ctx context.Context, communityID int64) (model.GuildConfig, bool, error)
	Upsert(ctx context.Context, cfg model.GuildConfig) (model.GuildConfig, error)
}

// Defaults seed a community's row the first time it is needed.
type Defaults struct {
	TicketChatID int64
	LogChatID    int64
}

type Service struct {
	store    Store
	defaults Defaults
	logger   *zap.Logger
	cache    *ttlmap.Map[int64, model.GuildConfig]
}

func NewService(store Store, defaults Defaults, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		defaults: defaults,
		logger:   logger,
		cache:    ttlmap.New[int64, model.GuildConfig](cacheTTL),
	}
}

// Ensure returns the community's config, creating it from defaults on first use.
func (s *Service) Ensure(ctx context.Context, communityID int64) (model.GuildConfig, error) {
	if communityID == 0 {
		return model.GuildConfig{}, fmt.Errorf("invalid community id")
	}
	if cfg, ok := s.cache.Get(communityID); ok {
		return cfg, nil
	}
	if s.store == nil {
		return model.GuildConfig{}, fmt.Errorf("guild config store is not configured")
	}

	cfg, ok, err := s.store.Get(ctx, communityID)
	if err != nil {
		return model.GuildConfig{}, err
	}
	if !ok {
		cfg, err = s.store.Upsert(ctx, model.GuildConfig{
			CommunityID:     communityID,
			TicketChannelID: s.defaults.TicketChatID,
			LogChannelID:    s.defaults.LogChatID,
		})
		if err != nil {
			return model.GuildConfig{}, err
		}
		s.logger.Info("guild config created", zap.Int64("community_id", communityID))
	}

	s.cache.Set(communityID, cfg)
	return cfg, nil
}

func (s *Service) Update(ctx context.Context, cfg model.GuildConfig) (model.GuildConfig, error) {
	if cfg.CommunityID == 0 {
		return model.GuildConfig{}, fmt.Errorf("invalid community id")
	}
	if s.store == nil {
		return model.GuildConfig{}, fmt.Errorf("guild config store is not configured")
	}

	stored, err := s.store.Upsert(ctx, cfg)
	if err != nil {
		return model.GuildConfig{}, err
	}
	s.cache.Set(stored.CommunityID, stored)
	return stored, nil
}

// LogChat returns the mod-log chat or 0 when none is configured.
func (s *Service) LogChat(ctx context.Context, communityID int64) int64 {
	cfg, err := s.Ensure(ctx, communityID)
	if err != nil {
		s.logger.Debug("guild config unavailable", zap.Int64("community_id", communityID), zap.Error(err))
		return 0
	}
	return cfg.LogChannelID
}
