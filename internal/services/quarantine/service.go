package quarantine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
	"github.com/ivankudzin/tgapp/moderator/internal/metrics"
	"github.com/ivankudzin/tgapp/moderator/internal/pkg/ttlmap"
)

const (
	defaultAccountAgeThreshold = 7 * 24 * time.Hour
	defaultMaxDuration         = 72 * time.Hour
	defaultSweepBatch          = 500
	statusCacheTTL             = 30 * time.Second
	reevaluateInterval         = time.Hour
)

type Store interface {
	Insert(ctx context.Context, rec model.QuarantineRecord) (bool, error)
	Get(ctx context.Context, communityID, userID int64) (model.QuarantineRecord, bool, error)
	ListDue(ctx context.Context, accountCreatedBefore, quarantinedBefore time.Time, limit int) ([]model.QuarantineRecord, error)
	Delete(ctx context.Context, communityID, userID int64) (bool, error)
}

type Platform interface {
	Quarantine(ctx context.Context, communityID, userID int64) error
	Restore(ctx context.Context, communityID, userID int64) error
}

// StandingReader keeps a release from lifting an active mute.
type StandingReader interface {
	Standing(ctx context.Context, communityID, userID int64) (enums.Standing, error)
}

type Config struct {
	AccountAgeThreshold time.Duration
	MaxDuration         time.Duration
	SweepBatch          int
}

type Service struct {
	store    Store
	platform Platform
	standing StandingReader
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cfg      Config
	now      func() time.Time
	status   *ttlmap.Map[string, bool]
	checked  *ttlmap.Map[string, struct{}]
	released *ttlmap.Map[string, struct{}]
}

func NewService(store Store, platform Platform, standing StandingReader, m *metrics.Metrics, logger *zap.Logger, cfg Config) *Service {
	if cfg.AccountAgeThreshold <= 0 {
		cfg.AccountAgeThreshold = defaultAccountAgeThreshold
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = defaultMaxDuration
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = defaultSweepBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		store:    store,
		platform: platform,
		standing: standing,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		status:   ttlmap.New[string, bool](statusCacheTTL),
		checked:  ttlmap.New[string, struct{}](reevaluateInterval),
		// Past this TTL a released account is old enough that the age rule no longer fires.
		released: ttlmap.New[string, struct{}](cfg.AccountAgeThreshold),
	}
}

// Evaluate quarantines a joining member whose account is younger than the threshold.
func (s *Service) Evaluate(ctx context.Context, member model.MemberJoin) (bool, error) {
	if member.IsBot || member.CommunityID == 0 || member.UserID == 0 {
		return false, nil
	}
	if member.AccountCreatedAt.IsZero() {
		return false, nil
	}
	if s.store == nil {
		return false, fmt.Errorf("quarantine store is not configured")
	}

	now := s.now()
	age := now.Sub(member.AccountCreatedAt)
	if age >= s.cfg.AccountAgeThreshold {
		return false, nil
	}

	inserted, err := s.store.Insert(ctx, model.QuarantineRecord{
		CommunityID:      member.CommunityID,
		UserID:           member.UserID,
		AccountCreatedAt: member.AccountCreatedAt,
		QuarantinedAt:    now,
	})
	if err != nil {
		return false, fmt.Errorf("persist quarantine: %w", err)
	}
	s.status.Set(pairKey(member.CommunityID, member.UserID), true)

	if s.platform != nil {
		if err := s.platform.Quarantine(ctx, member.CommunityID, member.UserID); err != nil {
			s.metrics.PlatformError("quarantine")
			s.logger.Warn("quarantine action failed",
				zap.Int64("community_id", member.CommunityID),
				zap.Int64("user_id", member.UserID),
				zap.Error(err),
			)
		}
	}

	if inserted {
		s.metrics.Quarantine("entered")
	}
	s.logger.Info("member quarantined",
		zap.Int64("community_id", member.CommunityID),
		zap.Int64("user_id", member.UserID),
		zap.Duration("account_age", age),
		zap.Bool("rejoin", !inserted),
	)
	return true, nil
}

// Reevaluate applies the join rule to an existing member who has no record, for members
// that joined before the bot or whose join update was missed. A pair is checked at most
// once per interval, and a member released by Sweep or Release is not quarantined again.
func (s *Service) Reevaluate(ctx context.Context, member model.MemberJoin) (bool, error) {
	key := pairKey(member.CommunityID, member.UserID)
	if _, ok := s.released.Get(key); ok {
		return false, nil
	}
	if !s.checked.SetIfAbsent(key, struct{}{}) {
		return false, nil
	}
	return s.Evaluate(ctx, member)
}

// Sweep releases every record whose account now meets the age threshold or whose
// quarantine has lasted MaxDuration.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, fmt.Errorf("quarantine store is not configured")
	}

	now := s.now()
	due, err := s.store.ListDue(ctx, now.Add(-s.cfg.AccountAgeThreshold), now.Add(-s.cfg.MaxDuration), s.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list due quarantine records: %w", err)
	}

	released := 0
	for _, rec := range due {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}
		ok, err := s.Release(ctx, rec.CommunityID, rec.UserID)
		if err != nil {
			s.logger.Warn("quarantine release failed",
				zap.Int64("community_id", rec.CommunityID),
				zap.Int64("user_id", rec.UserID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			released++
		}
	}
	return released, nil
}

// Release ends a quarantine early. Rights are restored only when no mute is active.
func (s *Service) Release(ctx context.Context, communityID, userID int64) (bool, error) {
	if s.store == nil {
		return false, fmt.Errorf("quarantine store is not configured")
	}

	deleted, err := s.store.Delete(ctx, communityID, userID)
	if err != nil {
		return false, fmt.Errorf("delete quarantine record: %w", err)
	}
	s.status.Delete(pairKey(communityID, userID))
	if !deleted {
		return false, nil
	}
	s.released.Set(pairKey(communityID, userID), struct{}{})
	s.metrics.Quarantine("released")

	if s.restoreAllowed(ctx, communityID, userID) && s.platform != nil {
		if err := s.platform.Restore(ctx, communityID, userID); err != nil {
			s.metrics.PlatformError("restore")
			s.logger.Warn("quarantine restore action failed",
				zap.Int64("community_id", communityID),
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("member released from quarantine",
		zap.Int64("community_id", communityID),
		zap.Int64("user_id", userID),
	)
	return true, nil
}

// IsQuarantined answers from a short-lived cache in front of the store.
func (s *Service) IsQuarantined(ctx context.Context, communityID, userID int64) (bool, error) {
	key := pairKey(communityID, userID)
	if cached, ok := s.status.Get(key); ok {
		return cached, nil
	}
	if s.store == nil {
		return false, nil
	}

	_, ok, err := s.store.Get(ctx, communityID, userID)
	if err != nil {
		return false, err
	}
	s.status.Set(key, ok)
	return ok, nil
}

func (s *Service) restoreAllowed(ctx context.Context, communityID, userID int64) bool {
	if s.standing == nil {
		return true
	}
	standing, err := s.standing.Standing(ctx, communityID, userID)
	if err != nil {
		s.logger.Warn("read standing before restore failed", zap.Error(err))
		return false
	}
	return standing != enums.StandingMuted && standing != enums.StandingMutedForever
}

func pairKey(communityID, userID int64) string {
	return strconv.FormatInt(communityID, 10) + ":" + strconv.FormatInt(userID, 10)
}

// Purge drops expired status lookups and re-evaluation markers.
func (s *Service) Purge() int {
	return s.status.Purge() + s.checked.Purge() + s.released.Purge()
}
