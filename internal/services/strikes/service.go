package strikes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
	"github.com/ivankudzin/tgapp/moderator/internal/metrics"
	"github.com/ivankudzin/tgapp/moderator/internal/pkg/keylock"
)

const (
	defaultThreshold   = 3
	defaultDecay       = 30 * 24 * time.Hour
	defaultListLimit   = 50
	expireCallTimeout  = 15 * time.Second
	ActorFloodDetector = "flood-detector"
	ActorAdjudicator   = "adjudicator"
)

var ErrValidation = errors.New("validation error")

type Store interface {
	CreateAndCountActive(ctx context.Context, strike model.Strike, since time.Time) (model.Strike, int, error)
	CountActive(ctx context.Context, communityID, userID int64, since time.Time) (int, error)
	ListByUser(ctx context.Context, communityID, userID int64, limit int) ([]model.Strike, error)
	Pardon(ctx context.Context, strikeID int64) (model.Strike, error)
}

type MuteStore interface {
	Insert(ctx context.Context, mute model.PermanentMute) (bool, error)
	Get(ctx context.Context, communityID, userID int64) (model.PermanentMute, bool, error)
	Delete(ctx context.Context, communityID, userID int64) (bool, error)
}

type QuarantineLookup interface {
	Get(ctx context.Context, communityID, userID int64) (model.QuarantineRecord, bool, error)
}

// Platform applies member restrictions. A zero until means forever.
type Platform interface {
	Mute(ctx context.Context, communityID, userID int64, until time.Time) error
	Quarantine(ctx context.Context, communityID, userID int64) error
	Restore(ctx context.Context, communityID, userID int64) error
}

type Config struct {
	Threshold int
	Decay     time.Duration
}

type RecordInput struct {
	CommunityID     int64
	UserID          int64
	Category        enums.Category
	Reason          string
	SourceMessageID int64
	Actor           string
	Metadata        map[string]any
}

type RecordResult struct {
	Strike       model.Strike
	Active       int
	MutedForever bool
	// AlreadyMuted is set when the threshold was reached by a user who already held a
	// permanent mute.
	AlreadyMuted bool
}

type Service struct {
	store      Store
	mutes      MuteStore
	quarantine QuarantineLookup
	platform   Platform
	metrics    *metrics.Metrics
	logger     *zap.Logger
	cfg        Config
	now        func() time.Time
	locks      *keylock.Table

	mu     sync.Mutex
	timers map[string]*muteTimer
}

type muteTimer struct {
	timer *time.Timer
	until time.Time
}

func NewService(store Store, mutes MuteStore, quarantine QuarantineLookup, platform Platform, m *metrics.Metrics, logger *zap.Logger, cfg Config) *Service {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.Decay <= 0 {
		cfg.Decay = defaultDecay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		store:      store,
		mutes:      mutes,
		quarantine: quarantine,
		platform:   platform,
		metrics:    m,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
		locks:      keylock.New(0),
		timers:     make(map[string]*muteTimer),
	}
}

// Record persists a strike and, in the same call, applies the permanent mute once the
// active count reaches the threshold. Records for one (community, user) pair run one at a
// time so concurrent strikes always see each other in the count.
func (s *Service) Record(ctx context.Context, in RecordInput) (RecordResult, error) {
	if in.CommunityID == 0 || in.UserID == 0 || !in.Category.Flagged() {
		return RecordResult{}, ErrValidation
	}
	if s.store == nil {
		return RecordResult{}, fmt.Errorf("strike store is not configured")
	}

	handle, err := s.locks.Acquire(ctx, pairKey(in.CommunityID, in.UserID))
	if err != nil {
		return RecordResult{}, fmt.Errorf("lock strike pair: %w", err)
	}
	defer handle.Release()

	strike, active, err := s.store.CreateAndCountActive(ctx, model.Strike{
		CommunityID:     in.CommunityID,
		UserID:          in.UserID,
		Category:        in.Category,
		Reason:          in.Reason,
		SourceMessageID: in.SourceMessageID,
		Actor:           in.Actor,
		Metadata:        in.Metadata,
	}, s.now().Add(-s.cfg.Decay))
	if err != nil {
		return RecordResult{}, fmt.Errorf("record strike: %w", err)
	}
	s.metrics.Strike(string(in.Category))
	s.logger.Info("strike recorded",
		zap.Int64("community_id", in.CommunityID),
		zap.Int64("user_id", in.UserID),
		zap.String("category", string(in.Category)),
		zap.Int("active", active),
		zap.String("actor", in.Actor),
	)

	result := RecordResult{Strike: strike, Active: active}
	if active < s.cfg.Threshold {
		return result, nil
	}

	applied, err := s.muteForever(ctx, in.CommunityID, in.UserID, active)
	if err != nil {
		return result, err
	}
	result.MutedForever = true
	result.AlreadyMuted = !applied
	return result, nil
}

func (s *Service) muteForever(ctx context.Context, communityID, userID int64, active int) (bool, error) {
	if s.mutes == nil {
		return false, fmt.Errorf("permanent mute store is not configured")
	}

	inserted, err := s.mutes.Insert(ctx, model.PermanentMute{
		CommunityID: communityID,
		UserID:      userID,
		StrikeCount: active,
	})
	if err != nil {
		return false, fmt.Errorf("apply permanent mute: %w", err)
	}
	if !inserted {
		s.logger.Info("user already permanently muted",
			zap.Int64("community_id", communityID),
			zap.Int64("user_id", userID),
			zap.Int("active", active),
		)
		return false, nil
	}

	s.cancelTimer(communityID, userID)
	if s.platform != nil {
		if err := s.platform.Mute(ctx, communityID, userID, time.Time{}); err != nil {
			s.metrics.PlatformError("mute")
			s.logger.Warn("permanent mute action failed",
				zap.Int64("community_id", communityID),
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
	}
	s.metrics.Mute("permanent")
	s.logger.Info("user permanently muted",
		zap.Int64("community_id", communityID),
		zap.Int64("user_id", userID),
		zap.Int("active", active),
	)
	return true, nil
}

// TimedMute restricts the user until now+d. The expiry timer always fires and restores the
// rights matching the standing at that moment.
func (s *Service) TimedMute(ctx context.Context, communityID, userID int64, d time.Duration, reason string) error {
	if communityID == 0 || userID == 0 || d <= 0 {
		return ErrValidation
	}

	if forever, err := s.isMutedForever(ctx, communityID, userID); err != nil {
		return err
	} else if forever {
		s.logger.Info("timed mute skipped, user permanently muted",
			zap.Int64("community_id", communityID),
			zap.Int64("user_id", userID),
		)
		return nil
	}

	until := s.now().Add(d)
	if s.platform != nil {
		if err := s.platform.Mute(ctx, communityID, userID, until); err != nil {
			s.metrics.PlatformError("mute")
			s.logger.Warn("timed mute action failed",
				zap.Int64("community_id", communityID),
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
	}

	key := pairKey(communityID, userID)
	s.mu.Lock()
	if existing, ok := s.timers[key]; ok {
		existing.timer.Stop()
	}
	mt := &muteTimer{until: until}
	mt.timer = time.AfterFunc(d, func() {
		s.expire(communityID, userID, mt)
	})
	s.timers[key] = mt
	s.mu.Unlock()

	s.metrics.Mute("timed")
	s.logger.Info("user muted",
		zap.Int64("community_id", communityID),
		zap.Int64("user_id", userID),
		zap.Duration("duration", d),
		zap.String("reason", reason),
	)
	return nil
}

func (s *Service) expire(communityID, userID int64, mt *muteTimer) {
	key := pairKey(communityID, userID)
	s.mu.Lock()
	if current, ok := s.timers[key]; ok && current == mt {
		delete(s.timers, key)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), expireCallTimeout)
	defer cancel()

	standing, err := s.Standing(ctx, communityID, userID)
	if err != nil {
		s.logger.Warn("read standing on mute expiry failed, restoring", zap.Error(err))
		standing = enums.StandingClear
	}
	if s.platform == nil {
		return
	}

	switch standing {
	case enums.StandingMutedForever, enums.StandingMuted:
		return
	case enums.StandingQuarantined:
		err = s.platform.Quarantine(ctx, communityID, userID)
	default:
		err = s.platform.Restore(ctx, communityID, userID)
	}
	if err != nil {
		s.metrics.PlatformError("unmute")
		s.logger.Warn("mute expiry action failed",
			zap.Int64("community_id", communityID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("timed mute expired",
		zap.Int64("community_id", communityID),
		zap.Int64("user_id", userID),
		zap.String("standing", string(standing)),
	)
}

func (s *Service) Active(ctx context.Context, communityID, userID int64) (int, error) {
	if s.store == nil {
		return 0, fmt.Errorf("strike store is not configured")
	}
	return s.store.CountActive(ctx, communityID, userID, s.now().Add(-s.cfg.Decay))
}

func (s *Service) List(ctx context.Context, communityID, userID int64, limit int) ([]model.Strike, error) {
	if s.store == nil {
		return nil, fmt.Errorf("strike store is not configured")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.store.ListByUser(ctx, communityID, userID, limit)
}

// Pardon removes a strike from the active count. It does not lift an applied permanent mute.
func (s *Service) Pardon(ctx context.Context, strikeID int64) (model.Strike, error) {
	if strikeID <= 0 {
		return model.Strike{}, ErrValidation
	}
	if s.store == nil {
		return model.Strike{}, fmt.Errorf("strike store is not configured")
	}

	strike, err := s.store.Pardon(ctx, strikeID)
	if err != nil {
		return model.Strike{}, err
	}
	s.logger.Info("strike pardoned",
		zap.Int64("strike_id", strikeID),
		zap.Int64("community_id", strike.CommunityID),
		zap.Int64("user_id", strike.UserID),
	)
	return strike, nil
}

// LiftPermanentMute removes the permanent mute row and restores the user's rights.
func (s *Service) LiftPermanentMute(ctx context.Context, communityID, userID int64) (bool, error) {
	if s.mutes == nil {
		return false, fmt.Errorf("permanent mute store is not configured")
	}

	deleted, err := s.mutes.Delete(ctx, communityID, userID)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	if s.platform != nil {
		quarantined := false
		if s.quarantine != nil {
			_, quarantined, _ = s.quarantine.Get(ctx, communityID, userID)
		}
		if quarantined {
			err = s.platform.Quarantine(ctx, communityID, userID)
		} else {
			err = s.platform.Restore(ctx, communityID, userID)
		}
		if err != nil {
			s.metrics.PlatformError("unmute")
			s.logger.Warn("lift permanent mute action failed", zap.Error(err))
		}
	}
	return true, nil
}

func (s *Service) Standing(ctx context.Context, communityID, userID int64) (enums.Standing, error) {
	forever, err := s.isMutedForever(ctx, communityID, userID)
	if err != nil {
		return "", err
	}
	if forever {
		return enums.StandingMutedForever, nil
	}

	if until, ok := s.MutedUntil(communityID, userID); ok && s.now().Before(until) {
		return enums.StandingMuted, nil
	}

	if s.quarantine != nil {
		_, ok, err := s.quarantine.Get(ctx, communityID, userID)
		if err != nil {
			return "", fmt.Errorf("read quarantine record: %w", err)
		}
		if ok {
			return enums.StandingQuarantined, nil
		}
	}
	return enums.StandingClear, nil
}

func (s *Service) MutedUntil(communityID, userID int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mt, ok := s.timers[pairKey(communityID, userID)]
	if !ok {
		return time.Time{}, false
	}
	return mt.until, true
}

// Close stops pending expiry timers. The platform lifts timed restrictions on its own.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, mt := range s.timers {
		mt.timer.Stop()
		delete(s.timers, key)
	}
}

func (s *Service) isMutedForever(ctx context.Context, communityID, userID int64) (bool, error) {
	if s.mutes == nil {
		return false, nil
	}
	_, ok, err := s.mutes.Get(ctx, communityID, userID)
	if err != nil {
		return false, fmt.Errorf("read permanent mute: %w", err)
	}
	return ok, nil
}

func (s *Service) cancelTimer(communityID, userID int64) {
	key := pairKey(communityID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if mt, ok := s.timers[key]; ok {
		mt.timer.Stop()
		delete(s.timers, key)
	}
}

func pairKey(communityID, userID int64) string {
	return strconv.FormatInt(communityID, 10) + ":" + strconv.FormatInt(userID, 10)
}
