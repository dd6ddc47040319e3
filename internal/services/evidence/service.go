package evidence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
)

const (
	MetadataKey    = "evidence_key"
	contentType    = "application/json"
	presignTimeout = 15 * time.Minute
)

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Snapshot is the archived copy of an offending message.
type Snapshot struct {
	CommunityID int64          `json:"community_id"`
	ChannelID   int64          `json:"channel_id"`
	MessageID   int64          `json:"message_id"`
	AuthorID    int64          `json:"author_id"`
	AuthorName  string         `json:"author_name,omitempty"`
	Text        string         `json:"text"`
	SentAt      time.Time      `json:"sent_at"`
	Category    enums.Category `json:"category"`
	Rule        string         `json:"rule"`
	Reason      string         `json:"reason,omitempty"`
	ArchivedAt  time.Time      `json:"archived_at"`
}

type Service struct {
	store  ObjectStore
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewService(store ObjectStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

func (s *Service) Enabled() bool {
	return s != nil && s.store != nil
}

// Archive writes the snapshot and returns its object key. An empty key means nothing
// was stored; failures are logged, never returned.
func (s *Service) Archive(ctx context.Context, ev model.ModerationEvent, category enums.Category, rule, reason string) string {
	if !s.Enabled() {
		return ""
	}

	now := s.now().UTC()
	raw, err := json.Marshal(Snapshot{
		CommunityID: ev.CommunityID,
		ChannelID:   ev.ChannelID,
		MessageID:   ev.MessageID,
		AuthorID:    ev.AuthorID,
		AuthorName:  ev.AuthorName,
		Text:        ev.Text,
		SentAt:      ev.SentAt,
		Category:    category,
		Rule:        rule,
		Reason:      reason,
		ArchivedAt:  now,
	})
	if err != nil {
		s.logger.Warn("marshal evidence failed", zap.Error(err))
		return ""
	}

	key := fmt.Sprintf("evidence/%s/%s/%s.json",
		strconv.FormatInt(ev.CommunityID, 10),
		now.Format("2006/01/02"),
		s.newID(),
	)
	if err := s.store.Put(ctx, key, bytes.NewReader(raw), int64(len(raw)), contentType); err != nil {
		s.logger.Warn("archive evidence failed",
			zap.Int64("community_id", ev.CommunityID),
			zap.Int64("message_id", ev.MessageID),
			zap.Error(err),
		)
		return ""
	}
	return key
}

// URL presigns the evidence object referenced by a strike, if any.
func (s *Service) URL(ctx context.Context, strike model.Strike) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	key, _ := strike.Metadata[MetadataKey].(string)
	if key == "" {
		return "", nil
	}
	return s.store.PresignGet(ctx, key, presignTimeout)
}
