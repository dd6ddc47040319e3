package model

import (
	"time"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
)

type Strike struct {
	ID              int64          `json:"id"`
	CommunityID     int64          `json:"community_id"`
	UserID          int64          `json:"user_id"`
	Category        enums.Category `json:"category"`
	Reason          string         `json:"reason"`
	SourceMessageID int64          `json:"source_message_id"`
	Actor           string         `json:"actor"`
	Metadata        map[string]any `json:"metadata"`
	Pardoned        bool           `json:"pardoned"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Active reports whether the strike still counts at now for the given decay window.
func (s Strike) Active(now time.Time, decay time.Duration) bool {
	if s.Pardoned {
		return false
	}
	return !s.CreatedAt.Before(now.Add(-decay))
}
