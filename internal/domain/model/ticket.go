package model

import (
	"time"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
)

type Ticket struct {
	ID          int64              `json:"id"`
	CommunityID int64              `json:"community_id"`
	UserID      int64              `json:"user_id"`
	ChannelRef  string             `json:"channel_ref"`
	Status      enums.TicketStatus `json:"status"`
	ClosedBy    *int64             `json:"closed_by,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	ClosedAt    *time.Time         `json:"closed_at,omitempty"`
}
