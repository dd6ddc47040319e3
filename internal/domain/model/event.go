package model

import (
	"time"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
)

// ModerationEvent is one inbound message. It is never mutated after receipt.
type ModerationEvent struct {
	CommunityID int64
	ChannelID   int64
	ChannelKind enums.ChannelKind
	MessageID   int64
	AuthorID    int64
	AuthorName  string
	Text        string
	SentAt      time.Time
	// AuthorCreatedAt is the estimated account creation time; zero when unknown.
	AuthorCreatedAt time.Time

	AuthorIsAdmin       bool
	AuthorIsBot         bool
	AuthorIsQuarantined bool
}

type MemberJoin struct {
	CommunityID      int64
	UserID           int64
	Username         string
	IsBot            bool
	AccountCreatedAt time.Time
	JoinedAt         time.Time
}
