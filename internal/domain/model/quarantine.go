package model

import "time"

type QuarantineRecord struct {
	CommunityID      int64     `json:"community_id"`
	UserID           int64     `json:"user_id"`
	AccountCreatedAt time.Time `json:"account_created_at"`
	QuarantinedAt    time.Time `json:"quarantined_at"`
}

type PermanentMute struct {
	CommunityID int64     `json:"community_id"`
	UserID      int64     `json:"user_id"`
	StrikeCount int       `json:"strike_count"`
	MutedAt     time.Time `json:"muted_at"`
}
