package model

import "time"

// GuildConfig holds per-community settings. Rows are created lazily and never deleted here.
type GuildConfig struct {
	CommunityID     int64     `json:"community_id"`
	PanelChannelID  int64     `json:"panel_channel_id"`
	PanelMessageID  int64     `json:"panel_message_id"`
	TicketChannelID int64     `json:"ticket_channel_id"`
	LogChannelID    int64     `json:"log_channel_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
