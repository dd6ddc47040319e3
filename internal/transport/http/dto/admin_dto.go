package dto

import "time"

type Strike struct {
	ID              int64          `json:"id"`
	Category        string         `json:"category"`
	Reason          string         `json:"reason"`
	SourceMessageID int64          `json:"source_message_id"`
	Actor           string         `json:"actor"`
	Pardoned        bool           `json:"pardoned"`
	EvidenceURL     string         `json:"evidence_url,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

type StrikesResponse struct {
	CommunityID int64    `json:"community_id"`
	UserID      int64    `json:"user_id"`
	Active      int      `json:"active"`
	Items       []Strike `json:"items"`
}

type StandingResponse struct {
	CommunityID int64      `json:"community_id"`
	UserID      int64      `json:"user_id"`
	Standing    string     `json:"standing"`
	MutedUntil  *time.Time `json:"muted_until,omitempty"`
	Active      int        `json:"active_strikes"`
}

type ChangedResponse struct {
	OK      bool `json:"ok"`
	Changed bool `json:"changed"`
}

type Ticket struct {
	ID          int64      `json:"id"`
	CommunityID int64      `json:"community_id"`
	UserID      int64      `json:"user_id"`
	ChannelRef  string     `json:"channel_ref"`
	Status      string     `json:"status"`
	ClosedBy    *int64     `json:"closed_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

type GuildConfigRequest struct {
	TicketChannelID int64 `json:"ticket_channel_id"`
	LogChannelID    int64 `json:"log_channel_id"`
	PanelChannelID  int64 `json:"panel_channel_id"`
}

type GuildConfig struct {
	CommunityID     int64     `json:"community_id"`
	TicketChannelID int64     `json:"ticket_channel_id"`
	LogChannelID    int64     `json:"log_channel_id"`
	PanelChannelID  int64     `json:"panel_channel_id"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
