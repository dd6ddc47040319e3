package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
)

const guildConfigColumns = `community_id, panel_channel_id, panel_message_id, ticket_channel_id, log_channel_id, created_at, updated_at`

type GuildConfigRepo struct {
	db DB
}

func NewGuildConfigRepo(db DB) *GuildConfigRepo {
	return &GuildConfigRepo{db: db}
}

func (r *GuildConfigRepo) Get(ctx context.Context, communityID int64) (model.GuildConfig, bool, error) {
	if r.db == nil {
		return model.GuildConfig{}, false, fmt.Errorf("postgres pool is nil")
	}

	cfg, err := scanGuildConfig(r.db.QueryRow(ctx, `
SELECT `+guildConfigColumns+`
FROM guild_configs
WHERE community_id = $1
`, communityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.GuildConfig{}, false, nil
		}
		return model.GuildConfig{}, false, fmt.Errorf("get guild config: %w", err)
	}

	return cfg, true, nil
}

// Upsert writes non-zero references and keeps stored ones for zero fields.
func (r *GuildConfigRepo) Upsert(ctx context.Context, cfg model.GuildConfig) (model.GuildConfig, error) {
	if r.db == nil {
		return model.GuildConfig{}, fmt.Errorf("postgres pool is nil")
	}
	if cfg.CommunityID == 0 {
		return model.GuildConfig{}, fmt.Errorf("invalid guild config payload")
	}

	stored, err := scanGuildConfig(r.db.QueryRow(ctx, `
INSERT INTO guild_configs (
	community_id,
	panel_channel_id,
	panel_message_id,
	ticket_channel_id,
	log_channel_id,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
ON CONFLICT (community_id) DO UPDATE SET
	panel_channel_id = COALESCE(NULLIF(EXCLUDED.panel_channel_id, 0), guild_configs.panel_channel_id),
	panel_message_id = COALESCE(NULLIF(EXCLUDED.panel_message_id, 0), guild_configs.panel_message_id),
	ticket_channel_id = COALESCE(NULLIF(EXCLUDED.ticket_channel_id, 0), guild_configs.ticket_channel_id),
	log_channel_id = COALESCE(NULLIF(EXCLUDED.log_channel_id, 0), guild_configs.log_channel_id),
	updated_at = NOW()
RETURNING `+guildConfigColumns,
		cfg.CommunityID,
		cfg.PanelChannelID,
		cfg.PanelMessageID,
		cfg.TicketChannelID,
		cfg.LogChannelID,
	))
	if err != nil {
		return model.GuildConfig{}, fmt.Errorf("upsert guild config: %w", err)
	}

	return stored, nil
}

func scanGuildConfig(row pgx.Row) (model.GuildConfig, error) {
	var cfg model.GuildConfig
	if err := row.Scan(
		&cfg.CommunityID,
		&cfg.PanelChannelID,
		&cfg.PanelMessageID,
		&cfg.TicketChannelID,
		&cfg.LogChannelID,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	); err != nil {
		return model.GuildConfig{}, err
	}
	return cfg, nil
}
