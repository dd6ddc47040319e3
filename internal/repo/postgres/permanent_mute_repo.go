package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
)

type PermanentMuteRepo struct {
	db DB
}

func NewPermanentMuteRepo(db DB) *PermanentMuteRepo {
	return &PermanentMuteRepo{db: db}
}

// Insert reports false when the pair already holds a permanent mute.
func (r *PermanentMuteRepo) Insert(ctx context.Context, mute model.PermanentMute) (bool, error) {
	if r.db == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	if mute.CommunityID == 0 || mute.UserID == 0 {
		return false, fmt.Errorf("invalid permanent mute payload")
	}

	tag, err := r.db.Exec(ctx, `
INSERT INTO permanent_mutes (community_id, user_id, strike_count, muted_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (community_id, user_id) DO NOTHING
`, mute.CommunityID, mute.UserID, mute.StrikeCount)
	if err != nil {
		return false, fmt.Errorf("insert permanent mute: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *PermanentMuteRepo) Get(ctx context.Context, communityID, userID int64) (model.PermanentMute, bool, error) {
	if r.db == nil {
		return model.PermanentMute{}, false, fmt.Errorf("postgres pool is nil")
	}

	var mute model.PermanentMute
	err := r.db.QueryRow(ctx, `
SELECT community_id, user_id, strike_count, muted_at
FROM permanent_mutes
WHERE community_id = $1 AND user_id = $2
`, communityID, userID).Scan(&mute.CommunityID, &mute.UserID, &mute.StrikeCount, &mute.MutedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PermanentMute{}, false, nil
		}
		return model.PermanentMute{}, false, fmt.Errorf("get permanent mute: %w", err)
	}

	return mute, true, nil
}

func (r *PermanentMuteRepo) Delete(ctx context.Context, communityID, userID int64) (bool, error) {
	if r.db == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.db.Exec(ctx, `
DELETE FROM permanent_mutes
WHERE community_id = $1 AND user_id = $2
`, communityID, userID)
	if err != nil {
		return false, fmt.Errorf("delete permanent mute: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
