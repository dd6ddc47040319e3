package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
)

type QuarantineRepo struct {
	db DB
}

func NewQuarantineRepo(db DB) *QuarantineRepo {
	return &QuarantineRepo{db: db}
}

// Insert keeps the first quarantine start on re-join.
func (r *QuarantineRepo) Insert(ctx context.Context, rec model.QuarantineRecord) (bool, error) {
	if r.db == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	if rec.CommunityID == 0 || rec.UserID == 0 {
		return false, fmt.Errorf("invalid quarantine payload")
	}

	tag, err := r.db.Exec(ctx, `
INSERT INTO quarantine_records (community_id, user_id, account_created_at, quarantined_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (community_id, user_id) DO NOTHING
`, rec.CommunityID, rec.UserID, rec.AccountCreatedAt, rec.QuarantinedAt)
	if err != nil {
		return false, fmt.Errorf("insert quarantine record: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *QuarantineRepo) Get(ctx context.Context, communityID, userID int64) (model.QuarantineRecord, bool, error) {
	if r.db == nil {
		return model.QuarantineRecord{}, false, fmt.Errorf("postgres pool is nil")
	}

	var rec model.QuarantineRecord
	err := r.db.QueryRow(ctx, `
SELECT community_id, user_id, account_created_at, quarantined_at
FROM quarantine_records
WHERE community_id = $1 AND user_id = $2
`, communityID, userID).Scan(&rec.CommunityID, &rec.UserID, &rec.AccountCreatedAt, &rec.QuarantinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.QuarantineRecord{}, false, nil
		}
		return model.QuarantineRecord{}, false, fmt.Errorf("get quarantine record: %w", err)
	}

	return rec, true, nil
}

// ListDue returns records whose account was created before accountCreatedBefore or whose
// quarantine started before quarantinedBefore.
func (r *QuarantineRepo) ListDue(ctx context.Context, accountCreatedBefore, quarantinedBefore time.Time, limit int) ([]model.QuarantineRecord, error) {
	if r.db == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.Query(ctx, `
SELECT community_id, user_id, account_created_at, quarantined_at
FROM quarantine_records
WHERE account_created_at <= $1
	OR quarantined_at <= $2
ORDER BY quarantined_at ASC
LIMIT $3
`, accountCreatedBefore, quarantinedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list due quarantine records: %w", err)
	}
	defer rows.Close()

	items := make([]model.QuarantineRecord, 0)
	for rows.Next() {
		var rec model.QuarantineRecord
		if err := rows.Scan(&rec.CommunityID, &rec.UserID, &rec.AccountCreatedAt, &rec.QuarantinedAt); err != nil {
			return nil, fmt.Errorf("scan quarantine record: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quarantine records: %w", err)
	}

	return items, nil
}

func (r *QuarantineRepo) Delete(ctx context.Context, communityID, userID int64) (bool, error) {
	if r.db == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.db.Exec(ctx, `
DELETE FROM quarantine_records
WHERE community_id = $1 AND user_id = $2
`, communityID, userID)
	if err != nil {
		return false, fmt.Errorf("delete quarantine record: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
