package postgres

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
)

const strikeColumns = `id, community_id, user_id, category, reason, source_message_id, actor, metadata, pardoned, created_at`

type StrikeRepo struct {
	db DB
}

func NewStrikeRepo(db DB) *StrikeRepo {
	return &StrikeRepo{db: db}
}

// CreateAndCountActive inserts the strike and counts the pair's active strikes in one
// transaction, so the returned count always includes the new row. A transaction-scoped
// advisory lock on the pair makes concurrent writers count each other's rows.
func (r *StrikeRepo) CreateAndCountActive(ctx context.Context, strike model.Strike, since time.Time) (model.Strike, int, error) {
	if r.db == nil {
		return model.Strike{}, 0, fmt.Errorf("postgres pool is nil")
	}
	if strike.CommunityID == 0 || strike.UserID == 0 {
		return model.Strike{}, 0, fmt.Errorf("invalid strike payload")
	}

	metadata, err := marshalMetadata(strike.Metadata)
	if err != nil {
		return model.Strike{}, 0, err
	}

	var (
		created model.Strike
		active  int
	)
	err = WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, strikeLockKey(strike.CommunityID, strike.UserID)); err != nil {
			return fmt.Errorf("lock strike pair: %w", err)
		}

		row := tx.QueryRow(ctx, `
INSERT INTO strikes (
	community_id,
	user_id,
	category,
	reason,
	source_message_id,
	actor,
	metadata,
	pardoned,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, FALSE, NOW())
RETURNING `+strikeColumns,
			strike.CommunityID,
			strike.UserID,
			string(strike.Category),
			strike.Reason,
			strike.SourceMessageID,
			strike.Actor,
			metadata,
		)
		s, err := scanStrike(row)
		if err != nil {
			return fmt.Errorf("insert strike: %w", err)
		}
		created = s

		if err := tx.QueryRow(ctx, `
SELECT COUNT(*)
FROM strikes
WHERE community_id = $1
	AND user_id = $2
	AND pardoned = FALSE
	AND created_at >= $3
`, strike.CommunityID, strike.UserID, since).Scan(&active); err != nil {
			return fmt.Errorf("count active strikes: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Strike{}, 0, err
	}

	return created, active, nil
}

// strikeLockKey folds the pair into the single bigint advisory lock key space.
func strikeLockKey(communityID, userID int64) int64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "strikes:%d:%d", communityID, userID)
	return int64(h.Sum64())
}

func (r *StrikeRepo) CountActive(ctx context.Context, communityID, userID int64, since time.Time) (int, error) {
	if r.db == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var count int
	if err := r.db.QueryRow(ctx, `
SELECT COUNT(*)
FROM strikes
WHERE community_id = $1
	AND user_id = $2
	AND pardoned = FALSE
	AND created_at >= $3
`, communityID, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active strikes: %w", err)
	}

	return count, nil
}

func (r *StrikeRepo) ListByUser(ctx context.Context, communityID, userID int64, limit int) ([]model.Strike, error) {
	if r.db == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
SELECT `+strikeColumns+`
FROM strikes
WHERE community_id = $1
	AND user_id = $2
ORDER BY created_at DESC, id DESC
LIMIT $3
`, communityID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list strikes: %w", err)
	}
	defer rows.Close()

	items := make([]model.Strike, 0)
	for rows.Next() {
		s, err := scanStrike(rows)
		if err != nil {
			return nil, fmt.Errorf("scan strike: %w", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strikes: %w", err)
	}

	return items, nil
}

func (r *StrikeRepo) Pardon(ctx context.Context, strikeID int64) (model.Strike, error) {
	if r.db == nil {
		return model.Strike{}, fmt.Errorf("postgres pool is nil")
	}
	if strikeID <= 0 {
		return model.Strike{}, ErrStrikeNotFound
	}

	s, err := scanStrike(r.db.QueryRow(ctx, `
UPDATE strikes
SET pardoned = TRUE
WHERE id = $1
RETURNING `+strikeColumns, strikeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Strike{}, ErrStrikeNotFound
		}
		return model.Strike{}, fmt.Errorf("pardon strike: %w", err)
	}

	return s, nil
}

func scanStrike(row pgx.Row) (model.Strike, error) {
	var (
		s           model.Strike
		category    string
		rawMetadata []byte
	)
	if err := row.Scan(
		&s.ID,
		&s.CommunityID,
		&s.UserID,
		&category,
		&s.Reason,
		&s.SourceMessageID,
		&s.Actor,
		&rawMetadata,
		&s.Pardoned,
		&s.CreatedAt,
	); err != nil {
		return model.Strike{}, err
	}
	s.Category = enums.Category(category)
	s.Metadata = decodeMetadata(rawMetadata)
	return s, nil
}

func marshalMetadata(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal strike metadata: %w", err)
	}
	return string(raw), nil
}

func decodeMetadata(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil || metadata == nil {
		return map[string]any{}
	}
	return metadata
}
