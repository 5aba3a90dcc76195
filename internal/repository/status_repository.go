package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/activity-tracker/internal/domain"
)

// StatusRepository stores each user's status updates. The latest update per
// user is the current status.
type StatusRepository interface {
	Latest(ctx context.Context, userID string) (*domain.StatusSnapshot, error)
	Append(ctx context.Context, snapshot domain.StatusSnapshot) error
	// History lists updates for the user with from <= timestamp < to, oldest
	// first. A zero bound is open.
	History(ctx context.Context, userID string, from, to time.Time) ([]domain.StatusHistoryEntry, error)
}

type statusRepository struct {
	pool *pgxpool.Pool
}

// NewStatusRepository returns a Postgres-backed implementation over user_status.
func NewStatusRepository(pool *pgxpool.Pool) StatusRepository {
	return &statusRepository{pool: pool}
}

func (r *statusRepository) Latest(ctx context.Context, userID string) (*domain.StatusSnapshot, error) {
	const query = `
        SELECT user_id::text, status, COALESCE(memo, ''), timestamp
        FROM user_status WHERE user_id::text=$1
        ORDER BY timestamp DESC, created_at DESC
        LIMIT 1`

	var snap domain.StatusSnapshot
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&snap.UserID,
		&snap.Status,
		&snap.Memo,
		&snap.Timestamp,
	)
	return noRows(&snap, err)
}

func (r *statusRepository) Append(ctx context.Context, snapshot domain.StatusSnapshot) error {
	const query = `
        INSERT INTO user_status (user_id, status, memo, timestamp)
        VALUES ($1, $2, NULLIF($3, ''), $4)`

	_, err := r.pool.Exec(ctx, query,
		snapshot.UserID,
		snapshot.Status,
		snapshot.Memo,
		snapshot.Timestamp,
	)
	return err
}

func (r *statusRepository) History(ctx context.Context, userID string, from, to time.Time) ([]domain.StatusHistoryEntry, error) {
	const query = `
        SELECT user_id::text, status, COALESCE(memo, ''), timestamp
        FROM user_status
        WHERE user_id::text=$1
          AND ($2::timestamptz IS NULL OR timestamp >= $2)
          AND ($3::timestamptz IS NULL OR timestamp < $3)
        ORDER BY timestamp ASC, created_at ASC`

	rows, err := r.pool.Query(ctx, query, userID, optionalTime(from), optionalTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.StatusHistoryEntry
	for rows.Next() {
		var entry domain.StatusHistoryEntry
		if err := rows.Scan(&entry.UserID, &entry.Status, &entry.Memo, &entry.Timestamp); err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
