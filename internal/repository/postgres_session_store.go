package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/activity-tracker/internal/domain"
)

// openSessionIndex is the partial unique index allowing one open session per
// (user_id, date).
const openSessionIndex = "ux_active_time_sessions_open"

type postgresSessionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionStore returns a SessionStore over active_time_sessions.
func NewPostgresSessionStore(pool *pgxpool.Pool) SessionStore {
	return &postgresSessionStore{pool: pool}
}

func (s *postgresSessionStore) LoadEntry(ctx context.Context, userID, date string) (domain.ActiveTimeEntry, error) {
	const query = `
        SELECT id::text, start_time, end_time, duration_seconds, COALESCE(memo, '')
        FROM active_time_sessions
        WHERE user_id::text=$1 AND date=$2::date
        ORDER BY start_time ASC, created_at ASC`

	rows, err := s.pool.Query(ctx, query, userID, date)
	if err != nil {
		return domain.ActiveTimeEntry{}, err
	}
	defer rows.Close()

	entry := domain.NewActiveTimeEntry(userID, date)
	for rows.Next() {
		var sess domain.ActiveTimeSession
		if err := rows.Scan(&sess.ID, &sess.StartTime, &sess.EndTime, &sess.DurationSeconds, &sess.Memo); err != nil {
			return domain.ActiveTimeEntry{}, err
		}
		entry.Sessions = append(entry.Sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return domain.ActiveTimeEntry{}, err
	}
	entry.RecomputeTotal()
	return entry, nil
}

func (s *postgresSessionStore) ListEntries(ctx context.Context, date string) ([]domain.ActiveTimeEntry, error) {
	const query = `
        SELECT user_id::text, id::text, start_time, end_time, duration_seconds, COALESCE(memo, '')
        FROM active_time_sessions
        WHERE date=$1::date
        ORDER BY user_id ASC, start_time ASC, created_at ASC`

	rows, err := s.pool.Query(ctx, query, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActiveTimeEntry
	for rows.Next() {
		var (
			userID string
			sess   domain.ActiveTimeSession
		)
		if err := rows.Scan(&userID, &sess.ID, &sess.StartTime, &sess.EndTime, &sess.DurationSeconds, &sess.Memo); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].UserID != userID {
			out = append(out, domain.NewActiveTimeEntry(userID, date))
		}
		last := &out[len(out)-1]
		last.Sessions = append(last.Sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].RecomputeTotal()
	}
	return out, nil
}

// SaveEntries writes the batch in one transaction. Each (user, date) is
// serialized with an advisory lock, and the partial unique index rejects a
// second open session written by a concurrent replica.
func (s *postgresSessionStore) SaveEntries(ctx context.Context, entries []domain.ActiveTimeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := validateEntries(entries); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, entry := range entries {
		if err := saveEntryTx(ctx, tx, entry); err != nil {
			return mapSessionError(err)
		}
	}
	return mapSessionError(tx.Commit(ctx))
}

// SaveLiveDuration updates one open row in place, so it never prunes or
// rewrites sessions another replica has written since they were read.
func (s *postgresSessionStore) SaveLiveDuration(ctx context.Context, userID, date, sessionID string, seconds int64) error {
	const query = `
        UPDATE active_time_sessions
        SET duration_seconds=$4, updated_at=NOW()
        WHERE id::text=$1 AND user_id::text=$2 AND date=$3::date AND end_time IS NULL`
	_, err := s.pool.Exec(ctx, query, sessionID, userID, date, seconds)
	return err
}

func saveEntryTx(ctx context.Context, tx pgx.Tx, entry domain.ActiveTimeEntry) error {
	const lockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err := tx.Exec(ctx, lockQuery, entry.UserID+"|"+entry.Date); err != nil {
		return fmt.Errorf("lock entry: %w", err)
	}

	ids := make([]string, 0, len(entry.Sessions))
	for _, sess := range entry.Sessions {
		ids = append(ids, sess.ID)
	}

	const deleteQuery = `
        DELETE FROM active_time_sessions
        WHERE user_id::text=$1 AND date=$2::date AND NOT (id::text = ANY($3::text[]))`
	if _, err := tx.Exec(ctx, deleteQuery, entry.UserID, entry.Date, ids); err != nil {
		return fmt.Errorf("prune sessions: %w", err)
	}

	// Closed sessions are written first so a close-then-reopen in one batch
	// never trips the open-session index.
	ordered := make([]domain.ActiveTimeSession, 0, len(entry.Sessions))
	for _, sess := range entry.Sessions {
		if !sess.IsOpen() {
			ordered = append(ordered, sess)
		}
	}
	for _, sess := range entry.Sessions {
		if sess.IsOpen() {
			ordered = append(ordered, sess)
		}
	}

	const upsertQuery = `
        INSERT INTO active_time_sessions (id, user_id, date, start_time, end_time, duration_seconds, memo)
        VALUES ($1::uuid, $2::uuid, $3::date, $4, $5, $6, NULLIF($7, ''))
        ON CONFLICT (id) DO UPDATE SET
            start_time = EXCLUDED.start_time,
            end_time = EXCLUDED.end_time,
            duration_seconds = EXCLUDED.duration_seconds,
            memo = EXCLUDED.memo,
            updated_at = NOW()`
	for _, sess := range ordered {
		if _, err := tx.Exec(ctx, upsertQuery,
			sess.ID,
			entry.UserID,
			entry.Date,
			sess.StartTime,
			nullableTime(sess.EndTime),
			sess.DurationSeconds,
			sess.Memo,
		); err != nil {
			return fmt.Errorf("upsert session %s: %w", sess.ID, err)
		}
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func mapSessionError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == openSessionIndex {
		return ErrOpenSessionExists
	}
	return err
}
