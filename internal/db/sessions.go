package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type WebSession struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	DisplayName         string     `json:"display_name"`
	AccessToken         string     `json:"-"`
	State               string     `json:"state"`
	TimeoutMinutes      int        `json:"timeout_minutes"`
	PromptOffsetMinutes int        `json:"prompt_offset_minutes"`
	LastActivityAt      time.Time  `json:"last_activity_at"`
	CreatedAt           time.Time  `json:"created_at"`
	EndedAt             *time.Time `json:"ended_at,omitempty"`
	EndReason           *string    `json:"end_reason,omitempty"`
}

func (db *DB) CreateSession(ctx context.Context, s *WebSession) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO web_sessions (id, user_id, display_name, access_token, state, timeout_minutes, prompt_offset_minutes)
		VALUES ($1, $2, $3, $4, 'active', $5, $6)
		RETURNING state, last_activity_at, created_at`,
		s.ID, s.UserID, s.DisplayName, s.AccessToken, s.TimeoutMinutes, s.PromptOffsetMinutes,
	).Scan(&s.State, &s.LastActivityAt, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (db *DB) GetSession(ctx context.Context, id string) (*WebSession, error) {
	var s WebSession
	err := db.pool.QueryRow(ctx,
		`SELECT id::text, user_id, display_name, access_token, state, timeout_minutes, prompt_offset_minutes,
			last_activity_at, created_at, ended_at, end_reason
		FROM web_sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.UserID, &s.DisplayName, &s.AccessToken, &s.State, &s.TimeoutMinutes, &s.PromptOffsetMinutes,
		&s.LastActivityAt, &s.CreatedAt, &s.EndedAt, &s.EndReason)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// TouchSession records activity on an open session.
func (db *DB) TouchSession(ctx context.Context, id string, at time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE web_sessions SET last_activity_at = $2 WHERE id = $1 AND ended_at IS NULL`,
		id, at,
	)
	return err
}

// EndSession closes a session and drops its cached accounts. Ending an already-ended session keeps
// the first reason.
func (db *DB) EndSession(ctx context.Context, id, reason string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE web_sessions SET state = 'expired', ended_at = CURRENT_TIMESTAMP, end_reason = $2, access_token = ''
		WHERE id = $1 AND ended_at IS NULL`,
		id, reason,
	); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM account_cache WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("clear account cache: %w", err)
	}
	return tx.Commit(ctx)
}

// StaleSessions lists open sessions idle for longer than their own timeout at now.
func (db *DB) StaleSessions(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id::text FROM web_sessions
		WHERE ended_at IS NULL AND last_activity_at + make_interval(mins => timeout_minutes) < $1
		ORDER BY last_activity_at`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}
