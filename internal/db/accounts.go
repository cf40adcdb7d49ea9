package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SaveAccounts replaces the cached account payload of a session.
func (db *DB) SaveAccounts(ctx context.Context, sessionID string, payload []byte) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO account_cache (session_id, payload) VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = CURRENT_TIMESTAMP`,
		sessionID, payload,
	)
	return err
}

func (db *DB) GetAccounts(ctx context.Context, sessionID string) ([]byte, error) {
	var payload []byte
	err := db.pool.QueryRow(ctx,
		`SELECT payload FROM account_cache WHERE session_id = $1`,
		sessionID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Logout clears everything cached for a session: its account payload and its bank access token.
func (db *DB) Logout(ctx context.Context, sessionID string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM account_cache WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear account cache: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE web_sessions SET access_token = '' WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear access token: %w", err)
	}
	return tx.Commit(ctx)
}
