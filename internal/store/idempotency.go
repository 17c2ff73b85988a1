package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// IdempotentResponse is the reply stored for a completed Idempotency-Key.
type IdempotentResponse struct {
	Status int
	Body   []byte
}

// ReserveIdempotencyKey claims key for a request whose payload hashes to reqHash.
// A completed key returns its stored response. A key held by another request returns
// ErrIdempotencyConflict until its reservation is older than lease, after which it is
// taken over. A key reused for a different payload returns ErrIdempotencyMismatch.
func (s *Store) ReserveIdempotencyKey(ctx context.Context, key, reqHash string, lease time.Duration) (*IdempotentResponse, error) {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		storedHash string
		status     string
		respStatus *int
		respBody   []byte
		stale      bool
	)
	err = tx.QueryRow(ctx,
		`SELECT request_hash, status, response_status, response_body,
			updated_at < NOW() - make_interval(secs => $2)
		 FROM idempotency_keys WHERE key = $1 FOR UPDATE`,
		key, lease.Seconds(),
	).Scan(&storedHash, &status, &respStatus, &respBody, &stale)

	switch {
	case err == nil:
		if storedHash != reqHash {
			return nil, ErrIdempotencyMismatch
		}
		if status == "completed" && respStatus != nil {
			return &IdempotentResponse{Status: *respStatus, Body: respBody}, nil
		}
		if !stale {
			return nil, ErrIdempotencyConflict
		}
		if _, err := tx.Exec(ctx, "UPDATE idempotency_keys SET updated_at = NOW() WHERE key = $1", key); err != nil {
			return nil, fmt.Errorf("key takeover failed: %w", err)
		}
		return nil, tx.Commit(ctx)
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("idempotency query failed: %w", err)
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO idempotency_keys (key, request_hash) VALUES ($1, $2)",
		key, reqHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrIdempotencyConflict
		}
		return nil, fmt.Errorf("key reservation failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return nil, nil
}

// CompleteIdempotencyKey stores the response replayed for later requests with key.
func (s *Store) CompleteIdempotencyKey(ctx context.Context, key string, status int, body []byte) error {
	_, err := s.Db.Exec(ctx,
		`UPDATE idempotency_keys
		 SET status = 'completed', response_status = $2, response_body = $3, updated_at = NOW()
		 WHERE key = $1`,
		key, status, body,
	)
	if err != nil {
		return fmt.Errorf("idempotency update failed: %w", err)
	}
	return nil
}

// ReleaseIdempotencyKey drops an unfinished reservation so the client may retry.
func (s *Store) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	_, err := s.Db.Exec(ctx, "DELETE FROM idempotency_keys WHERE key = $1 AND status = 'in_progress'", key)
	return err
}
