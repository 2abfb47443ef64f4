package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetResponseCache returns a cached provider response if present and not expired.
func (s *Store) GetResponseCache(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.DB == nil {
		return "", false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx,
		`SELECT response_json, expires_at FROM response_cache WHERE cache_key = ?`,
		key,
	)

	var (
		response string
		expires  int64
	)
	if err := row.Scan(&response, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}

	if time.Now().UTC().After(time.Unix(expires, 0).UTC()) {
		return "", false, nil
	}
	return response, true, nil
}

// SetResponseCache stores a provider response with TTL.
func (s *Store) SetResponseCache(ctx context.Context, key, model, payload string, ttl time.Duration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		return nil
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO response_cache (cache_key, model, response_json, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key)
		 DO UPDATE SET model = excluded.model,
		               response_json = excluded.response_json,
		               created_at = excluded.created_at,
		               expires_at = excluded.expires_at`,
		key, model, payload, now.Unix(), expiresAt.Unix(),
	)
	return err
}

// PurgeExpiredResponses deletes expired cache rows.
func (s *Store) PurgeExpiredResponses(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at < ?`, time.Now().UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge response cache: %w", err)
	}
	return result.RowsAffected()
}
