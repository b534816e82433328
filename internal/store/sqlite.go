package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable substrate for the shell: the persisted view-state
// key/value table and both cache tiers of the offline gateway.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// CacheEntry is a stored HTTP response in one of the gateway's cache tiers.
// ExpiresAt is nil for static generation entries, which only ever leave the
// store through generation cleanup.
type CacheEntry struct {
	CacheName string
	URLKey    string
	Method    string
	Status    int
	Headers   http.Header
	Body      []byte
	StoredAt  time.Time
	ExpiresAt *time.Time
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable pragmas for performance and safety
	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	// Run goose migrations
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the on-disk location of the database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

// GetValue retrieves a persisted view-state value by key.
func (s *SQLiteStore) GetValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM view_state WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get value %q: %w", key, err)
	}
	return value, nil
}

// SetValue writes a persisted view-state value, replacing any previous one.
func (s *SQLiteStore) SetValue(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO view_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("set value %q: %w", key, err)
	}
	return nil
}

// DeleteValue removes a persisted view-state value. Missing keys are not an error.
func (s *SQLiteStore) DeleteValue(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM view_state WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete value %q: %w", key, err)
	}
	return nil
}

// ListValues returns all persisted view-state fields keyed by name.
func (s *SQLiteStore) ListValues(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM view_state ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list values: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		values[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return values, nil
}

// PutCacheEntry stores a cached response, replacing any entry with the same identity.
func (s *SQLiteStore) PutCacheEntry(ctx context.Context, entry CacheEntry) error {
	headersJSON, err := json.Marshal(entry.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}

	var expiresAt sql.NullString
	if entry.ExpiresAt != nil {
		expiresAt = sql.NullString{String: entry.ExpiresAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (cache_name, url_key, method, status, headers, body, stored_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_name, url_key, method) DO UPDATE SET
			status = excluded.status,
			headers = excluded.headers,
			body = excluded.body,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at
	`, entry.CacheName, entry.URLKey, entry.Method, entry.Status, string(headersJSON),
		entry.Body, entry.StoredAt.UTC().Format(time.RFC3339Nano), expiresAt)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// GetCacheEntry retrieves a cached response by identity. An entry whose
// expiry has passed at the given instant is reported as ErrNotFound even if
// the janitor has not evicted it yet.
func (s *SQLiteStore) GetCacheEntry(ctx context.Context, cacheName, method, urlKey string, now time.Time) (*CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT cache_name, url_key, method, status, headers, body, stored_at, expires_at
		FROM cache_entries
		WHERE cache_name = ? AND url_key = ? AND method = ?
	`, cacheName, urlKey, method)

	entry, err := scanCacheEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}

	if entry.ExpiresAt != nil && !now.Before(*entry.ExpiresAt) {
		return nil, ErrNotFound
	}

	return entry, nil
}

// DeleteExpiredCacheEntries removes every entry whose expiry has passed.
// Returns the number of evicted entries.
func (s *SQLiteStore) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?",
		now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return affected, nil
}

// ListCacheNames returns the distinct cache names currently holding entries.
func (s *SQLiteStore) ListCacheNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT cache_name FROM cache_entries ORDER BY cache_name")
	if err != nil {
		return nil, fmt.Errorf("list cache names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return names, nil
}

// DeleteCachesExcept removes every cache whose name is not in keep.
// Used by gateway activation to garbage-collect superseded static generations.
func (s *SQLiteStore) DeleteCachesExcept(ctx context.Context, keep []string) (int64, error) {
	if len(keep) == 0 {
		result, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries")
		if err != nil {
			return 0, fmt.Errorf("delete caches: %w", err)
		}
		return result.RowsAffected()
	}

	placeholders := strings.Repeat("?,", len(keep))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(keep))
	for i, name := range keep {
		args[i] = name
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE cache_name NOT IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("delete caches: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return affected, nil
}

// scanCacheEntry scans a row into a CacheEntry, handling header JSON and timestamps.
func scanCacheEntry(scanner interface{ Scan(...any) error }) (*CacheEntry, error) {
	var entry CacheEntry
	var headersJSON string
	var storedAt string
	var expiresAt sql.NullString

	err := scanner.Scan(
		&entry.CacheName,
		&entry.URLKey,
		&entry.Method,
		&entry.Status,
		&headersJSON,
		&entry.Body,
		&storedAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &entry.Headers); err != nil {
			return nil, fmt.Errorf("parse headers JSON: %w", err)
		}
	}

	if t, err := time.Parse(time.RFC3339Nano, storedAt); err == nil {
		entry.StoredAt = t
	}
	if expiresAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, expiresAt.String); err == nil {
			entry.ExpiresAt = &t
		}
	}

	return &entry, nil
}
