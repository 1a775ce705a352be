package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

const schema = `CREATE TABLE IF NOT EXISTS records (
	bucket TEXT NOT NULL,
	key    TEXT NOT NULL,
	value  BLOB NOT NULL,
	PRIMARY KEY (bucket, key)
)`

// SQLiteStore is a Store backed by a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at dsn. The special
// dsn ":memory:" gives a private in-memory database.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("library: open %s: %w", dsn, err)
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("library: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO records (bucket, key, value) VALUES (?, ?, ?)`,
		bucket, key, value)
	if err != nil {
		return fmt.Errorf("library: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM records WHERE bucket = ? AND key = ?`,
		bucket, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("library: get %s/%s: %w", bucket, key, err)
	}
	return value, nil
}

func (s *SQLiteStore) List(ctx context.Context, bucket, prefix string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM records WHERE bucket = ? AND substr(key, 1, length(?)) = ? ORDER BY key`,
		bucket, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("library: list %s: %w", bucket, err)
	}
	defer rows.Close()

	var values [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("library: list %s: %w", bucket, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("library: list %s: %w", bucket, err)
	}
	return values, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, bucket, prefix string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE bucket = ? AND substr(key, 1, length(?)) = ?`,
		bucket, prefix, prefix)
	if err != nil {
		return fmt.Errorf("library: delete %s/%s: %w", bucket, prefix, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("library: clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Batch(ctx context.Context, clear bool, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("library: begin: %w", err)
	}
	defer tx.Rollback()

	if clear {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
			return fmt.Errorf("library: clear: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO records (bucket, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("library: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Bucket, r.Key, r.Value); err != nil {
			return fmt.Errorf("library: put %s/%s: %w", r.Bucket, r.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("library: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
