package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const defaultBusyTimeout = 5 * time.Second

// Open opens the database at path, enables foreign keys and applies the embedded schema.
// Use ":memory:" for an ephemeral database; the pool is then limited to one connection
// so every query sees the same schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return db, nil
}

func dsn(path string) string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", defaultBusyTimeout.Milliseconds()))
	if path != ":memory:" {
		params.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + path + "?" + params.Encode()
}

// RunInTx executes fn inside a transaction, rolling back when fn fails.
func RunInTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return WrapError("tx.begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return WrapError("tx.commit", err)
	}
	return nil
}

// Timestamp converts t to the integer representation stored in the schema.
func Timestamp(t time.Time) int64 {
	return t.UTC().UnixNano()
}

// Time converts a stored integer timestamp back to UTC.
func Time(v int64) time.Time {
	return time.Unix(0, v).UTC()
}

// NullTime converts a nullable stored timestamp.
func NullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := Time(v.Int64)
	return &t
}

// NullTimestamp converts an optional time for storage.
func NullTimestamp(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: Timestamp(*t), Valid: true}
}
