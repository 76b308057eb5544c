package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Error normalises SQLite failures into repository categories.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("sqlite %s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the query matched no rows.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict reports constraint violations such as a duplicate key or a restricted delete.
func (e *Error) IsConflict() bool { return e != nil && e.conflict }

// IsUnavailable reports lock contention or cancelled operations.
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// WrapError categorises err for the operation op. A nil err stays nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}

	wrapped := &Error{op: op, err: err}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		wrapped.notFound = true
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		wrapped.unavailable = true
	default:
		var driverErr *sqlite.Error
		if errors.As(err, &driverErr) {
			switch driverErr.Code() & 0xff {
			case sqlite3.SQLITE_CONSTRAINT:
				wrapped.conflict = true
			case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
				wrapped.unavailable = true
			}
		}
	}
	return wrapped
}

// NotFound builds a not-found error for lookups that report absence without sql.ErrNoRows.
func NotFound(op string) error {
	return &Error{op: op, err: sql.ErrNoRows, notFound: true}
}
