package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error implements repositories.RepositoryError for Firestore backed repositories.
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
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the error represents a missing document.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict reports whether the error represents a conflicting write.
func (e *Error) IsConflict() bool { return e != nil && e.conflict }

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// WrapError annotates Firestore errors with repository semantics. Context cancellations pass through.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var repoErr *Error
	if errors.As(err, &repoErr) {
		return err
	}

	e := &Error{op: op, err: err}
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.NotFound:
		e.notFound = true
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		e.conflict = true
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		e.unavailable = true
	}
	return e
}

// Conflict builds a conflict error for application-level precondition failures.
func Conflict(op string, err error) error {
	return &Error{op: op, err: err, conflict: true}
}

// NotFound builds a not-found error for lookups answered by an empty query.
func NotFound(op string) error {
	return &Error{op: op, err: errors.New("document not found"), notFound: true}
}
