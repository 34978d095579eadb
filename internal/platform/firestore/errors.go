package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorKind int

const (
	kindUnknown errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

// Error classifies Firestore failures for the repository layer.
type Error struct {
	op   string
	err  error
	kind errorKind
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports a missing document.
func (e *Error) IsNotFound() bool { return e != nil && e.kind == kindNotFound }

// IsConflict reports an existing document or a failed precondition.
func (e *Error) IsConflict() bool { return e != nil && e.kind == kindConflict }

// IsUnavailable reports a transient backend failure.
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

func classify(code codes.Code) errorKind {
	switch code {
	case codes.NotFound:
		return kindNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return kindConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return kindUnavailable
	default:
		return kindUnknown
	}
}

// WrapError attaches op and a classification derived from the gRPC status.
// Context cancellation and deadline errors are returned unwrapped.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var existing *Error
	if errors.As(err, &existing) {
		if existing.op == "" {
			existing.op = op
		}
		return existing
	}
	return &Error{op: op, err: err, kind: classify(code)}
}
