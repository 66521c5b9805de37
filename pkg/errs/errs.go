package errs

import (
	"errors"
	"fmt"
)

// Kind classifies control-plane failures so the HTTP surface can map them
// to status codes without inspecting error strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindNotFound
	KindConflict
	KindPreconditionFailed
	KindTimeout
	KindCluster
	KindPartialBatch
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindTimeout:
		return "timeout"
	case KindCluster:
		return "cluster_error"
	case KindPartialBatch:
		return "partial_batch_failure"
	default:
		return "unknown"
	}
}

type kindError struct {
	kind Kind
	msg  string
	err  error
}

func (e *kindError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *kindError) Unwrap() error { return e.err }

// Cause implements the github.com/pkg/errors causer interface.
func (e *kindError) Cause() error { return e.err }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message. Returns nil if err is nil.
func Wrap(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

// KindOf walks the cause chain and returns the first kind found.
func KindOf(err error) Kind {
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			return ke.kind
		}
		cause := errors.Unwrap(err)
		if cause == nil {
			if causer, ok := err.(interface{ Cause() error }); ok {
				cause = causer.Cause()
			}
		}
		err = cause
	}
	return KindUnknown
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
