package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies every failure surfaced by the orchestration core
type ErrorKind string

const (
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindInvalidInput      ErrorKind = "INVALID_INPUT"
	KindArtifactNotFound  ErrorKind = "ARTIFACT_NOT_FOUND"
	KindEngineUnavailable ErrorKind = "ENGINE_UNAVAILABLE"
	KindEngineFault       ErrorKind = "ENGINE_FAULT"
	KindTimeout           ErrorKind = "TIMEOUT"
	KindBackpressure      ErrorKind = "BACKPRESSURE"
	KindCancelled         ErrorKind = "CANCELLED"
)

// Sentinel errors, one per kind. *Error values match them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrEngineFault       = errors.New("engine fault")
	ErrTimeout           = errors.New("timeout")
	ErrBackpressure      = errors.New("backpressure")
	ErrCancelled         = errors.New("cancelled")
)

var sentinels = map[ErrorKind]error{
	KindNotFound:          ErrNotFound,
	KindInvalidInput:      ErrInvalidInput,
	KindArtifactNotFound:  ErrArtifactNotFound,
	KindEngineUnavailable: ErrEngineUnavailable,
	KindEngineFault:       ErrEngineFault,
	KindTimeout:           ErrTimeout,
	KindBackpressure:      ErrBackpressure,
	KindCancelled:         ErrCancelled,
}

// Error is a classified failure.
type Error struct {
	// Kind is the taxonomy bucket.
	Kind ErrorKind

	// Op names the operation that failed (e.g. "prove", "dispatch").
	Op string

	// Err is the underlying cause, may be nil.
	Err error
}

// NewError builds a classified error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind ErrorKind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, sentinels[e.Kind])
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, sentinels[e.Kind], e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// KindOf returns the kind of err. Unclassified context errors map to
// Timeout/Cancelled, anything else to EngineFault.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindEngineFault
}

// Classify wraps err into an *Error unless it already is one.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return NewError(KindOf(err), op, err)
}

// Retryable reports whether the coordinator may reassign after err.
func Retryable(err error) bool {
	return KindOf(err) == KindEngineUnavailable
}
