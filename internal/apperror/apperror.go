// Package apperror tags errors with a coarse kind so callers can decide
// between retrying, reporting and aborting without parsing messages.
package apperror

import (
	"errors"

	"github.com/smallbiznis/fintrack/pkg/db"
)

type Kind string

const (
	KindConfiguration          Kind = "configuration"
	KindValidationFailure      Kind = "validation_failure"
	KindNetworkUnavailable     Kind = "network_unavailable"
	KindMaterializationFailure Kind = "materialization_failure"
	KindNotFound               Kind = "not_found"
	KindPermissionDenied       Kind = "permission_denied"
	KindInvalidInput           Kind = "invalid_input"
	KindTransient              Kind = "transient"
	KindFatal                  Kind = "fatal"
)

// Error wraps Err with the operation that failed and its Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the kind of the outermost tagged error in err's chain.
// Untagged database errors are classified as KindTransient when retrying
// may help and KindFatal otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var tagged *Error
	if errors.As(err, &tagged) && tagged.Kind != "" {
		return tagged.Kind
	}
	if db.IsTransientErr(err) {
		return KindTransient
	}
	return KindFatal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether err is worth retrying as-is.
func Retryable(err error) bool {
	return Is(err, KindTransient) || Is(err, KindNetworkUnavailable)
}
